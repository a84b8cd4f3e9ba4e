package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mayank-meragi/notevault/internal/config"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and embedder status",
		Long: `Status reports what is in the index and whether the configured
embedding model is reachable:
  - indexed notes and chunks
  - embedding provider, model, and vector width
  - on-disk index size`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statusInfo is the collected index state, also the --json shape.
type statusInfo struct {
	Vault      string `json:"vault"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
	Notes      int    `json:"notes"`
	Chunks     int    `json:"chunks"`
	IndexBytes int64  `json:"index_bytes"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := cmd.OutOrStdout()

	app, cleanup, err := openApp(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := app.manager.Stats(ctx)
	if err != nil {
		return err
	}

	id := app.embedder.Identity()
	info := statusInfo{
		Vault:      app.root,
		Provider:   id.Provider,
		Model:      id.Model,
		Dimensions: id.Dimensions,
		Available:  app.embedder.Available(ctx),
		Notes:      stats.Paths,
		Chunks:     stats.Chunks,
	}
	if fi, statErr := os.Stat(filepath.Join(config.DataDir(app.root), vectorDBName)); statErr == nil {
		info.IndexBytes = fi.Size()
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	renderStatus(out, info)
	return nil
}

func renderStatus(out io.Writer, info statusInfo) {
	st := newStyles(stdoutIsTTY())

	availability := st.Success.Render("available")
	if !info.Available {
		availability = st.Warning.Render("unavailable")
	}

	_, _ = fmt.Fprintln(out, st.Header.Render(filepath.Base(info.Vault)))
	_, _ = fmt.Fprintf(out, "%s %s\n", st.Label.Render("Vault:"), info.Vault)
	_, _ = fmt.Fprintf(out, "%s %s/%s (%d dims, %s)\n",
		st.Label.Render("Embedder:"), info.Provider, info.Model, info.Dimensions, availability)
	_, _ = fmt.Fprintf(out, "%s %d notes, %d chunks\n",
		st.Label.Render("Indexed:"), info.Notes, info.Chunks)
	_, _ = fmt.Fprintf(out, "%s %s\n", st.Label.Render("Size:"), formatBytes(info.IndexBytes))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
