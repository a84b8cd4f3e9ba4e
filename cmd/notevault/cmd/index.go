package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mayank-meragi/notevault/internal/index"
)

func newIndexCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault for semantic search",
		Long: `Index chunks every Markdown note in the vault, embeds the chunks,
and stores the vectors locally. Unchanged notes are skipped, so repeat
runs only pay for what changed.

Examples:
  notevault index
  notevault index --reindex
  notevault --vault ~/notes index`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, reindex)
		},
	}

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Clear the index and re-index every note")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, reindex bool) error {
	out := cmd.OutOrStdout()
	tty := stdoutIsTTY()
	st := newStyles(tty)

	app, cleanup, err := openApp(func(msg string) {
		_, _ = fmt.Fprintln(out, st.Warning.Render("! "+msg))
	})
	if err != nil {
		return err
	}
	defer cleanup()

	if !app.embedder.Available(ctx) {
		return fmt.Errorf("embedding model %s is not available; check the provider configuration in %s",
			app.embedder.Identity(), app.root)
	}

	start := time.Now()
	var last index.Progress
	onProgress := func(p index.Progress) {
		last = p
		if tty {
			_, _ = fmt.Fprintf(out, "\r%s", st.Dim.Render(fmt.Sprintf(
				"Indexing %d/%d chunks across %d files",
				p.CompletedChunks, p.TotalChunks, p.TotalFiles)))
		} else if p.CompletedChunks == 0 {
			_, _ = fmt.Fprintf(out, "Indexing %d chunks across %d files\n",
				p.TotalChunks, p.TotalFiles)
		}
	}

	err = app.manager.UpdateVaultIndex(ctx, index.Options{
		ChunkSize:       app.cfg.Index.ChunkSize,
		IncludePatterns: app.cfg.Paths.Include,
		ExcludePatterns: app.cfg.Paths.Exclude,
		ReindexAll:      reindex,
	}, onProgress)
	if tty && last.TotalChunks > 0 {
		_, _ = fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}

	if last.TotalChunks == 0 {
		_, _ = fmt.Fprintln(out, st.Success.Render("Index is up to date"))
		return nil
	}
	_, _ = fmt.Fprintln(out, st.Success.Render(fmt.Sprintf(
		"Indexed %d chunks from %d files in %s",
		last.CompletedChunks, last.TotalFiles, time.Since(start).Round(time.Millisecond))))
	return nil
}
