package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mayank-meragi/notevault/internal/rag"
	"github.com/mayank-meragi/notevault/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit   int
	minSim  float32
	folders []string
	paths   []string
	format  string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vault by meaning",
		Long: `Search embeds the query and returns the note passages closest to it,
with wiki-link references and line numbers.

Examples:
  notevault search "ideas for the garden"
  notevault search "meeting notes from last week" --folder work
  notevault search "tax documents" --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float32Var(&opts.minSim, "min-similarity", 0, "Drop results scoring below this (0.0-1.0)")
	cmd.Flags().StringSliceVar(&opts.folders, "folder", nil, "Restrict to a vault folder (repeatable)")
	cmd.Flags().StringSliceVar(&opts.paths, "path", nil, "Restrict to an exact note path (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// searchResultJSON is the wire shape of one result under --format json.
type searchResultJSON struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float32 `json:"score"`
	Content   string  `json:"content"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := cmd.OutOrStdout()
	tty := stdoutIsTTY()
	st := newStyles(tty)

	app, cleanup, err := openApp(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	limit := opts.limit
	if limit <= 0 {
		limit = app.cfg.Search.Limit
	}
	minSim := opts.minSim
	if minSim <= 0 {
		minSim = float32(app.cfg.Search.MinSimilarity)
	}

	engine := rag.NewEngine(rag.Config{
		Embedder:    app.embedder,
		Repository:  app.repo,
		Vault:       app.vault,
		QueryPrefix: app.cfg.Search.QueryPrefix,
		OnState: func(s rag.State) {
			if tty && s.Phase == rag.PhaseQuerying && opts.format != "json" {
				_, _ = fmt.Fprintln(out, st.Dim.Render("Searching..."))
			}
		},
	})

	var scope *rag.Scope
	if len(opts.folders) > 0 || len(opts.paths) > 0 {
		scope = &rag.Scope{Paths: opts.paths, Folders: opts.folders}
	}

	results, err := engine.ProcessQuery(ctx, query, scope, rag.Options{
		Limit:         limit,
		MinSimilarity: minSim,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return printResultsJSON(out, results)
	}

	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, st.Dim.Render("No matching notes."))
		return nil
	}
	_, _ = fmt.Fprintln(out, rag.RenderContext(results))
	return nil
}

func printResultsJSON(out io.Writer, results []store.SearchResult) error {
	rows := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		rows = append(rows, searchResultJSON{
			Path:      r.Record.Path,
			StartLine: r.Record.StartLine,
			EndLine:   r.Record.EndLine,
			Score:     r.Score,
			Content:   r.Record.Content,
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
