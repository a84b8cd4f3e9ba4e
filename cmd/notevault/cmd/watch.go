package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mayank-meragi/notevault/internal/index"
	"github.com/mayank-meragi/notevault/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var skipInitial bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault and keep the index current",
		Long: `Watch brings the index up to date, then follows file changes and
re-indexes notes as they are created, edited, or deleted. Rapid saves
of the same note are coalesced into a single update.

Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, skipInitial)
		},
	}

	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "Skip the catch-up indexing run on startup")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, skipInitial bool) error {
	out := cmd.OutOrStdout()
	st := newStyles(stdoutIsTTY())

	app, cleanup, err := openApp(func(msg string) {
		_, _ = fmt.Fprintln(out, st.Warning.Render("! "+msg))
	})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !skipInitial {
		_, _ = fmt.Fprintln(out, st.Dim.Render("Catching up on changed notes..."))
		err := app.manager.UpdateVaultIndex(ctx, index.Options{
			ChunkSize:       app.cfg.Index.ChunkSize,
			IncludePatterns: app.cfg.Paths.Include,
			ExcludePatterns: app.cfg.Paths.Exclude,
		}, nil)
		if err != nil {
			return err
		}
	}

	w := watcher.New(watcher.Config{
		Root:     app.root,
		Indexer:  app.manager,
		Include:  app.cfg.Paths.Include,
		Exclude:  app.cfg.Paths.Exclude,
		Debounce: app.cfg.Index.WatchDebounce,
	})

	_, _ = fmt.Fprintln(out, st.Success.Render("Watching "+app.root))

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	_, _ = fmt.Fprintln(out, st.Dim.Render("Stopped."))
	return nil
}
