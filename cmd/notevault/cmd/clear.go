package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all indexed chunks for the current model",
		Long: `Clear deletes every indexed chunk stored under the configured
embedding model. Notes themselves are untouched. Run 'notevault index'
to rebuild.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			st := newStyles(stdoutIsTTY())

			app, cleanup, err := openApp(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.manager.Clear(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, st.Success.Render("Index cleared"))
			return nil
		},
	}

	return cmd
}
