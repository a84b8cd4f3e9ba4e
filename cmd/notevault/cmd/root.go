// Package cmd provides the CLI commands for notevault.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mayank-meragi/notevault/internal/config"
	"github.com/mayank-meragi/notevault/internal/logging"
)

var (
	vaultFlag string
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the notevault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notevault",
		Short: "Semantic search over a Markdown note vault",
		Long: `notevault indexes the Markdown notes in a vault and answers
natural-language queries with the most relevant note passages.

Everything runs locally: notes are chunked, embedded, and stored in a
per-vault SQLite database under .notevault/. Configure providers and
filters in .notevault.yaml at the vault root.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&vaultFlag, "vault", ".", "Vault root directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// vaultRoot resolves the --vault flag to an absolute directory.
func vaultRoot() (string, error) {
	root, err := filepath.Abs(vaultFlag)
	if err != nil {
		return "", fmt.Errorf("failed to resolve vault path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("vault directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("vault path %s is not a directory", root)
	}
	return root, nil
}

// setupLogging routes slog to a rotating file under the vault's data
// directory, keeping stdout free for command output.
func setupLogging(_ *cobra.Command, _ []string) error {
	root, err := vaultRoot()
	if err != nil {
		return err
	}

	cfg := logging.DefaultConfig(config.DataDir(root))
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}
