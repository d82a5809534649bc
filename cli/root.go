// Package cli implements the podofo-sign command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CrackerCat/podofo/config"
	"github.com/CrackerCat/podofo/logging"
)

// rootOptions carries the persistent flags shared by all subcommands.
type rootOptions struct {
	configFile string
	verbose    bool

	cfg *config.Config
}

// New builds the root command.
func New() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "podofo-sign",
		Short:         "Digitally sign PDF documents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if ro.configFile != "" {
				cfg, err := config.Load(ro.configFile)
				if err != nil {
					return err
				}
				ro.cfg = cfg
			} else {
				ro.cfg = &config.Config{}
			}

			logger, err := ro.cfg.Logging.BuildLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if ro.verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
					&slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			logging.SetLogger(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&ro.configFile, "config", "c", "", "path to the YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&ro.verbose, "verbose", "v", false, "enable debug logging to stderr")

	cmd.AddCommand(newSignCommand(ro))
	cmd.AddCommand(newDigestCommand(ro))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
