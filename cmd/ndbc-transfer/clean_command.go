package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/observability"
	"github.com/couchcryptid/ndbc-transfer/internal/staging"
)

func newCleanStagingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean-staging",
		Short: "Remove a staging directory left behind by an interrupted run",
		Long: `Remove STAGING_DIR when it survives an interrupted run. Runs refuse to start
while it exists. Nothing is removed while another run holds the lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

			removed, err := staging.Clean(cfg.StagingDir, logger)
			if err != nil {
				return fmt.Errorf("clean staging: %w", err)
			}
			out := cmd.OutOrStdout()
			if !removed {
				fmt.Fprintf(out, "Nothing to clean in %s\n", cfg.StagingDir)
				return nil
			}
			fmt.Fprintf(out, "Removed %s\n", cfg.StagingDir)
			return nil
		},
	}
}
