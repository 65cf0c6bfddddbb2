package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ndbc-transfer",
		Short: "Transfer buoy telemetry from ERDDAP to NDBC",
		Long: `Fetch the configured station feeds from an ERDDAP server, build NDBC XML
exchange files and upload them over FTP or SFTP.

Settings come from the environment (STATIONS_FILE, CREDENTIALS_FILE,
STAGING_DIR, LOOKBACK, ...); stations and credentials from YAML files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCleanStagingCommand())
	rootCmd.AddCommand(newCheckConfigCommand())

	return rootCmd
}
