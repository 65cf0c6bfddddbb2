package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

func newCheckConfigCommand() *cobra.Command {
	var skipCredentials bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate settings, stations and credentials without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			mapper := domain.DefaultMapper()
			stations, err := config.LoadStations(cfg.StationsFile, mapper)
			if err != nil {
				return &exitError{code: 1, err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Upstream: %s\n", stations.UpstreamURL)
			fmt.Fprintf(out, "Window: %s lookback (max %s), %s bins\n", cfg.Lookback, cfg.MaxLookback, cfg.BinInterval)

			if !skipCredentials {
				creds, err := config.LoadCredentials(cfg.CredentialsFile)
				if err != nil {
					return &exitError{code: 1, err: err}
				}
				fmt.Fprintf(out, "Destination: %s://%s@%s%s\n", creds.Protocol, creds.Username, creds.Addr(), creds.RemoteDir)
			}

			rows := make([][]string, 0, stations.Feeds())
			for _, st := range stations.Stations {
				for _, f := range st.Feeds {
					rows = append(rows, []string{
						st.WMO,
						st.ID,
						f.Sensor,
						f.Dataset,
						strings.Join(mapper.Tags(f.Sensor), ","),
						strconv.Itoa(len(f.Constants)),
					})
				}
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"WMO", "Site", "Sensor", "Dataset", "Tags", "Constants"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "%d stations, %d feeds: OK\n", len(stations.Stations), stations.Feeds())
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipCredentials, "skip-credentials", false, "Do not load the credentials file")
	return cmd
}
