package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
	"github.com/couchcryptid/ndbc-transfer/internal/observability"
)

const pushTimeout = 10 * time.Second

// newMetrics registers collectors on the default registry. Tests swap it for
// an unregistered set.
var newMetrics = observability.NewMetrics

func newRunCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one fetch, build and upload cycle",
		Long: `Run one fetch, build and upload cycle over the configured lookback window
and print a summary. The exit code reflects the run status: 0 success,
2 partial failure, 1 total failure.

With --dry-run the exchange files are built and printed instead of uploaded;
no credentials are needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics := newMetrics()
			a, err := loadApp(dryRun, metrics)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			defer a.close()

			p, err := a.pipeline(dryRun, cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: 1, err: err}
			}

			summary := p.Run(cmd.Context())
			// Dry-run output is the XML itself; keep the table off stdout.
			out := cmd.OutOrStdout()
			if dryRun {
				out = cmd.ErrOrStderr()
			}
			fmt.Fprint(out, renderSummary(summary))
			pushMetrics(cmd.Context(), a, metrics)

			if code := summary.Status.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build files and print them instead of uploading")
	return cmd
}

func pushMetrics(ctx context.Context, a *app, metrics *observability.Metrics) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	host, _ := os.Hostname()
	if err := metrics.Push(ctx, a.cfg.PushgatewayURL, host); err != nil {
		a.logger.Error("metrics push failed", "error", err)
	}
}

// statusLabel is the human-readable form used in the summary table.
func statusLabel(s domain.RunStatus) string {
	switch s {
	case domain.StatusSuccess:
		return "SUCCESS"
	case domain.StatusPartialFailure:
		return "PARTIAL FAILURE"
	default:
		return "TOTAL FAILURE"
	}
}
