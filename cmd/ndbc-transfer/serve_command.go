package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/ndbc-transfer/internal/adapter/http"
	"github.com/couchcryptid/ndbc-transfer/internal/scheduler"
)

func newServeCommand() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run on a cron schedule and expose health and metrics endpoints",
		Long: `Run the pipeline on the SCHEDULE cron expression (UTC), skipping ticks inside
the BLACKOUT window, and serve /healthz, /readyz, /metrics and /status on
HTTP_ADDR until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics := newMetrics()
			a, err := loadApp(false, metrics)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			defer a.close()
			logger := a.logger

			p, err := a.pipeline(false, nil)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			blackout, err := scheduler.ParseBlackout(a.cfg.Blackout)
			if err != nil {
				return &exitError{code: 1, err: err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, err := scheduler.New(ctx, a.cfg.Schedule, blackout, p, logger)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			srv := httpadapter.NewServer(a.cfg.HTTPAddr, p, p, prometheus.DefaultGatherer, logger)

			// Start HTTP server.
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
					stop()
				}
			}()

			sched.Start()
			if runNow {
				sched.RunNow()
			}

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			sched.Stop()

			logger.Info("shutdown complete", "scheduled_runs", sched.Runs(), "skipped", sched.Skipped())
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "Start one run immediately instead of waiting for the first tick (skipped inside the blackout)")
	return cmd
}
