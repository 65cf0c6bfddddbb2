package main

import (
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/ndbc-transfer/internal/adapter/erddap"
	"github.com/couchcryptid/ndbc-transfer/internal/adapter/kafka"
	"github.com/couchcryptid/ndbc-transfer/internal/adapter/transfer"
	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
	"github.com/couchcryptid/ndbc-transfer/internal/observability"
	"github.com/couchcryptid/ndbc-transfer/internal/pipeline"
)

// app holds the loaded settings shared by the run and serve commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	mapper   *domain.Mapper
	stations *config.Stations
	creds    *config.Credentials // nil in dry-run mode
	alerts   *kafka.AlertWriter  // nil when KAFKA_ALERT_TOPIC is empty
}

// loadApp reads every configuration source and fails on the first invalid one.
// Credentials are skipped in dry-run mode.
func loadApp(dryRun bool, metrics *observability.Metrics) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

	mapper := domain.DefaultMapper()
	stations, err := config.LoadStations(cfg.StationsFile, mapper)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		mapper:   mapper,
		stations: stations,
	}
	if !dryRun {
		if a.creds, err = config.LoadCredentials(cfg.CredentialsFile); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// pipeline wires the fetcher, transformer, uploader and alert sink.
func (a *app) pipeline(dryRun bool, out io.Writer) (*pipeline.Pipeline, error) {
	client, err := erddap.NewClient(a.stations.UpstreamURL, erddap.Options{
		Timeout:   a.cfg.FetchTimeout,
		RateLimit: rate.Limit(a.cfg.UpstreamRateLimit),
		Burst:     a.cfg.UpstreamRateBurst,
		CacheSize: a.cfg.MetadataCacheSize,
	}, a.mapper, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}

	var uploader pipeline.Uploader
	if !dryRun {
		up, err := transfer.New(*a.creds, a.cfg.TransferTimeout, a.logger)
		if err != nil {
			return nil, err
		}
		uploader = up
	}

	p := pipeline.New(
		a.stations.Stations,
		client,
		pipeline.NewTransformer(a.mapper, a.cfg.BinInterval, a.logger),
		uploader,
		pipeline.Options{
			StagingDir:  a.cfg.StagingDir,
			Lookback:    a.cfg.Lookback,
			MaxLookback: a.cfg.MaxLookback,
			DryRun:      dryRun,
			Output:      out,
		},
		a.logger,
		a.metrics,
	)

	if a.cfg.KafkaAlertTopic != "" {
		a.alerts = kafka.NewAlertWriter(a.cfg, a.logger)
		p.WithAlerts(a.alerts)
		a.logger.Info("run summaries published to kafka", "topic", a.cfg.KafkaAlertTopic, "brokers", a.cfg.KafkaBrokers)
	}
	return p, nil
}

func (a *app) close() {
	if a.alerts == nil {
		return
	}
	if err := a.alerts.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}
}
