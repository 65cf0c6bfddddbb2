package config

import (
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Error names the setting that failed validation.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	StationsFile    string
	CredentialsFile string
	StagingDir      string

	Lookback    time.Duration
	MaxLookback time.Duration
	BinInterval time.Duration

	// Upstream (ERDDAP) client.
	FetchTimeout      time.Duration
	UpstreamRateLimit float64
	UpstreamRateBurst int
	MetadataCacheSize int

	TransferTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Serve mode.
	Schedule string
	Blackout string

	PushgatewayURL  string
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, &Error{Key: "SHUTDOWN_TIMEOUT", Reason: err.Error()}
	}

	cfg := &Config{
		StationsFile:    sharedcfg.EnvOrDefault("STATIONS_FILE", "stations.yaml"),
		CredentialsFile: sharedcfg.EnvOrDefault("CREDENTIALS_FILE", "credentials.yaml"),
		StagingDir:      sharedcfg.EnvOrDefault("STAGING_DIR", "/tmp/ndbc-transfer/staging"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Schedule:        sharedcfg.EnvOrDefault("SCHEDULE", "*/30 * * * *"),
		Blackout:        sharedcfg.EnvOrDefault("BLACKOUT", ""),
		PushgatewayURL:  sharedcfg.EnvOrDefault("PUSHGATEWAY_URL", ""),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", ""),
	}
	if brokers := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"LOOKBACK", "3h", &cfg.Lookback},
		{"MAX_LOOKBACK", "24h", &cfg.MaxLookback},
		{"BIN_INTERVAL", "10m", &cfg.BinInterval},
		{"FETCH_TIMEOUT", "30s", &cfg.FetchTimeout},
		{"TRANSFER_TIMEOUT", "60s", &cfg.TransferTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.UpstreamRateLimit, err = parseFloat("UPSTREAM_RATE_LIMIT", "2"); err != nil {
		return nil, err
	}
	if cfg.UpstreamRateBurst, err = parsePositiveInt("UPSTREAM_RATE_BURST", "1"); err != nil {
		return nil, err
	}
	if cfg.MetadataCacheSize, err = parsePositiveInt("METADATA_CACHE_SIZE", "64"); err != nil {
		return nil, err
	}

	if cfg.Lookback > cfg.MaxLookback {
		return nil, &Error{Key: "LOOKBACK", Reason: fmt.Sprintf("%s exceeds MAX_LOOKBACK %s", cfg.Lookback, cfg.MaxLookback)}
	}
	if cfg.KafkaAlertTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, &Error{Key: "KAFKA_BROKERS", Reason: "required when KAFKA_ALERT_TOPIC is set"}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("invalid duration %q", s)}
	}
	return d, nil
}

func parsePositiveInt(key, def string) (int, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("must be a positive integer, got %q", s)}
	}
	return n, nil
}

// parseFloat accepts 0 (no limit) or a positive rate.
func parseFloat(key, def string) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("must be a non-negative number, got %q", s)}
	}
	return f, nil
}
