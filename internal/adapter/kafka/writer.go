package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// AlertWriter publishes run summaries to a Kafka topic.
// It implements pipeline.AlertSink.
type AlertWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewAlertWriter creates a Kafka producer for the configured alert topic.
func NewAlertWriter(cfg *config.Config, logger *slog.Logger) *AlertWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	return &AlertWriter{writer: w, logger: logger}
}

// Publish sends one run summary. Consumers filter on the status header.
func (w *AlertWriter) Publish(ctx context.Context, summary domain.RunSummary) error {
	msg, err := serializeSummary(summary)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run summary %s: %w", summary.RunID, err)
	}
	w.logger.Debug("run summary published", "run_id", summary.RunID, "status", summary.Status)
	return nil
}

func (w *AlertWriter) Close() error {
	return w.writer.Close()
}

// serializeSummary marshals a RunSummary into a Kafka message keyed by run ID.
func serializeSummary(summary domain.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.RunID),
		Value: data,
		Time:  summary.FinishedAt,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(summary.Status)},
			{Key: "finished_at", Value: []byte(summary.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
