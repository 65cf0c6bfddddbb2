//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/ndbc-transfer/internal/adapter/kafka"
	"github.com/couchcryptid/ndbc-transfer/internal/config"
	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

const testAlertTopic = "test-ndbc-alerts"

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("ndbc-transfer-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestAlertWriterPublishesSummary verifies a failed run summary reaches the
// alert topic with its key, headers and JSON body intact.
func TestAlertWriterPublishesSummary(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaAlertTopic: testAlertTopic}
	writer := kafka.NewAlertWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = writer.Close() })

	finished := time.Date(2024, 5, 1, 15, 1, 0, 0, time.UTC)
	summary := domain.RunSummary{
		RunID:      "run-integration-1",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
	summary.AddFailure(errors.Join(domain.ErrAuthentication, errors.New("530 Login incorrect.")), "", "", "")
	summary.Finalize()

	require.NoError(t, writer.Publish(ctx, summary))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{broker},
		Topic:    testAlertTopic,
		MaxWait:  time.Second,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "run-integration-1", string(msg.Key))
	assert.Equal(t, "total_failure", headers["status"])
	assert.Equal(t, "2024-05-01T15:01:00Z", headers["finished_at"])

	var got domain.RunSummary
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, domain.StatusTotalFailure, got.Status)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, domain.KindAuthentication, got.Failures[0].Kind)
}
