//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/smokesignal-ai/pm25-dashboard/internal/adapter/kafka"
	"github.com/smokesignal-ai/pm25-dashboard/internal/config"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

const testAlertTopic = "test-pm25-hazard-alerts"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka spins up a single-broker Kafka via testcontainers and returns
// the broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.6.1",
		tckafka.WithClusterID(fmt.Sprintf("test-cluster-%d", time.Now().UnixNano())),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial kafka broker")
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestAlertPublisherRoundTrip publishes hazardous forecasts through the
// AlertPublisher against a real broker and verifies keys, headers, and
// payloads on the consumer side.
func TestAlertPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	cfg := &config.Config{
		KafkaBrokers:    []string{broker},
		KafkaAlertTopic: testAlertTopic,
	}

	generated := time.Date(2020, time.September, 14, 8, 30, 0, 0, time.UTC)
	alerts := []domain.Prediction{
		{
			ID:            "fc-aaa111",
			LocationID:    "loc-001",
			Timestamp:     time.Date(2020, time.September, 12, 14, 0, 0, 0, time.UTC),
			PredictedPM25: 162.5,
			HazardFlag:    true,
			GeneratedAt:   generated,
		},
		{
			ID:            "fc-bbb222",
			LocationID:    "loc-002",
			Timestamp:     time.Date(2020, time.September, 12, 16, 0, 0, 0, time.UTC),
			PredictedPM25: 48.0,
			HazardFlag:    true,
			GeneratedAt:   generated,
		},
	}

	publisher := kafka.NewAlertPublisher(cfg, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = publisher.Close() })

	require.NoError(t, publisher.PublishBatch(ctx, alerts))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make([]kafkago.Message, 0, len(alerts))
	for len(received) < len(alerts) {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from alert topic")
		received = append(received, msg)
	}

	byLocation := make(map[string]kafkago.Message, len(received))
	for _, msg := range received {
		byLocation[string(msg.Key)] = msg
	}
	require.Contains(t, byLocation, "loc-001")
	require.Contains(t, byLocation, "loc-002")

	msg := byLocation["loc-001"]
	var alert domain.Prediction
	require.NoError(t, json.Unmarshal(msg.Value, &alert))
	assert.Equal(t, "fc-aaa111", alert.ID)
	assert.Equal(t, 162.5, alert.PredictedPM25)
	assert.True(t, alert.HazardFlag)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "loc-001", headers["location_id"])

	parsed, err := time.Parse(time.RFC3339, headers["generated_at"])
	require.NoError(t, err, "generated_at should be valid RFC3339")
	assert.True(t, parsed.Equal(generated))
}
