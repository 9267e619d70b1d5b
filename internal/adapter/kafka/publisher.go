// Package kafka publishes hazard alerts so downstream consumers (paging,
// air-quality advisories) can react without polling the dashboard API.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/smokesignal-ai/pm25-dashboard/internal/config"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

// AlertPublisher produces hazard alert messages to the alert topic.
type AlertPublisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAlertPublisher creates a Kafka producer for the configured alert topic.
func NewAlertPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *AlertPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &AlertPublisher{writer: w, logger: logger, metrics: metrics}
}

// PublishBatch serializes and publishes all hazardous forecasts in a single
// WriteMessages call for efficiency.
func (p *AlertPublisher) PublishBatch(ctx context.Context, alerts []domain.Prediction) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(alerts))
	for i := range alerts {
		msg, err := serializeToMessage(alerts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	p.metrics.AlertsPublished.Add(float64(len(alerts)))
	p.logger.Info("hazard alerts published", "count", len(alerts), "topic", p.writer.Topic)
	return nil
}

func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a hazardous Prediction into a Kafka message.
// Messages are keyed by location so alerts for one site stay ordered.
func serializeToMessage(alert domain.Prediction) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hazard alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.LocationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "location_id", Value: []byte(alert.LocationID)},
			{Key: "generated_at", Value: []byte(alert.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
