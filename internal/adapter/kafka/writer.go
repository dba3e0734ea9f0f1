// Package kafka publishes merged hourly aggregates to a Kafka topic so
// downstream consumers see every analytics update.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/csnaves/weather-pipeline/internal/domain"
)

// Writer produces hourly aggregate messages to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the sink topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishAggregates serializes and publishes the merged rows in a single
// WriteMessages call.
func (w *Writer) PublishAggregates(ctx context.Context, aggs []domain.HourlyAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(aggs))
	for i := range aggs {
		msg, err := serializeToMessage(aggs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("aggregates published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an aggregate into a Kafka message. The key is
// the merge key, so compacted topics retain the latest row per hour.
func serializeToMessage(agg domain.HourlyAggregate) (kafkago.Message, error) {
	data, err := json.Marshal(agg)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hourly aggregate: %w", err)
	}
	key := fmt.Sprintf("%s|%s", agg.Location, agg.ForecastTime.UTC().Format(time.RFC3339))
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "location", Value: []byte(agg.Location)},
			{Key: "forecast_time", Value: []byte(agg.ForecastTime.UTC().Format(time.RFC3339))},
		},
	}, nil
}
