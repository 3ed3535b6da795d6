// Package kafka mirrors field-level audit records to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/config"
	"github.com/couchcryptid/quake-data-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces audit records to the changes topic.
// It implements pipeline.ChangePublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured changes topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaChangesTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishChanges writes every change of one event in a single WriteMessages
// call. Messages are keyed by earthquake id so one event's history stays on
// one partition, in order.
func (w *Writer) PublishChanges(ctx context.Context, earthquakeID string, changes []domain.FieldChange) error {
	if len(changes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(changes))
	for i := range changes {
		msg, err := serializeToMessage(changes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d changes for %s: %w", len(msgs), earthquakeID, err)
	}
	w.logger.Debug("changes published", "event_id", earthquakeID, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a FieldChange into a Kafka message.
func serializeToMessage(change domain.FieldChange) (kafkago.Message, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize field change: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(change.EarthquakeID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "field_name", Value: []byte(change.FieldName)},
			{Key: "update_time", Value: []byte(change.UpdateTime.UTC().Format(time.RFC3339Nano))},
		},
	}, nil
}
