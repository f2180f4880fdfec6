package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
)

// Notifier publishes stage transitions to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the stage event topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one event keyed by run id, so a run's events stay ordered
// on a single partition.
func (n *Notifier) Notify(ctx context.Context, event domain.StageEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish stage event: %w", err)
	}
	n.logger.Debug("stage event published", "stage", event.Stage, "outcome", event.Outcome)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a StageEvent into a Kafka message.
func serializeToMessage(event domain.StageEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize stage event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "stage", Value: []byte(event.Stage)},
			{Key: "outcome", Value: []byte(event.Outcome)},
			{Key: "emitted_at", Value: []byte(event.At.Format(time.RFC3339))},
		},
	}, nil
}
