package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-layers/internal/config"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes layer lifecycle events to a Kafka topic.
// It implements pipeline.EventSink.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// batchTimeout bounds how long a Publish waits for a partial batch. Publish
// runs once per pipeline cycle, so the kafka-go default of 1s would stall it.
const batchTimeout = 10 * time.Millisecond

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: batchTimeout,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes the events and writes them in a single WriteMessages
// call. Events of one layer share a key and therefore a partition, which
// keeps their order.
func (w *Writer) Publish(ctx context.Context, events []layer.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write lifecycle events: %w", err)
	}
	w.logger.Debug("lifecycle events published", "count", len(events))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a lifecycle event into a Kafka message.
// Aggregate events without a layer id are keyed by their kind.
func serializeToMessage(event layer.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize lifecycle event: %w", err)
	}
	key := event.LayerID
	if key == "" {
		key = string(event.Kind)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.At,
		Headers: []kafkago.Header{
			{Key: "event_kind", Value: []byte(event.Kind)},
			{Key: "occurred_at", Value: []byte(event.At.Format(time.RFC3339))},
		},
	}, nil
}

// LogSink writes lifecycle events to the log. It is used when Kafka is
// disabled.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each event at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, events []layer.Event) error {
	for _, e := range events {
		s.logger.Info("layer event", "kind", e.Kind, "layer_id", e.LayerID, "detail", e.Detail)
	}
	return nil
}
