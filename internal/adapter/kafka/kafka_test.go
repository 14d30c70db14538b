package kafka

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-layers/internal/config"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
)

type mockMessageWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (m *mockMessageWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockMessageWriter) Close() error {
	m.closed = true
	return nil
}

func TestNewWriter_ShortBatchTimeout(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaSinkTopic: "layer-events"}
	w := NewWriter(cfg, slog.Default())
	t.Cleanup(func() { _ = w.Close() })

	kw, ok := w.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "layer-events", kw.Topic)
	assert.Equal(t, batchTimeout, kw.BatchTimeout)
	assert.Less(t, kw.BatchTimeout, 100*time.Millisecond)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	event := layer.Event{Kind: layer.EventEnabled, LayerID: "fcst:GFS", At: now}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("fcst:GFS"), msg.Key)
	assert.Contains(t, string(msg.Value), `"kind":"enabled"`)
	assert.Equal(t, now, msg.Time)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("enabled"), msg.Headers[0].Value)
	assert.Equal(t, "occurred_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_AggregateEventKeyedByKind(t *testing.T) {
	msg, err := serializeToMessage(layer.Event{Kind: layer.EventNoLayers})
	require.NoError(t, err)
	assert.Equal(t, []byte("no_layers"), msg.Key)
}

func TestWriter_Publish(t *testing.T) {
	mw := &mockMessageWriter{}
	w := &Writer{writer: mw, logger: slog.Default()}

	require.NoError(t, w.Publish(context.Background(), nil))
	assert.Empty(t, mw.msgs)

	events := []layer.Event{
		{Kind: layer.EventAdded, LayerID: "a"},
		{Kind: layer.EventHasLayers},
		{Kind: layer.EventEnabled, LayerID: "a"},
	}
	require.NoError(t, w.Publish(context.Background(), events))
	require.Len(t, mw.msgs, 3)
	assert.Equal(t, []byte("a"), mw.msgs[2].Key)

	require.NoError(t, w.Close())
	assert.True(t, mw.closed)
}

func TestWriter_PublishError(t *testing.T) {
	mw := &mockMessageWriter{err: errors.New("leader not available")}
	w := &Writer{writer: mw, logger: slog.Default()}

	err := w.Publish(context.Background(), []layer.Event{{Kind: layer.EventAdded, LayerID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, s.Publish(context.Background(), []layer.Event{{Kind: layer.EventDeleted, LayerID: "x"}}))
	assert.Contains(t, buf.String(), "kind=deleted")
	assert.Contains(t, buf.String(), "layer_id=x")
}
