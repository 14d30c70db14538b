//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/storm-data-layers/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-layers/internal/config"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
	"github.com/couchcryptid/storm-data-layers/internal/observability"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
	"github.com/couchcryptid/storm-data-layers/internal/pipeline"
)

const testSinkTopic = "test-layer-events"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("layers-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func loadMockData(t *testing.T) []domain.ProductAnnouncement {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("..", "..", "data", "mock", "announcements.json"))
	require.NoError(t, err)
	anns, errs := domain.DecodeAnnouncements(data)
	require.Empty(t, errs)
	return anns
}

type publishedEvent struct {
	Event   layer.Event
	Key     string
	Headers map[string]string
}

func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedEvent {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event layer.Event
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")

	return publishedEvent{Event: event, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriter verifies that the event writer round-trips a batch through Kafka.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	at := time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)
	require.NoError(t, writer.Publish(ctx, []layer.Event{
		{Kind: layer.EventAdded, LayerID: "prod:KML", At: at},
		{Kind: layer.EventHasLayers, At: at},
	}))

	consumer := newConsumer(t, broker)

	first := readEvent(ctx, t, consumer)
	assert.Equal(t, "prod:KML", first.Key)
	assert.Equal(t, layer.EventAdded, first.Event.Kind)
	assert.Equal(t, "added", first.Headers["event_kind"])
	assert.Equal(t, at.Format(time.RFC3339), first.Headers["occurred_at"])

	second := readEvent(ctx, t, consumer)
	assert.Equal(t, "has_layers", second.Key)
	assert.Empty(t, second.Event.LayerID)
}

// TestPipelineEndToEnd feeds the mock announcements into a running pipeline
// and checks the lifecycle events that reach the sink topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	state := pipeline.NewState(domain.DefaultLegends, overlay.NewDirFetcher(filepath.Join("..", "..", "data", "overlays")), logger, metrics)
	p := pipeline.New(state, pipeline.NewBinder(domain.DefaultLegends, nil), writer, logger, metrics, pipeline.Options{})

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	for _, a := range loadMockData(t) {
		require.NoError(t, p.Submit(ctx, a))
	}

	consumer := newConsumer(t, broker)

	// Nine layers are added and the three overlays finish loading.
	added := map[string]bool{}
	loaded := map[string]bool{}
	sawHasLayers := false
	for len(added) < 9 || len(loaded) < 3 {
		pe := readEvent(ctx, t, consumer)
		assert.NotEmpty(t, pe.Headers["event_kind"])
		_, err := time.Parse(time.RFC3339, pe.Headers["occurred_at"])
		assert.NoError(t, err, "occurred_at should be valid RFC3339")

		switch pe.Event.Kind {
		case layer.EventAdded:
			assert.Equal(t, pe.Event.LayerID, pe.Key)
			added[pe.Event.LayerID] = true
		case layer.EventLoaded:
			loaded[pe.Event.LayerID] = true
		case layer.EventHasLayers:
			sawHasLayers = true
		case layer.EventErrored:
			t.Fatalf("layer %s errored: %s", pe.Event.LayerID, pe.Event.Detail)
		}
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.True(t, sawHasLayers)
	assert.True(t, added["fcst:GFS|NCEP|global|Temperature|2m"])
	assert.True(t, loaded["prod:KML||||||0|1714089600000|Warnings"])
}
