package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "ws://localhost:8081/feed", cfg.FeedURL)
	assert.Equal(t, 5*time.Second, cfg.FeedMaxBackoff)
	assert.Equal(t, 16, cfg.FeedSendQueue)
	assert.False(t, cfg.FeedTestMessages)
	assert.Equal(t, "data/overlays", cfg.OverlayDir)
	assert.Empty(t, cfg.OverlayBaseURL)
	assert.Equal(t, 10*time.Second, cfg.OverlayTimeout)
	assert.Equal(t, 64, cfg.OverlayCacheSize)
	assert.Empty(t, cfg.DisplayableParameters)
	assert.False(t, cfg.RemoveFailedLayers)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "layer-events", cfg.KafkaSinkTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("FEED_URL", "wss://feed.example.com/socket")
	t.Setenv("FEED_MAX_BACKOFF", "30s")
	t.Setenv("FEED_SEND_QUEUE", "4")
	t.Setenv("FEED_TEST_MESSAGES", "true")
	t.Setenv("OVERLAY_BASE_URL", "https://cdn.example.com/overlays")
	t.Setenv("OVERLAY_TIMEOUT", "2s")
	t.Setenv("OVERLAY_CACHE_SIZE", "8")
	t.Setenv("DISPLAYABLE_PARAMETERS", "Ozone, Smoke ,")
	t.Setenv("REMOVE_FAILED_LAYERS", "true")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "wss://feed.example.com/socket", cfg.FeedURL)
	assert.Equal(t, 30*time.Second, cfg.FeedMaxBackoff)
	assert.Equal(t, 4, cfg.FeedSendQueue)
	assert.True(t, cfg.FeedTestMessages)
	assert.Equal(t, "https://cdn.example.com/overlays", cfg.OverlayBaseURL)
	assert.Equal(t, 2*time.Second, cfg.OverlayTimeout)
	assert.Equal(t, 8, cfg.OverlayCacheSize)
	assert.Equal(t, []string{"Ozone", "Smoke"}, cfg.DisplayableParameters)
	assert.True(t, cfg.RemoveFailedLayers)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidFeedURL(t *testing.T) {
	t.Setenv("FEED_URL", "http://localhost:8081/feed")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_URL")
}

func TestLoad_InvalidFeedMaxBackoff(t *testing.T) {
	t.Setenv("FEED_MAX_BACKOFF", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_MAX_BACKOFF")
}

func TestLoad_InvalidOverlayTimeout(t *testing.T) {
	t.Setenv("OVERLAY_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OVERLAY_TIMEOUT")
}

func TestLoad_InvalidSendQueue(t *testing.T) {
	t.Setenv("FEED_SEND_QUEUE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_SEND_QUEUE")
}

func TestLoad_InvalidCacheSize(t *testing.T) {
	t.Setenv("OVERLAY_CACHE_SIZE", "many")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OVERLAY_CACHE_SIZE")
}
