package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feed socket configuration.
	FeedURL              string
	FeedMaxBackoff       time.Duration
	FeedSendQueue        int
	FeedTestMessages     bool
	FeedTestMessagesFile string

	// Overlay loading. OverlayBaseURL takes precedence over OverlayDir.
	OverlayDir       string
	OverlayBaseURL   string
	OverlayTimeout   time.Duration
	OverlayCacheSize int

	// Layer derivation.
	LegendsFile           string
	DisplayableParameters []string
	RemoveFailedLayers    bool

	// WMS capabilities, fetched through a proxy.
	WMSProxyURL        string
	WMSCapabilitiesURL string

	// Lifecycle event sink.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedMaxBackoff, err := parseDuration("FEED_MAX_BACKOFF", "5s")
	if err != nil {
		return nil, err
	}
	overlayTimeout, err := parseDuration("OVERLAY_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	sendQueue, err := parsePositiveInt("FEED_SEND_QUEUE", 16)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("OVERLAY_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedURL:              sharedcfg.EnvOrDefault("FEED_URL", "ws://localhost:8081/feed"),
		FeedMaxBackoff:       feedMaxBackoff,
		FeedSendQueue:        sendQueue,
		FeedTestMessages:     os.Getenv("FEED_TEST_MESSAGES") == "true",
		FeedTestMessagesFile: sharedcfg.EnvOrDefault("FEED_TEST_MESSAGES_FILE", "data/mock/announcements.json"),

		OverlayDir:       sharedcfg.EnvOrDefault("OVERLAY_DIR", "data/overlays"),
		OverlayBaseURL:   os.Getenv("OVERLAY_BASE_URL"),
		OverlayTimeout:   overlayTimeout,
		OverlayCacheSize: cacheSize,

		LegendsFile:           os.Getenv("LEGENDS_FILE"),
		DisplayableParameters: splitList(os.Getenv("DISPLAYABLE_PARAMETERS")),
		RemoveFailedLayers:    os.Getenv("REMOVE_FAILED_LAYERS") == "true",

		WMSProxyURL:        os.Getenv("WMS_PROXY_URL"),
		WMSCapabilitiesURL: os.Getenv("WMS_CAPABILITIES_URL"),

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "layer-events"),
	}

	if !strings.HasPrefix(cfg.FeedURL, "ws://") && !strings.HasPrefix(cfg.FeedURL, "wss://") {
		return nil, errors.New("FEED_URL must be a ws:// or wss:// URL")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
