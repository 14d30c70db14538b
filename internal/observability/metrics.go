package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_layers"

// Metrics holds the Prometheus counters, histograms, and gauges for the layer service.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	CycleDuration   prometheus.Histogram

	// Feed metrics.
	FeedConnected     prometheus.Gauge
	FeedFrames        prometheus.Counter
	FeedAnnouncements prometheus.Counter
	FeedDecodeErrors  prometheus.Counter
	FeedReconnects    prometheus.Counter
	FeedDroppedSends  prometheus.Counter

	// Catalog and layer metrics.
	CatalogEntries prometheus.Gauge
	CatalogUpserts *prometheus.CounterVec // labels: result={insert,replace,rejected,removed}
	Layers         prometheus.Gauge
	LayerEvents    *prometheus.CounterVec // labels: kind
	SyncWarnings   prometheus.Counter

	// Overlay metrics.
	OverlayLoads        *prometheus.CounterVec // labels: outcome={success,error,stale}
	OverlayLoadDuration prometheus.Histogram
	OverlayCache        *prometheus.CounterVec // labels: result={hit,miss}

	// Event sink metrics.
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline owner loop is active, 0 when shut down.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one owner-loop processing cycle.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connected",
			Help:      "1 while the feed socket is open.",
		}),
		FeedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_frames_total",
			Help:      "Total frames read from the feed socket.",
		}),
		FeedAnnouncements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_announcements_total",
			Help:      "Total announcements dispatched from the feed.",
		}),
		FeedDecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_decode_errors_total",
			Help:      "Total frames or batch elements that failed to decode.",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "Total reconnect attempts after a dial or read failure.",
		}),
		FeedDroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_sends_total",
			Help:      "Commands dropped because the send queue was full.",
		}),
		CatalogEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Number of products in the catalog.",
		}),
		CatalogUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_changes_total",
			Help:      "Catalog changes by result.",
		}, []string{"result"}),
		Layers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layers",
			Help:      "Number of layers in the layer sequence.",
		}),
		LayerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_events_total",
			Help:      "Layer lifecycle events by kind.",
		}, []string{"kind"}),
		SyncWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_warnings_total",
			Help:      "Divergences between the layer sequence and the surface collection.",
		}),
		OverlayLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_loads_total",
			Help:      "Overlay loads by outcome.",
		}, []string{"outcome"}),
		OverlayLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overlay_load_duration_seconds",
			Help:      "Overlay fetch and parse duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		OverlayCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_cache_total",
			Help:      "Overlay file cache lookups by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events written to the event sink.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed event sink writes.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.CycleDuration,
		m.FeedConnected,
		m.FeedFrames,
		m.FeedAnnouncements,
		m.FeedDecodeErrors,
		m.FeedReconnects,
		m.FeedDroppedSends,
		m.CatalogEntries,
		m.CatalogUpserts,
		m.Layers,
		m.LayerEvents,
		m.SyncWarnings,
		m.OverlayLoads,
		m.OverlayLoadDuration,
		m.OverlayCache,
		m.EventsPublished,
		m.PublishErrors,
	}
}
