package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/observability"
)

// Result is the outcome of one asynchronous load. It must be handed back to
// Apply on the goroutine that owns the surface.
type Result struct {
	LayerID    string
	File       string
	Generation uint64
	Doc        *Document
	Err        error
	Duration   time.Duration
}

type pendingLoad struct {
	gen    uint64
	cancel context.CancelFunc
}

// invalidator is implemented by fetchers that cache file contents.
type invalidator interface {
	Invalidate(file string)
}

// Loader fetches and parses overlay files in the background and applies the
// results to the surface collection. Every load carries a generation number;
// a result whose generation is no longer pending (the layer was deleted or
// reloaded meanwhile) is discarded by Apply.
type Loader struct {
	fetcher Fetcher
	surface *Collection
	results chan Result
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	pending map[string]pendingLoad
	gen     uint64
}

// NewLoader creates a loader that adds data sources to surface.
func NewLoader(fetcher Fetcher, surface *Collection, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		fetcher: fetcher,
		surface: surface,
		results: make(chan Result, 16),
		logger:  logger,
		metrics: metrics,
		pending: make(map[string]pendingLoad),
	}
}

// Results delivers completed loads.
func (l *Loader) Results() <-chan Result {
	return l.results
}

// Load starts fetching file for layer id. A load already pending for id is
// cancelled and superseded. Cancelling ctx abandons the load.
func (l *Loader) Load(ctx context.Context, id, file string) {
	l.mu.Lock()
	if p, ok := l.pending[id]; ok {
		p.cancel()
	}
	l.gen++
	gen := l.gen
	loadCtx, cancel := context.WithCancel(ctx)
	l.pending[id] = pendingLoad{gen: gen, cancel: cancel}
	l.mu.Unlock()

	l.logger.Debug("overlay load started", "layer_id", id, "file", file, "generation", gen)
	go l.run(loadCtx, id, file, gen)
}

// Reload drops any cached copy of file and loads it again.
func (l *Loader) Reload(ctx context.Context, id, file string) {
	if inv, ok := l.fetcher.(invalidator); ok {
		inv.Invalidate(file)
	}
	l.Load(ctx, id, file)
}

func (l *Loader) run(ctx context.Context, id, file string, gen uint64) {
	start := time.Now()
	r := Result{LayerID: id, File: file, Generation: gen}

	doc, err := l.fetchAndParse(ctx, file)
	r.Duration = time.Since(start)
	if err != nil {
		r.Err = &domain.LoadError{LayerID: id, File: file, Err: err}
	} else {
		r.Doc = doc
	}

	select {
	case l.results <- r:
	case <-ctx.Done():
	}
}

func (l *Loader) fetchAndParse(ctx context.Context, file string) (doc *Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("overlay loader panic: %v", p)
		}
	}()

	format, ok := FormatOf(file)
	if !ok {
		return nil, fmt.Errorf("unsupported overlay file %q", file)
	}
	data, err := l.fetcher.Fetch(ctx, file)
	if err != nil {
		return nil, err
	}
	return Parse(format, data)
}

// Apply adds a successful result's data source to the surface, replacing any
// previous source of the same layer. Stale results are dropped and reported
// as not applied. A failed load is returned as a *domain.LoadError.
func (l *Loader) Apply(r Result) (bool, error) {
	l.mu.Lock()
	p, ok := l.pending[r.LayerID]
	if !ok || p.gen != r.Generation {
		l.mu.Unlock()
		l.metrics.OverlayLoads.WithLabelValues("stale").Inc()
		l.logger.Debug("stale overlay result dropped", "layer_id", r.LayerID, "generation", r.Generation)
		return false, nil
	}
	delete(l.pending, r.LayerID)
	l.mu.Unlock()
	p.cancel()

	l.metrics.OverlayLoadDuration.Observe(r.Duration.Seconds())
	if r.Err != nil {
		l.metrics.OverlayLoads.WithLabelValues("error").Inc()
		return false, r.Err
	}

	l.Attach(r.LayerID, r.Doc)
	l.metrics.OverlayLoads.WithLabelValues("success").Inc()
	l.logger.Info("overlay loaded", "layer_id", r.LayerID, "file", r.File, "entities", len(r.Doc.Entities))
	return true, nil
}

// Attach puts a document on the surface under layer id, replacing any
// previous source with that name.
func (l *Loader) Attach(id string, doc *Document) {
	if old, ok := l.surface.Find(id); ok {
		l.surface.Remove(old)
	}
	l.surface.Add(NewSource(id, doc))
}

// Cancel abandons a pending load for id and reports whether one existed.
func (l *Loader) Cancel(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pending[id]
	if !ok {
		return false
	}
	p.cancel()
	delete(l.pending, id)
	return true
}

// Unload cancels any pending load for id and removes its data source from
// the surface. When there is neither, it returns a *domain.SyncWarning.
func (l *Loader) Unload(id string) error {
	cancelled := l.Cancel(id)

	ds, ok := l.surface.Find(id)
	if !ok {
		if cancelled {
			return nil
		}
		return &domain.SyncWarning{LayerID: id, Detail: "no data source on surface"}
	}
	l.surface.Remove(ds)
	return nil
}

// CancelAll abandons every pending load.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, p := range l.pending {
		p.cancel()
		delete(l.pending, id)
	}
}
