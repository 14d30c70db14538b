package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-layers/internal/catalog"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
	"github.com/couchcryptid/storm-data-layers/internal/observability"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
)

// EventSink receives the lifecycle events drained after each cycle.
type EventSink interface {
	Publish(ctx context.Context, events []layer.Event) error
}

// recentEvents is the number of published events kept for inspection.
const recentEvents = 256

type command struct {
	fn    func(context.Context, *State) error
	reply chan error
}

// Options tunes the pipeline.
type Options struct {
	// RemoveFailedLayers deletes a layer whose overlay failed to load instead
	// of leaving it in the errored state.
	RemoveFailedLayers bool
}

// Pipeline owns the application state. Feed announcements, commands and
// overlay load results are applied one at a time on the goroutine running Run.
type Pipeline struct {
	state   *State
	binder  *Binder
	sink    EventSink
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options

	inbox    chan domain.ProductAnnouncement
	commands chan command
	ready    atomic.Bool

	mu     sync.Mutex
	recent []layer.Event
}

// New creates a Pipeline over state.
func New(state *State, binder *Binder, sink EventSink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		state:    state,
		binder:   binder,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		inbox:    make(chan domain.ProductAnnouncement),
		commands: make(chan command),
	}
}

// CheckReadiness returns nil once the pipeline has processed an announcement,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any announcements yet")
	}
	return nil
}

// Submit hands an announcement to the owner loop and waits until it has been
// accepted. Announcements are applied in submission order.
func (p *Pipeline) Submit(ctx context.Context, a domain.ProductAnnouncement) error {
	select {
	case p.inbox <- a:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the owner loop and returns its error. fn receives the owner
// loop's context, which outlives ctx; overlay loads started by fn use it.
func (p *Pipeline) Do(ctx context.Context, fn func(context.Context, *State) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case p.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the owner loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer p.state.Loader.CancelAll()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil

		case a := <-p.inbox:
			start := time.Now()
			p.handleAnnouncement(ctx, a)
			p.ready.Store(true)
			p.endCycle(ctx, start)

		case cmd := <-p.commands:
			start := time.Now()
			cmd.reply <- p.runCommand(ctx, cmd.fn)
			p.endCycle(ctx, start)

		case r := <-p.state.Loader.Results():
			start := time.Now()
			p.handleResult(r)
			p.endCycle(ctx, start)
		}
	}
}

func (p *Pipeline) runCommand(ctx context.Context, fn func(context.Context, *State) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("command panicked", "panic", r)
			err = errors.New("internal error")
		}
	}()
	return fn(ctx, p.state)
}

// handleAnnouncement applies one feed announcement to the catalog and the
// layer sequence.
func (p *Pipeline) handleAnnouncement(ctx context.Context, a domain.ProductAnnouncement) {
	if a.IsRemoval() {
		p.handleRemoval(a)
		return
	}

	entry, inserted, err := p.state.Catalog.Upsert(a)
	if err != nil {
		p.logger.Warn("announcement rejected", "error", err, "type", a.Type, "uuid", a.UUID)
		p.metrics.CatalogUpserts.WithLabelValues("rejected").Inc()
		return
	}
	if inserted {
		p.metrics.CatalogUpserts.WithLabelValues("insert").Inc()
	} else {
		p.metrics.CatalogUpserts.WithLabelValues("replace").Inc()
	}

	b, ok := p.binder.Bind(entry.ProductAnnouncement)
	if !ok {
		p.logger.Debug("product not displayable", "type", entry.Type, "parameter", entry.Parameter, "name", entry.Name)
		return
	}
	if err := p.bind(ctx, b, inserted); err != nil {
		p.logger.Warn("bind layer failed", "error", err, "layer_id", b.LayerID)
	}
}

func (p *Pipeline) bind(ctx context.Context, b Binding, inserted bool) error {
	ctl := p.state.Layers
	if l, exists := ctl.Layer(b.LayerID); exists {
		switch b.Kind {
		case BindForecast:
			if err := ctl.SetAnimated(b.LayerID, p.animated(b)); err != nil {
				return err
			}
			if inserted {
				return nil
			}
			return ctl.UpdateLayer(b.LayerID, "")
		case BindOverlay:
			if err := ctl.UpdateLayer(b.LayerID, b.File); err != nil {
				return err
			}
			// An errored layer stays off the surface until it is deleted.
			if l.State == layer.StateErrored {
				p.logger.Debug("errored layer not reloaded", "layer_id", b.LayerID, "file", b.File)
				return nil
			}
			p.state.Loader.Reload(ctx, b.LayerID, b.File)
			return nil
		default:
			return ctl.UpdateLayer(b.LayerID, "")
		}
	}

	switch b.Kind {
	case BindOverlay:
		if _, err := ctl.AddOverlayLayer(b.Name, b.LayerID, 100, b.File); err != nil {
			return err
		}
		p.state.Loader.Load(ctx, b.LayerID, b.File)
		return nil
	case BindForecast:
		if _, err := ctl.AddLayer(b.Name, b.LayerID, 100, p.animated(b)); err != nil {
			return err
		}
	default:
		if _, err := ctl.AddLayer(b.Name, b.LayerID, 100, false); err != nil {
			return err
		}
	}
	return ctl.EnableLayer(b.LayerID)
}

// members returns the catalog entries bound to b's layer.
func (p *Pipeline) members(b Binding) []catalog.Entry {
	var out []catalog.Entry
	for _, e := range p.state.Catalog.Find(b.Group) {
		if eb, ok := p.binder.Bind(e.ProductAnnouncement); ok && eb.LayerID == b.LayerID {
			out = append(out, e)
		}
	}
	return out
}

// animated reports whether a forecast layer spans more than one forecast time.
func (p *Pipeline) animated(b Binding) bool {
	times := make(map[int64]struct{})
	for _, e := range p.members(b) {
		times[e.ForecastTime] = struct{}{}
	}
	return len(times) > 1
}

// handleRemoval removes matching catalog entries and deletes every layer left
// without entries.
func (p *Pipeline) handleRemoval(a domain.ProductAnnouncement) {
	if err := a.Validate(); err != nil {
		p.logger.Warn("removal rejected", "error", err)
		p.metrics.CatalogUpserts.WithLabelValues("rejected").Inc()
		return
	}
	key := catalog.KeyFromAnnouncement(a)
	removed := p.state.Catalog.RemoveMatching(key)
	if len(removed) == 0 {
		p.logger.Debug("removal matched nothing", "type", a.Type, "name", a.Name, "parameter", a.Parameter)
		return
	}
	p.metrics.CatalogUpserts.WithLabelValues("removed").Add(float64(len(removed)))

	seen := make(map[string]bool)
	for _, e := range removed {
		b, ok := p.binder.Bind(e.ProductAnnouncement)
		if !ok || seen[b.LayerID] {
			continue
		}
		seen[b.LayerID] = true
		if _, exists := p.state.Layers.Layer(b.LayerID); !exists {
			continue
		}

		if len(p.members(b)) > 0 {
			if b.Kind == BindForecast {
				if err := p.state.Layers.SetAnimated(b.LayerID, p.animated(b)); err != nil {
					p.logger.Warn("update animation failed", "error", err, "layer_id", b.LayerID)
				}
			}
			continue
		}
		if err := p.state.Layers.DeleteLayer(b.LayerID); err != nil {
			p.logger.Warn("delete layer failed", "error", err, "layer_id", b.LayerID)
		}
	}
}

// handleResult applies a finished overlay load.
func (p *Pipeline) handleResult(r overlay.Result) {
	applied, err := p.state.Loader.Apply(r)
	if err != nil {
		p.logger.Warn("overlay load failed", "error", err, "layer_id", r.LayerID, "file", r.File)
		if lerr := p.state.Layers.ErrorLayer(r.LayerID, err); lerr != nil {
			p.logger.Warn("mark layer errored failed", "error", lerr, "layer_id", r.LayerID)
			return
		}
		if p.opts.RemoveFailedLayers {
			if derr := p.state.Layers.DeleteLayer(r.LayerID); derr != nil {
				p.logger.Warn("remove failed layer", "error", derr, "layer_id", r.LayerID)
			}
		}
		return
	}
	if !applied {
		return
	}
	if err := p.state.Layers.MarkLoaded(r.LayerID); err != nil {
		p.logger.Warn("mark layer loaded failed", "error", err, "layer_id", r.LayerID)
	}
}

// endCycle publishes the drained lifecycle events, refreshes gauges and
// checks the layer sequence against the surface.
func (p *Pipeline) endCycle(ctx context.Context, start time.Time) {
	events := p.state.Layers.Drain()
	if len(events) > 0 {
		for _, e := range events {
			p.metrics.LayerEvents.WithLabelValues(string(e.Kind)).Inc()
		}
		p.remember(events)
		if err := p.sink.Publish(ctx, events); err != nil {
			p.logger.Error("publish lifecycle events failed", "error", err, "count", len(events))
			p.metrics.PublishErrors.Inc()
		} else {
			p.metrics.EventsPublished.Add(float64(len(events)))
		}
	}

	for _, w := range p.state.Layers.Reconcile(p.state.Surface.Names()) {
		p.logger.Warn("layer out of sync with surface", "layer_id", w.LayerID, "detail", w.Detail)
		p.metrics.SyncWarnings.Inc()
	}

	p.metrics.CatalogEntries.Set(float64(p.state.Catalog.Len()))
	p.metrics.Layers.Set(float64(p.state.Layers.Len()))
	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
}

func (p *Pipeline) remember(events []layer.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = append(p.recent, events...)
	if n := len(p.recent) - recentEvents; n > 0 {
		p.recent = append([]layer.Event(nil), p.recent[n:]...)
	}
}

// Recent returns the most recently published lifecycle events, oldest first.
func (p *Pipeline) Recent() []layer.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]layer.Event, len(p.recent))
	copy(out, p.recent)
	return out
}
