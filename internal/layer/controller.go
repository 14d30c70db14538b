package layer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
)

// Unloader removes a layer's data source from the rendering surface. It
// returns a *domain.SyncWarning when the surface holds nothing for id.
type Unloader interface {
	Unload(id string) error
}

// Controller owns the layer sequence. It is not safe for concurrent use; the
// pipeline owner loop serializes access.
type Controller struct {
	layers   []*Layer
	legends  domain.LegendTable
	shown    []domain.Legend
	unloader Unloader
	events   []Event
	logger   *slog.Logger
}

// NewController creates an empty controller. unloader may be nil when no
// layer is ever overlay-backed.
func NewController(legends domain.LegendTable, unloader Unloader, logger *slog.Logger) *Controller {
	return &Controller{
		legends:  legends,
		unloader: unloader,
		logger:   logger,
	}
}

// AddLayer inserts a new layer at the top of the sequence and shows its
// legend, if any.
func (c *Controller) AddLayer(name, id string, opacity int, animated bool) (Layer, error) {
	if id == "" {
		return Layer{}, &domain.ValidationError{Field: "id", Reason: "required"}
	}
	if opacity < 0 || opacity > 100 {
		return Layer{}, &domain.ValidationError{Field: "opacity", Reason: "must be between 0 and 100"}
	}
	if c.index(id) >= 0 {
		return Layer{}, &domain.ValidationError{Field: "id", Reason: fmt.Sprintf("layer %q already exists", id)}
	}

	l := &Layer{
		ID:        id,
		Name:      name,
		Opacity:   opacity,
		Animated:  animated,
		State:     StateCreated,
		CreatedAt: domain.Now(),
	}
	if legend, ok := c.legends.Match(name); ok {
		l.Legend = &legend
		c.showLegend(legend)
	}

	c.layers = append([]*Layer{l}, c.layers...)
	c.emit(EventAdded, id, name)
	if len(c.layers) == 1 {
		c.emit(EventHasLayers, "", "")
	}
	return *l, nil
}

// AddOverlayLayer adds a layer backed by an overlay file. It stays in the
// created state until MarkLoaded is called.
func (c *Controller) AddOverlayLayer(name, id string, opacity int, file string) (Layer, error) {
	if file == "" {
		return Layer{}, &domain.ValidationError{Field: "file", Reason: "required for overlay layers"}
	}
	if _, err := c.AddLayer(name, id, opacity, false); err != nil {
		return Layer{}, err
	}
	l := c.layers[0]
	l.Overlay = true
	l.File = file
	return *l, nil
}

func (c *Controller) showLegend(legend domain.Legend) {
	for _, s := range c.shown {
		if s.Parameter == legend.Parameter {
			return
		}
	}
	c.shown = append(c.shown, legend)
	c.emit(EventLegendShown, "", legend.Parameter)
}

// RaiseLayer swaps the layer with its neighbour toward the top. It returns
// false without error when the layer is already topmost.
func (c *Controller) RaiseLayer(id string) (bool, error) {
	i, err := c.mustIndex(id)
	if err != nil {
		return false, err
	}
	if i == 0 {
		c.logger.Debug("raise is a no-op, layer already topmost", "layer_id", id)
		return false, nil
	}
	c.layers[i-1], c.layers[i] = c.layers[i], c.layers[i-1]
	c.emit(EventRaised, id, "")
	return true, nil
}

// LowerLayer swaps the layer with its neighbour away from the top. It returns
// false without error when the layer is already bottommost.
func (c *Controller) LowerLayer(id string) (bool, error) {
	i, err := c.mustIndex(id)
	if err != nil {
		return false, err
	}
	if i == len(c.layers)-1 {
		c.logger.Debug("lower is a no-op, layer already bottommost", "layer_id", id)
		return false, nil
	}
	c.layers[i+1], c.layers[i] = c.layers[i], c.layers[i+1]
	c.emit(EventLowered, id, "")
	return true, nil
}

// EnableLayer displays the layer. Enabling an enabled layer is a no-op.
func (c *Controller) EnableLayer(id string) error {
	return c.transition(id, StateEnabled, EventEnabled)
}

// DisableLayer hides the layer. Disabling a disabled layer is a no-op.
func (c *Controller) DisableLayer(id string) error {
	return c.transition(id, StateDisabled, EventDisabled)
}

func (c *Controller) transition(id string, to State, kind EventKind) error {
	l, err := c.get(id)
	if err != nil {
		return err
	}
	switch l.State {
	case to:
		return nil
	case StateErrored, StateDeleted:
		return fmt.Errorf("%w: %s layer %s cannot become %s", domain.ErrInvalidTransition, l.State, id, to)
	}
	l.State = to
	c.emit(kind, id, "")
	return nil
}

// SetOpacity changes the layer's opacity (0-100).
func (c *Controller) SetOpacity(id string, opacity int) error {
	if opacity < 0 || opacity > 100 {
		return &domain.ValidationError{Field: "opacity", Reason: "must be between 0 and 100"}
	}
	l, err := c.get(id)
	if err != nil {
		return err
	}
	if l.State == StateErrored {
		return fmt.Errorf("%w: layer %s is errored", domain.ErrInvalidTransition, id)
	}
	if l.Opacity == opacity {
		return nil
	}
	l.Opacity = opacity
	c.emit(EventOpacity, id, strconv.Itoa(opacity))
	return nil
}

// SetAnimated flags whether the layer aggregates a time series.
func (c *Controller) SetAnimated(id string, animated bool) error {
	l, err := c.get(id)
	if err != nil {
		return err
	}
	if l.Animated == animated {
		return nil
	}
	l.Animated = animated
	c.emit(EventAnimated, id, strconv.FormatBool(animated))
	return nil
}

// UpdateLayer records that the layer's backing product was re-announced.
// A non-empty file replaces the overlay file.
func (c *Controller) UpdateLayer(id, file string) error {
	l, err := c.get(id)
	if err != nil {
		return err
	}
	if file != "" && l.Overlay {
		l.File = file
	}
	c.emit(EventUpdated, id, file)
	return nil
}

// MarkLoaded records that the layer's overlay is on the surface. A created
// layer becomes enabled.
func (c *Controller) MarkLoaded(id string) error {
	l, err := c.get(id)
	if err != nil {
		return err
	}
	if l.State == StateErrored {
		return fmt.Errorf("%w: layer %s is errored", domain.ErrInvalidTransition, id)
	}
	l.Loaded = true
	c.emit(EventLoaded, id, l.File)
	if l.State == StateCreated {
		l.State = StateEnabled
		c.emit(EventEnabled, id, "")
	}
	return nil
}

// ErrorLayer marks the layer as failed and takes any data source it still has
// off the surface. Only the named layer is touched; an already errored layer
// keeps its first error.
func (c *Controller) ErrorLayer(id string, cause error) error {
	l, err := c.get(id)
	if err != nil {
		return err
	}
	if l.State == StateErrored {
		return nil
	}
	l.State = StateErrored
	l.Loaded = false
	if cause != nil {
		l.Error = cause.Error()
	}
	if l.Overlay && c.unloader != nil {
		// An errored layer without a source is the expected outcome.
		if err := c.unloader.Unload(id); err != nil && !isSyncWarning(err) {
			c.logger.Warn("unload errored layer failed", "layer_id", id, "error", err)
		}
	}
	c.emit(EventErrored, id, l.Error)
	return nil
}

// DeleteLayer unloads the layer's overlay and removes it from the sequence.
// A missing data source is logged as out of sync and does not block removal.
func (c *Controller) DeleteLayer(id string) error {
	i, err := c.mustIndex(id)
	if err != nil {
		return err
	}
	l := c.layers[i]

	if l.Overlay && c.unloader != nil {
		if err := c.unloader.Unload(id); err != nil {
			var warn *domain.SyncWarning
			if !errors.As(err, &warn) {
				return fmt.Errorf("unload layer %s: %w", id, err)
			}
			// Errored layers have already left the surface.
			if l.State != StateErrored {
				c.logger.Warn("layer out of sync with surface", "layer_id", id, "detail", warn.Detail)
			}
		}
	}

	l.State = StateDeleted
	c.layers = append(c.layers[:i], c.layers[i+1:]...)
	c.emit(EventDeleted, id, "")
	if !c.hasLayers() {
		c.emit(EventNoLayers, "", "")
	}
	return nil
}

func isSyncWarning(err error) bool {
	var warn *domain.SyncWarning
	return errors.As(err, &warn)
}

// Reconcile compares the overlay layers with the names of the data sources on
// the surface and reports each divergence. Layers still loading are skipped.
func (c *Controller) Reconcile(surface []string) []*domain.SyncWarning {
	onSurface := make(map[string]bool, len(surface))
	for _, name := range surface {
		onSurface[name] = true
	}

	var warnings []*domain.SyncWarning
	known := make(map[string]bool, len(c.layers))
	for _, l := range c.layers {
		known[l.ID] = true
		switch {
		case l.Overlay && l.Loaded && !onSurface[l.ID]:
			warnings = append(warnings, &domain.SyncWarning{LayerID: l.ID, Detail: "layer has no data source"})
		case l.State == StateErrored && onSurface[l.ID]:
			warnings = append(warnings, &domain.SyncWarning{LayerID: l.ID, Detail: "errored layer still has a data source"})
		}
	}
	for _, name := range surface {
		if !known[name] {
			warnings = append(warnings, &domain.SyncWarning{LayerID: name, Detail: "data source has no layer"})
		}
	}
	return warnings
}

// Drain returns the queued events in order and clears the queue.
func (c *Controller) Drain() []Event {
	out := c.events
	c.events = nil
	return out
}

// Layers returns a snapshot of the sequence, topmost first.
func (c *Controller) Layers() []Layer {
	out := make([]Layer, len(c.layers))
	for i, l := range c.layers {
		out[i] = *l
	}
	return out
}

// Layer returns a copy of the layer with the given id.
func (c *Controller) Layer(id string) (Layer, bool) {
	i := c.index(id)
	if i < 0 {
		return Layer{}, false
	}
	return *c.layers[i], true
}

// ShownLegends returns the legends shown so far, in the order they appeared.
func (c *Controller) ShownLegends() []domain.Legend {
	out := make([]domain.Legend, len(c.shown))
	copy(out, c.shown)
	return out
}

func (c *Controller) hasLayers() bool { return len(c.layers) > 0 }

// Len returns the number of layers.
func (c *Controller) Len() int { return len(c.layers) }

// Reset drops all layers, shown legends and pending events without unloading.
// When layers were present the queue is left holding a single no_layers event.
func (c *Controller) Reset() {
	had := c.hasLayers()
	c.layers = nil
	c.shown = nil
	c.events = nil
	if had {
		c.emit(EventNoLayers, "", "")
	}
}

func (c *Controller) emit(kind EventKind, id, detail string) {
	c.events = append(c.events, Event{Kind: kind, LayerID: id, Detail: detail, At: domain.Now()})
}

func (c *Controller) index(id string) int {
	for i, l := range c.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) mustIndex(id string) (int, error) {
	i := c.index(id)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", domain.ErrLayerNotFound, id)
	}
	return i, nil
}

func (c *Controller) get(id string) (*Layer, error) {
	i, err := c.mustIndex(id)
	if err != nil {
		return nil, err
	}
	return c.layers[i], nil
}
