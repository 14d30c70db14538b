// Package layer owns the ordered layer sequence shown on the map and the
// per-layer display state machine.
//
// States:
//
//	created -> enabled <-> disabled -> deleted
//	created | enabled | disabled -> errored (terminal until deleted)
//
// Index 0 of the sequence is the topmost layer.
package layer

import (
	"time"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
)

// State is a layer's position in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateEnabled
	StateDisabled
	StateErrored
	StateDeleted
)

var stateNames = [...]string{"created", "enabled", "disabled", "errored", "deleted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Layer is the UI-facing display unit.
type Layer struct {
	ID       string         `json:"id"`
	Name     string         `json:"layerName"`
	Opacity  int            `json:"opacity"`
	Animated bool           `json:"animated"`
	State    State          `json:"state"`
	Legend   *domain.Legend `json:"legend,omitempty"`

	// Overlay layers are backed by a data source on the rendering surface.
	Overlay bool   `json:"overlay"`
	File    string `json:"file,omitempty"`
	Loaded  bool   `json:"loaded"`

	// Error is the user-visible failure marker of an errored layer.
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Enabled reports whether the layer is currently displayed.
func (l Layer) Enabled() bool { return l.State == StateEnabled }

// EventKind names a lifecycle event.
type EventKind string

const (
	EventAdded       EventKind = "added"
	EventUpdated     EventKind = "updated"
	EventRaised      EventKind = "raised"
	EventLowered     EventKind = "lowered"
	EventEnabled     EventKind = "enabled"
	EventDisabled    EventKind = "disabled"
	EventOpacity     EventKind = "opacity"
	EventAnimated    EventKind = "animated"
	EventLoaded      EventKind = "loaded"
	EventErrored     EventKind = "errored"
	EventDeleted     EventKind = "deleted"
	EventLegendShown EventKind = "legend_shown"
	EventHasLayers   EventKind = "has_layers"
	EventNoLayers    EventKind = "no_layers"
)

// Event is a single lifecycle change, queued until drained.
type Event struct {
	Kind    EventKind `json:"kind"`
	LayerID string    `json:"layerId,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}
