package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLayerNotFound is returned when an operation names a layer id that is
	// not in the layer sequence.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrInvalidTransition is returned when a layer operation is not allowed
	// from the layer's current state.
	ErrInvalidTransition = errors.New("invalid layer state transition")
)

// ValidationError reports a malformed announcement or layer request. It is
// raised at the boundary and never changes state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// LoadError reports an overlay fetch or parse failure for a single layer.
type LoadError struct {
	LayerID string
	File    string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load overlay %s (%s): %v", e.LayerID, e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SyncWarning reports a divergence between the layer sequence and the
// rendering surface's data-source collection.
type SyncWarning struct {
	LayerID string
	Detail  string
}

func (e *SyncWarning) Error() string {
	return fmt.Sprintf("out of sync: layer %s: %s", e.LayerID, e.Detail)
}

// TransportError reports a feed connection or framing failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
