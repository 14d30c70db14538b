package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/storm-data-layers/internal/catalog"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
	"github.com/couchcryptid/storm-data-layers/internal/observability"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
)

// State is the application state mutated by the owner loop: the product
// catalog, the layer sequence and the rendering surface with its loader.
type State struct {
	Catalog *catalog.Catalog
	Layers  *layer.Controller
	Surface *overlay.Collection
	Loader  *overlay.Loader
}

// NewState wires an empty catalog, controller and surface. Overlay files are
// read through fetcher.
func NewState(legends domain.LegendTable, fetcher overlay.Fetcher, logger *slog.Logger, metrics *observability.Metrics) *State {
	surface := overlay.NewCollection()
	loader := overlay.NewLoader(fetcher, surface, logger, metrics)
	return &State{
		Catalog: catalog.New(),
		Layers:  layer.NewController(legends, loader, logger),
		Surface: surface,
		Loader:  loader,
	}
}

// Reset abandons pending loads and empties the catalog, the layer sequence
// and the surface.
func (s *State) Reset() {
	s.Loader.CancelAll()
	s.Surface.Reset()
	s.Layers.Reset()
	s.Catalog.Reset()
}
