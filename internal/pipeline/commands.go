package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/storm-data-layers/internal/catalog"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
	"github.com/couchcryptid/storm-data-layers/internal/shape"
)

// Layers returns the layer sequence, topmost first.
func (p *Pipeline) Layers(ctx context.Context) ([]layer.Layer, error) {
	var out []layer.Layer
	err := p.Do(ctx, func(_ context.Context, s *State) error {
		out = s.Layers.Layers()
		return nil
	})
	return out, err
}

// Catalog returns every catalog entry.
func (p *Pipeline) Catalog(ctx context.Context) ([]catalog.Entry, error) {
	var out []catalog.Entry
	err := p.Do(ctx, func(_ context.Context, s *State) error {
		out = s.Catalog.Entries()
		return nil
	})
	return out, err
}

// Legends returns the legends shown so far.
func (p *Pipeline) Legends(ctx context.Context) ([]domain.Legend, error) {
	var out []domain.Legend
	err := p.Do(ctx, func(_ context.Context, s *State) error {
		out = s.Layers.ShownLegends()
		return nil
	})
	return out, err
}

// AddOverlay adds a user layer for an overlay file and starts loading it.
func (p *Pipeline) AddOverlay(ctx context.Context, name, file string, opacity int) (layer.Layer, error) {
	if _, ok := overlay.FormatOf(file); !ok {
		return layer.Layer{}, &domain.ValidationError{Field: "file", Reason: fmt.Sprintf("unsupported overlay file %q", file)}
	}
	if name == "" {
		name = file
	}
	var out layer.Layer
	err := p.Do(ctx, func(loopCtx context.Context, s *State) error {
		id := "user:" + uuid.NewString()
		l, err := s.Layers.AddOverlayLayer(name, id, opacity, file)
		if err != nil {
			return err
		}
		s.Loader.Load(loopCtx, id, file)
		out = l
		return nil
	})
	return out, err
}

// AddDrawing puts a shape on the surface as a GeoJSON data source backed by a
// new layer.
func (p *Pipeline) AddDrawing(ctx context.Context, name string, sh shape.Shape) (layer.Layer, error) {
	id := "draw:" + uuid.NewString()
	if name == "" {
		name = string(sh.Kind())
	}
	fc := geojson.NewFeatureCollection()
	f := shape.Feature(sh)
	f.ID = id
	fc.Append(f)
	doc := &overlay.Document{
		Format:   overlay.FormatGeoJSON,
		Name:     name,
		Entities: []overlay.Entity{{ID: id, Name: name, Geometry: sh.Geometry()}},
		Features: fc,
	}

	var out layer.Layer
	err := p.Do(ctx, func(_ context.Context, s *State) error {
		if _, err := s.Layers.AddOverlayLayer(name, id, 100, id+".geojson"); err != nil {
			return err
		}
		s.Loader.Attach(id, doc)
		if err := s.Layers.MarkLoaded(id); err != nil {
			return err
		}
		out, _ = s.Layers.Layer(id)
		return nil
	})
	return out, err
}

// Move raises (up) or lowers a layer. It reports whether the layer moved.
func (p *Pipeline) Move(ctx context.Context, id string, up bool) (bool, error) {
	var moved bool
	err := p.Do(ctx, func(_ context.Context, s *State) error {
		var err error
		if up {
			moved, err = s.Layers.RaiseLayer(id)
		} else {
			moved, err = s.Layers.LowerLayer(id)
		}
		return err
	})
	return moved, err
}

// SetEnabled enables or disables a layer.
func (p *Pipeline) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return p.Do(ctx, func(_ context.Context, s *State) error {
		if enabled {
			return s.Layers.EnableLayer(id)
		}
		return s.Layers.DisableLayer(id)
	})
}

// SetOpacity changes a layer's opacity.
func (p *Pipeline) SetOpacity(ctx context.Context, id string, opacity int) error {
	return p.Do(ctx, func(_ context.Context, s *State) error {
		return s.Layers.SetOpacity(id, opacity)
	})
}

// Delete removes a layer and its data source.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	return p.Do(ctx, func(_ context.Context, s *State) error {
		return s.Layers.DeleteLayer(id)
	})
}

// Reset empties all state. The pipeline reports not ready until the next
// announcement arrives.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.Do(ctx, func(_ context.Context, s *State) error {
		s.Reset()
		p.ready.Store(false)
		return nil
	})
}
