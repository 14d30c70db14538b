package pipeline

import (
	"strings"

	"github.com/couchcryptid/storm-data-layers/internal/catalog"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
)

// BindingKind is how a catalog entry is presented as a layer.
type BindingKind int

const (
	// BindForecast groups every forecast time of a model field into one layer.
	BindForecast BindingKind = iota
	// BindOverlay backs the layer with an overlay file on the surface.
	BindOverlay
	// BindPlain is a layer without a data source, enabled on creation.
	BindPlain
)

// Binding is the layer a catalog entry belongs to.
type Binding struct {
	LayerID string
	Name    string
	Kind    BindingKind
	File    string
	Group   catalog.PartialKey
}

// Binder derives layers from catalog entries.
type Binder struct {
	legends     domain.LegendTable
	displayable map[string]bool
}

// NewBinder creates a binder. Parameters that match a legend are always
// displayable; extra lists additional displayable parameters.
func NewBinder(legends domain.LegendTable, extra []string) *Binder {
	d := make(map[string]bool, len(extra))
	for _, p := range extra {
		d[strings.ToLower(p)] = true
	}
	return &Binder{legends: legends, displayable: d}
}

// Displayable reports whether a parameter may become a layer.
func (b *Binder) Displayable(parameter string) bool {
	if parameter == "" {
		return false
	}
	if b.displayable[strings.ToLower(parameter)] {
		return true
	}
	_, ok := b.legends.Match(parameter)
	return ok
}

// Bind returns the layer binding for a, or false when a is not displayed.
func (b *Binder) Bind(a domain.ProductAnnouncement) (Binding, bool) {
	switch a.Type {
	case domain.TypeForecastModel:
		if !b.Displayable(a.Parameter) {
			return Binding{}, false
		}
		return Binding{
			LayerID: "fcst:" + strings.Join([]string{a.ModelName, a.ModelSource, a.Location, a.Parameter, a.Level}, "|"),
			Name:    strings.Join(nonEmpty(a.ModelName, a.Parameter, a.Level, a.Location), " "),
			Kind:    BindForecast,
			Group: catalog.PartialKey{
				Type:        a.Type,
				ModelName:   a.ModelName,
				ModelSource: a.ModelSource,
				Location:    a.Location,
				Parameter:   a.Parameter,
				Level:       a.Level,
			},
		}, true

	case domain.TypeImagery, domain.TypeObservation:
		if !b.Displayable(a.Parameter) && !b.Displayable(a.Name) {
			return Binding{}, false
		}
		return Binding{
			LayerID: "prod:" + a.Identity().String(),
			Name:    displayName(a),
			Kind:    BindPlain,
			Group:   exactKey(a),
		}, true
	}

	if a.File == "" {
		return Binding{}, false
	}
	if _, ok := overlay.FormatOf(a.File); !ok {
		return Binding{}, false
	}
	return Binding{
		LayerID: "prod:" + a.Identity().String(),
		Name:    displayName(a),
		Kind:    BindOverlay,
		File:    a.File,
		Group:   exactKey(a),
	}, true
}

func exactKey(a domain.ProductAnnouncement) catalog.PartialKey {
	k := catalog.KeyFromAnnouncement(a)
	k.Type = a.Type
	return k
}

func displayName(a domain.ProductAnnouncement) string {
	if a.Name != "" {
		return a.Name
	}
	return strings.Join(nonEmpty(a.Parameter, a.Location), " ")
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
