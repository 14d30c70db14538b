// Package overlay fetches and parses overlay files and keeps the rendering
// surface's data-source collection.
package overlay

import (
	"path"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Format is an overlay file format.
type Format string

const (
	FormatCZML    Format = "czml"
	FormatKML     Format = "kml"
	FormatGeoJSON Format = "geojson"
)

// FormatOf picks the format from a file name's extension.
func FormatOf(file string) (Format, bool) {
	switch strings.ToLower(path.Ext(file)) {
	case ".czml":
		return FormatCZML, true
	case ".kml":
		return FormatKML, true
	case ".geojson", ".json":
		return FormatGeoJSON, true
	}
	return "", false
}

// Entity is one renderable item of a document: a CZML packet, a KML
// Placemark or a GeoJSON feature.
type Entity struct {
	ID       string       `json:"id,omitempty"`
	Name     string       `json:"name,omitempty"`
	Geometry orb.Geometry `json:"-"`
}

// Document is a parsed overlay file.
type Document struct {
	Format   Format   `json:"format"`
	Name     string   `json:"name,omitempty"`
	Entities []Entity `json:"entities"`

	// Interval is the CZML clock interval of a timed animation.
	Interval string `json:"interval,omitempty"`

	// Features holds the original collection of GeoJSON documents.
	Features *geojson.FeatureCollection `json:"-"`
}

// Bound returns the bounding box of all entity geometries.
func (d *Document) Bound() (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, e := range d.Entities {
		if e.Geometry == nil {
			continue
		}
		if !found {
			b = e.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(e.Geometry.Bound())
	}
	return b, found
}

// DataSource is an entry of the rendering surface. Name is the owning layer id.
type DataSource interface {
	Name() string
}

// Source is a data source built from a parsed document.
type Source struct {
	name string
	Doc  *Document
}

// NewSource wraps a document as a data source named after a layer id.
func NewSource(name string, doc *Document) *Source {
	return &Source{name: name, Doc: doc}
}

func (s *Source) Name() string { return s.name }

// Collection is the rendering surface's ordered data-source collection. It is
// not safe for concurrent use; only the pipeline owner loop mutates it.
type Collection struct {
	sources []DataSource
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Add appends a data source.
func (c *Collection) Add(ds DataSource) {
	c.sources = append(c.sources, ds)
}

// Remove deletes ds and reports whether it was present.
func (c *Collection) Remove(ds DataSource) bool {
	for i, s := range c.sources {
		if s == ds {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the data source at index i.
func (c *Collection) Get(i int) DataSource {
	return c.sources[i]
}

// Len returns the number of data sources.
func (c *Collection) Len() int { return len(c.sources) }

// Find returns the first data source named name by linear scan.
func (c *Collection) Find(name string) (DataSource, bool) {
	for i := 0; i < c.Len(); i++ {
		if ds := c.Get(i); ds.Name() == name {
			return ds, true
		}
	}
	return nil, false
}

// Names returns the names of all data sources in collection order.
func (c *Collection) Names() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Get(i).Name()
	}
	return out
}

// Reset removes every data source.
func (c *Collection) Reset() {
	c.sources = nil
}
