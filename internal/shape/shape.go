// Package shape builds the drawing primitives users place on the map and
// measures them. Shapes are validated once at construction; a built shape is
// always renderable.
package shape

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// Kind names a shape variant.
type Kind string

const (
	KindCircle    Kind = "circle"
	KindEllipse   Kind = "ellipse"
	KindPolygon   Kind = "polygon"
	KindRectangle Kind = "rectangle"
	KindPolyline  Kind = "polyline"
)

// defaultSegments is the number of ring vertices used to approximate curves.
const defaultSegments = 64

// HasGeometry is implemented by shapes with a filled geometry.
type HasGeometry interface {
	Geometry() orb.Geometry
}

// HasOutlineGeometry is implemented by shapes with an outline.
type HasOutlineGeometry interface {
	Outline() orb.LineString
}

// Shape is a built drawing primitive.
type Shape interface {
	HasGeometry
	HasOutlineGeometry
	Kind() Kind
}

// Circle is a geodesic circle.
type Circle struct {
	Center   orb.Point
	Radius   float64 // metres
	segments int
}

func (c *Circle) Kind() Kind { return KindCircle }

func (c *Circle) Geometry() orb.Geometry { return orb.Polygon{c.ring()} }

func (c *Circle) Outline() orb.LineString { return orb.LineString(c.ring()) }

func (c *Circle) ring() orb.Ring {
	return ellipseRing(c.Center, c.Radius, c.Radius, 0, c.segments)
}

// Ellipse is a geodesic ellipse. Rotation is the bearing of the semi-major
// axis in degrees clockwise from north.
type Ellipse struct {
	Center    orb.Point
	SemiMajor float64 // metres
	SemiMinor float64 // metres
	Rotation  float64
	segments  int
}

func (e *Ellipse) Kind() Kind { return KindEllipse }

func (e *Ellipse) Geometry() orb.Geometry { return orb.Polygon{e.ring()} }

func (e *Ellipse) Outline() orb.LineString { return orb.LineString(e.ring()) }

func (e *Ellipse) ring() orb.Ring {
	return ellipseRing(e.Center, e.SemiMajor, e.SemiMinor, e.Rotation, e.segments)
}

// Polygon is a closed ring of positions.
type Polygon struct {
	Ring orb.Ring
}

func (p *Polygon) Kind() Kind { return KindPolygon }

func (p *Polygon) Geometry() orb.Geometry { return orb.Polygon{p.Ring} }

func (p *Polygon) Outline() orb.LineString { return orb.LineString(p.Ring) }

// Rectangle is an extent in longitude/latitude.
type Rectangle struct {
	Extent orb.Bound
}

func (r *Rectangle) Kind() Kind { return KindRectangle }

func (r *Rectangle) Geometry() orb.Geometry { return r.Extent.ToPolygon() }

func (r *Rectangle) Outline() orb.LineString { return orb.LineString(r.Extent.ToRing()) }

// Polyline is an open path, used for distance measurement.
type Polyline struct {
	Path orb.LineString
}

func (p *Polyline) Kind() Kind { return KindPolyline }

func (p *Polyline) Geometry() orb.Geometry { return p.Path }

func (p *Polyline) Outline() orb.LineString { return p.Path }

// ellipseRing approximates an ellipse with n vertices, closing the ring.
func ellipseRing(center orb.Point, a, b, rotation float64, n int) orb.Ring {
	if n <= 0 {
		n = defaultSegments
	}
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		bs, bc := b*math.Cos(theta), a*math.Sin(theta)
		r := a * b / math.Sqrt(bs*bs+bc*bc)
		bearing := rotation + theta*180/math.Pi
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, r))
	}
	return append(ring, ring[0])
}

// Builder collects shape attributes and validates them in Build.
type Builder struct {
	kind      Kind
	center    *orb.Point
	radius    float64
	semiMajor float64
	semiMinor float64
	rotation  float64
	positions []orb.Point
	segments  int
}

// New starts building a shape of the given kind.
func New(kind Kind) *Builder {
	return &Builder{kind: kind, segments: defaultSegments}
}

func (b *Builder) Center(p orb.Point) *Builder {
	b.center = &p
	return b
}

func (b *Builder) Radius(metres float64) *Builder {
	b.radius = metres
	return b
}

func (b *Builder) Axes(semiMajor, semiMinor float64) *Builder {
	b.semiMajor, b.semiMinor = semiMajor, semiMinor
	return b
}

func (b *Builder) Rotation(degrees float64) *Builder {
	b.rotation = degrees
	return b
}

func (b *Builder) Positions(pts ...orb.Point) *Builder {
	b.positions = append(b.positions, pts...)
	return b
}

func (b *Builder) Segments(n int) *Builder {
	b.segments = n
	return b
}

var errCenterRequired = errors.New("center is required")

// Build validates the collected attributes and returns the shape.
func (b *Builder) Build() (Shape, error) {
	for _, p := range b.positions {
		if err := validPoint(p); err != nil {
			return nil, err
		}
	}
	if b.center != nil {
		if err := validPoint(*b.center); err != nil {
			return nil, err
		}
	}
	if b.segments < 8 {
		return nil, fmt.Errorf("segments must be at least 8, got %d", b.segments)
	}

	switch b.kind {
	case KindCircle:
		if b.center == nil {
			return nil, errCenterRequired
		}
		if b.radius <= 0 {
			return nil, errors.New("radius must be positive")
		}
		return &Circle{Center: *b.center, Radius: b.radius, segments: b.segments}, nil

	case KindEllipse:
		if b.center == nil {
			return nil, errCenterRequired
		}
		if b.semiMinor <= 0 || b.semiMajor < b.semiMinor {
			return nil, errors.New("ellipse axes must satisfy semiMajor >= semiMinor > 0")
		}
		return &Ellipse{Center: *b.center, SemiMajor: b.semiMajor, SemiMinor: b.semiMinor, Rotation: b.rotation, segments: b.segments}, nil

	case KindPolygon:
		if len(b.positions) < 3 {
			return nil, errors.New("polygon needs at least 3 positions")
		}
		ring := orb.Ring(append([]orb.Point(nil), b.positions...))
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		return &Polygon{Ring: ring}, nil

	case KindRectangle:
		if len(b.positions) != 2 {
			return nil, errors.New("rectangle needs exactly 2 corner positions")
		}
		bound := orb.MultiPoint(b.positions).Bound()
		if bound.Min[0] == bound.Max[0] || bound.Min[1] == bound.Max[1] {
			return nil, errors.New("rectangle corners must differ in longitude and latitude")
		}
		return &Rectangle{Extent: bound}, nil

	case KindPolyline:
		if len(b.positions) < 2 {
			return nil, errors.New("polyline needs at least 2 positions")
		}
		return &Polyline{Path: orb.LineString(append([]orb.Point(nil), b.positions...))}, nil
	}
	return nil, fmt.Errorf("unknown shape kind %q", b.kind)
}

func validPoint(p orb.Point) error {
	if p.Lon() < -180 || p.Lon() > 180 || p.Lat() < -90 || p.Lat() > 90 {
		return fmt.Errorf("position %v out of range", p)
	}
	return nil
}

// Feature renders the shape as a GeoJSON feature carrying its measurements.
func Feature(s Shape) *geojson.Feature {
	f := geojson.NewFeature(s.Geometry())
	m := Measure(s)
	f.Properties["kind"] = string(s.Kind())
	f.Properties["perimeter_m"] = m.PerimeterM
	if m.AreaSqM > 0 {
		f.Properties["area_sq_m"] = m.AreaSqM
	}
	return f
}
