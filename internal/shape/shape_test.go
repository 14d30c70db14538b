package shape

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Circle(t *testing.T) {
	s, err := New(KindCircle).Center(orb.Point{-97.5, 35.4}).Radius(10_000).Build()
	require.NoError(t, err)
	assert.Equal(t, KindCircle, s.Kind())

	ring := s.Outline()
	require.Len(t, ring, defaultSegments+1)
	assert.Equal(t, ring[0], ring[len(ring)-1], "ring must be closed")

	for _, p := range ring[:defaultSegments] {
		assert.InDelta(t, 10_000, geo.Distance(orb.Point{-97.5, 35.4}, p), 20)
	}
}

func TestBuild_Ellipse(t *testing.T) {
	center := orb.Point{0, 0}
	s, err := New(KindEllipse).Center(center).Axes(20_000, 10_000).Rotation(0).Build()
	require.NoError(t, err)

	ring := s.Outline()
	// bearing 0 is along the semi-major axis
	assert.InDelta(t, 20_000, geo.Distance(center, ring[0]), 50)
	// a quarter turn later is the semi-minor axis
	assert.InDelta(t, 10_000, geo.Distance(center, ring[defaultSegments/4]), 50)
}

func TestBuild_PolygonClosesRing(t *testing.T) {
	s, err := New(KindPolygon).Positions(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{1, 1}).Build()
	require.NoError(t, err)

	p := s.(*Polygon)
	require.Len(t, p.Ring, 4)
	assert.True(t, p.Ring.Closed())
}

func TestBuild_Rectangle(t *testing.T) {
	s, err := New(KindRectangle).Positions(orb.Point{2, 3}, orb.Point{-1, 1}).Build()
	require.NoError(t, err)

	r := s.(*Rectangle)
	assert.Equal(t, orb.Point{-1, 1}, r.Extent.Min)
	assert.Equal(t, orb.Point{2, 3}, r.Extent.Max)
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"circle without center", New(KindCircle).Radius(5)},
		{"circle zero radius", New(KindCircle).Center(orb.Point{0, 0})},
		{"ellipse minor greater than major", New(KindEllipse).Center(orb.Point{0, 0}).Axes(1, 2)},
		{"polygon too few positions", New(KindPolygon).Positions(orb.Point{0, 0}, orb.Point{1, 1})},
		{"degenerate rectangle", New(KindRectangle).Positions(orb.Point{0, 0}, orb.Point{0, 1})},
		{"polyline single position", New(KindPolyline).Positions(orb.Point{0, 0})},
		{"latitude out of range", New(KindCircle).Center(orb.Point{0, 91}).Radius(5)},
		{"too few segments", New(KindCircle).Center(orb.Point{0, 0}).Radius(5).Segments(3)},
		{"unknown kind", New(Kind("star"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			assert.Error(t, err)
		})
	}
}

func TestMeasure_Circle(t *testing.T) {
	const r = 5_000.0
	s, err := New(KindCircle).Center(orb.Point{10, 45}).Radius(r).Segments(256).Build()
	require.NoError(t, err)

	m := Measure(s)
	assert.InEpsilon(t, 2*math.Pi*r, m.PerimeterM, 0.01)
	assert.InEpsilon(t, math.Pi*r*r, m.AreaSqM, 0.01)
}

func TestMeasure_PolylineHasNoArea(t *testing.T) {
	s, err := New(KindPolyline).Positions(orb.Point{0, 0}, orb.Point{0, 1}).Build()
	require.NoError(t, err)

	m := Measure(s)
	assert.Zero(t, m.AreaSqM)
	// one degree of latitude is ~111 km
	assert.InDelta(t, 111_195, m.PerimeterM, 500)
}

func TestConvert(t *testing.T) {
	km, err := ConvertLength(1852, Kilometres)
	require.NoError(t, err)
	assert.InDelta(t, 1.852, km, 1e-9)

	nmi, err := ConvertLength(1852, NauticalMiles)
	require.NoError(t, err)
	assert.InDelta(t, 1, nmi, 1e-9)

	sqmi, err := ConvertArea(1609.344*1609.344, Miles)
	require.NoError(t, err)
	assert.InDelta(t, 1, sqmi, 1e-9)

	_, err = ConvertLength(1, Unit("furlong"))
	assert.Error(t, err)
}

func TestMeasurement_In(t *testing.T) {
	m := Measurement{PerimeterM: 2000, AreaSqM: 1_000_000}
	perimeter, area, err := m.In(Kilometres)
	require.NoError(t, err)
	assert.InDelta(t, 2, perimeter, 1e-9)
	assert.InDelta(t, 1, area, 1e-9)
}

func TestFeature(t *testing.T) {
	s, err := New(KindRectangle).Positions(orb.Point{0, 0}, orb.Point{1, 1}).Build()
	require.NoError(t, err)

	f := Feature(s)
	assert.Equal(t, "rectangle", f.Properties["kind"])
	assert.Contains(t, f.Properties, "area_sq_m")
	assert.IsType(t, orb.Polygon{}, f.Geometry)
}
