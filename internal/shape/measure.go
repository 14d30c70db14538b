package shape

import (
	"fmt"

	"github.com/paulmach/orb/geo"
)

// Unit is a display unit for measurements.
type Unit string

const (
	Metres        Unit = "m"
	Kilometres    Unit = "km"
	Miles         Unit = "mi"
	NauticalMiles Unit = "nmi"
	Feet          Unit = "ft"
)

var metresPer = map[Unit]float64{
	Metres:        1,
	Kilometres:    1000,
	Miles:         1609.344,
	NauticalMiles: 1852,
	Feet:          0.3048,
}

// ConvertLength converts metres into u.
func ConvertLength(metres float64, u Unit) (float64, error) {
	f, ok := metresPer[u]
	if !ok {
		return 0, fmt.Errorf("unknown length unit %q", u)
	}
	return metres / f, nil
}

// ConvertArea converts square metres into square u.
func ConvertArea(sqMetres float64, u Unit) (float64, error) {
	f, ok := metresPer[u]
	if !ok {
		return 0, fmt.Errorf("unknown area unit %q", u)
	}
	return sqMetres / (f * f), nil
}

// Measurement holds a shape's size in SI units.
type Measurement struct {
	Kind       Kind    `json:"kind"`
	PerimeterM float64 `json:"perimeterM"`
	AreaSqM    float64 `json:"areaSqM,omitempty"`
}

// Measure computes the geodesic perimeter (path length for polylines) and
// area of a shape.
func Measure(s Shape) Measurement {
	m := Measurement{
		Kind:       s.Kind(),
		PerimeterM: geo.Length(s.Outline()),
	}
	if s.Kind() != KindPolyline {
		m.AreaSqM = geo.Area(s.Geometry())
	}
	return m
}

// In returns the measurement converted into u.
func (m Measurement) In(u Unit) (perimeter, area float64, err error) {
	if perimeter, err = ConvertLength(m.PerimeterM, u); err != nil {
		return 0, 0, err
	}
	if area, err = ConvertArea(m.AreaSqM, u); err != nil {
		return 0, 0, err
	}
	return perimeter, area, nil
}
