package overlay

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Parse decodes an overlay file in the given format.
func Parse(format Format, data []byte) (*Document, error) {
	switch format {
	case FormatCZML:
		return parseCZML(data)
	case FormatKML:
		return parseKML(data)
	case FormatGeoJSON:
		return parseGeoJSON(data)
	}
	return nil, fmt.Errorf("unsupported overlay format %q", format)
}

// CZML wire types. Only the fields needed to index the packets are decoded.

type czmlPacket struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Clock    *czmlClock      `json:"clock"`
	Position json.RawMessage `json:"position"`
}

type czmlClock struct {
	Interval string `json:"interval"`
}

type czmlPosition struct {
	CartographicDegrees []float64 `json:"cartographicDegrees"`
}

func parseCZML(data []byte) (*Document, error) {
	var packets []czmlPacket
	if err := json.Unmarshal(data, &packets); err != nil {
		return nil, fmt.Errorf("decode czml: %w", err)
	}
	if len(packets) == 0 || packets[0].ID != "document" {
		return nil, errors.New("czml: first packet must be the document packet")
	}

	doc := &Document{Format: FormatCZML, Name: packets[0].Name}
	if packets[0].Clock != nil {
		doc.Interval = packets[0].Clock.Interval
	}
	for _, p := range packets[1:] {
		if p.ID == "" {
			return nil, errors.New("czml: packet without id")
		}
		doc.Entities = append(doc.Entities, Entity{ID: p.ID, Name: p.Name, Geometry: czmlPoint(p.Position)})
	}
	return doc, nil
}

// czmlPoint returns the static position of a packet. Sampled positions
// (time-tagged quadruples) yield the first sample.
func czmlPoint(raw json.RawMessage) orb.Geometry {
	if len(raw) == 0 {
		return nil
	}
	var pos czmlPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil
	}
	deg := pos.CartographicDegrees
	switch {
	case len(deg) == 3:
		return orb.Point{deg[0], deg[1]}
	case len(deg) >= 4 && len(deg)%4 == 0:
		return orb.Point{deg[1], deg[2]}
	}
	return nil
}

// KML wire types.

type kmlPlacemark struct {
	ID         string         `xml:"id,attr"`
	Name       string         `xml:"name"`
	Point      *kmlCoords     `xml:"Point"`
	LineString *kmlCoords     `xml:"LineString"`
	Polygon    *kmlPolygon    `xml:"Polygon"`
	Multi      *kmlMultiGeoms `xml:"MultiGeometry"`
}

type kmlCoords struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlCoords `xml:"outerBoundaryIs>LinearRing"`
}

type kmlMultiGeoms struct {
	Points []kmlCoords `xml:"Point"`
}

func parseKML(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	doc := &Document{Format: FormatKML}
	var (
		stack   []string
		sawRoot bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode kml: %w", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.StartElement:
			if len(stack) == 0 && t.Name.Local != "kml" {
				return nil, fmt.Errorf("kml: unexpected root element <%s>", t.Name.Local)
			}
			sawRoot = true
			switch {
			case t.Name.Local == "Placemark":
				var pm kmlPlacemark
				if err := dec.DecodeElement(&pm, &t); err != nil {
					return nil, fmt.Errorf("decode kml placemark: %w", err)
				}
				geom, err := pm.geometry()
				if err != nil {
					return nil, fmt.Errorf("kml placemark %q: %w", pm.Name, err)
				}
				doc.Entities = append(doc.Entities, Entity{ID: pm.ID, Name: pm.Name, Geometry: geom})
			case t.Name.Local == "name" && doc.Name == "" && stack[len(stack)-1] == "Document":
				var name string
				if err := dec.DecodeElement(&name, &t); err != nil {
					return nil, fmt.Errorf("decode kml document name: %w", err)
				}
				doc.Name = strings.TrimSpace(name)
			default:
				stack = append(stack, t.Name.Local)
			}
		}
	}
	if !sawRoot {
		return nil, errors.New("kml: missing <kml> root element")
	}
	return doc, nil
}

func (pm kmlPlacemark) geometry() (orb.Geometry, error) {
	switch {
	case pm.Point != nil:
		pts, err := parseCoordinates(pm.Point.Coordinates)
		if err != nil || len(pts) == 0 {
			return nil, errors.New("invalid point coordinates")
		}
		return pts[0], nil
	case pm.LineString != nil:
		pts, err := parseCoordinates(pm.LineString.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.LineString(pts), nil
	case pm.Polygon != nil:
		pts, err := parseCoordinates(pm.Polygon.Outer.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.Polygon{orb.Ring(pts)}, nil
	case pm.Multi != nil:
		var mp orb.MultiPoint
		for _, p := range pm.Multi.Points {
			pts, err := parseCoordinates(p.Coordinates)
			if err != nil {
				return nil, err
			}
			mp = append(mp, pts...)
		}
		return mp, nil
	}
	return nil, nil
}

// parseCoordinates parses a KML coordinate tuple list: "lon,lat[,alt] ...".
func parseCoordinates(s string) ([]orb.Point, error) {
	var pts []orb.Point
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid coordinate tuple %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q", parts[1])
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts, nil
}

func parseGeoJSON(data []byte) (*Document, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	doc := &Document{Format: FormatGeoJSON, Features: fc}
	for i, f := range fc.Features {
		e := Entity{Geometry: f.Geometry}
		if f.ID != nil {
			e.ID = fmt.Sprint(f.ID)
		} else {
			e.ID = strconv.Itoa(i)
		}
		if name, ok := f.Properties["name"].(string); ok {
			e.Name = name
		}
		doc.Entities = append(doc.Entities, e)
	}
	return doc, nil
}
