package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Legend associates a parameter-name substring with a legend image.
type Legend struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Image     string `json:"image" yaml:"image"`
}

// LegendTable is an ordered list of legends. The first legend whose parameter
// is a case-insensitive substring of a layer name wins.
type LegendTable []Legend

// DefaultLegends is the built-in legend table.
var DefaultLegends = LegendTable{
	{Parameter: "Temperature", Image: "images/legends/temperature.png"},
	{Parameter: "Pressure", Image: "images/legends/pressure.png"},
	{Parameter: "Precipitation", Image: "images/legends/precipitation.png"},
	{Parameter: "Humidity", Image: "images/legends/humidity.png"},
	{Parameter: "Wind", Image: "images/legends/wind.png"},
	{Parameter: "Reflectivity", Image: "images/legends/reflectivity.png"},
	{Parameter: "Cloud", Image: "images/legends/cloud.png"},
	{Parameter: "Visibility", Image: "images/legends/visibility.png"},
}

// Match returns the legend for a layer name.
func (t LegendTable) Match(name string) (Legend, bool) {
	lower := strings.ToLower(name)
	for _, l := range t {
		if l.Parameter == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(l.Parameter)) {
			return l, true
		}
	}
	return Legend{}, false
}

// Parameters returns the parameter names of every legend in table order.
func (t LegendTable) Parameters() []string {
	out := make([]string, 0, len(t))
	for _, l := range t {
		out = append(out, l.Parameter)
	}
	return out
}

// LoadLegends reads a YAML legend table of the form:
//
//	- parameter: Temperature
//	  image: images/legends/temperature.png
func LoadLegends(path string) (LegendTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legends: %w", err)
	}
	var table LegendTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse legends: %w", err)
	}
	for i, l := range table {
		if l.Parameter == "" || l.Image == "" {
			return nil, fmt.Errorf("legend %d: parameter and image are required", i)
		}
	}
	return table, nil
}
