package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProductType enumerates the kinds of products announced on the feed.
type ProductType string

const (
	TypeForecastModel ProductType = "ForecastModel"
	TypeObservation   ProductType = "Observation"
	TypeImagery       ProductType = "Imagery"
	TypeTrack         ProductType = "Track"
	TypeSocial        ProductType = "Social"
	TypeKML           ProductType = "KML"
	TypeGeoJSON       ProductType = "GeoJSON"
)

var knownTypes = map[ProductType]bool{
	TypeForecastModel: true,
	TypeObservation:   true,
	TypeImagery:       true,
	TypeTrack:         true,
	TypeSocial:        true,
	TypeKML:           true,
	TypeGeoJSON:       true,
}

// Known reports whether t is one of the product types the service understands.
func (t ProductType) Known() bool { return knownTypes[t] }

// Action is the catalog operation an announcement requests.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// ProductAnnouncement is a single product descriptor received from the feed.
// It is immutable once decoded.
type ProductAnnouncement struct {
	Type         ProductType `json:"type"`
	Action       Action      `json:"action,omitempty"`
	ModelName    string      `json:"modelName,omitempty"`
	ModelSource  string      `json:"modelSource,omitempty"`
	Location     string      `json:"location,omitempty"`
	Parameter    string      `json:"parameter,omitempty"`
	Level        string      `json:"level,omitempty"`
	ForecastTime int64       `json:"forecastTime,omitempty"` // epoch ms
	ModelTime    int64       `json:"modelTime,omitempty"`    // epoch ms
	Name         string      `json:"name,omitempty"`
	File         string      `json:"file,omitempty"` // overlay file for Track/KML/GeoJSON products
	UUID         string      `json:"uuid,omitempty"`
}

// ForecastAt returns the forecast valid time.
func (a ProductAnnouncement) ForecastAt() time.Time {
	return time.UnixMilli(a.ForecastTime).UTC()
}

// IsRemoval reports whether the announcement withdraws products.
func (a ProductAnnouncement) IsRemoval() bool {
	return a.Action == ActionRemove
}

// Identity is the composite key of a logical product, independent of the
// delivery instance (uuid).
type Identity struct {
	Type         ProductType `json:"type"`
	ModelName    string      `json:"modelName,omitempty"`
	ModelSource  string      `json:"modelSource,omitempty"`
	Location     string      `json:"location,omitempty"`
	Parameter    string      `json:"parameter,omitempty"`
	Level        string      `json:"level,omitempty"`
	ForecastTime int64       `json:"forecastTime,omitempty"`
	ModelTime    int64       `json:"modelTime,omitempty"`
	Name         string      `json:"name,omitempty"`
}

// Identity extracts the composite key of the announcement.
func (a ProductAnnouncement) Identity() Identity {
	return Identity{
		Type:         a.Type,
		ModelName:    a.ModelName,
		ModelSource:  a.ModelSource,
		Location:     a.Location,
		Parameter:    a.Parameter,
		Level:        a.Level,
		ForecastTime: a.ForecastTime,
		ModelTime:    a.ModelTime,
		Name:         a.Name,
	}
}

// String renders the identity as a stable pipe-separated key.
func (id Identity) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%d|%s",
		id.Type, id.ModelName, id.ModelSource, id.Location,
		id.Parameter, id.Level, id.ForecastTime, id.ModelTime, id.Name)
}

// Validate checks that the announcement carries the identity fields its type
// requires. Removal announcements are partial keys and only need a known type.
func (a ProductAnnouncement) Validate() error {
	if a.Type == "" {
		return &ValidationError{Field: "type", Reason: "required"}
	}
	if !a.Type.Known() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown product type %q", a.Type)}
	}
	switch a.Action {
	case "", ActionAdd:
	case ActionRemove:
		return nil
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", a.Action)}
	}

	if a.Type == TypeForecastModel {
		switch {
		case strings.TrimSpace(a.ModelName) == "":
			return &ValidationError{Field: "modelName", Reason: "required for forecast products"}
		case strings.TrimSpace(a.Parameter) == "":
			return &ValidationError{Field: "parameter", Reason: "required for forecast products"}
		case strings.TrimSpace(a.Level) == "":
			return &ValidationError{Field: "level", Reason: "required for forecast products"}
		case a.ForecastTime <= 0:
			return &ValidationError{Field: "forecastTime", Reason: "required for forecast products"}
		}
		return nil
	}

	if strings.TrimSpace(a.Name) == "" && strings.TrimSpace(a.Parameter) == "" {
		return &ValidationError{Field: "name", Reason: "name or parameter is required"}
	}
	return nil
}

// DecodeAnnouncements parses a feed frame holding either one announcement or
// an array of announcements. Elements are decoded independently: a malformed
// element yields an error in errs and does not prevent the others from being
// returned. Order is preserved.
func DecodeAnnouncements(payload []byte) (anns []ProductAnnouncement, errs []error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, []error{&ValidationError{Field: "payload", Reason: "empty frame"}}
	}

	var elems []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, []error{fmt.Errorf("decode announcement batch: %w", err)}
		}
	} else {
		elems = []json.RawMessage{trimmed}
	}

	anns = make([]ProductAnnouncement, 0, len(elems))
	for i, raw := range elems {
		var a ProductAnnouncement
		if err := json.Unmarshal(raw, &a); err != nil {
			errs = append(errs, fmt.Errorf("decode announcement %d: %w", i, err))
			continue
		}
		anns = append(anns, a)
	}
	return anns, errs
}
