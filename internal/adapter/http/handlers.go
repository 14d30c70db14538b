package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
	"github.com/couchcryptid/storm-data-layers/internal/shape"
)

const maxBodySize = 1 << 20

type addLayerRequest struct {
	Name    string `json:"name"`
	File    string `json:"file"`
	Opacity *int   `json:"opacity"`
}

type opacityRequest struct {
	Opacity *int `json:"opacity"`
}

type drawingRequest struct {
	Name      string       `json:"name"`
	Kind      shape.Kind   `json:"kind"`
	Center    *[2]float64  `json:"center"` // [lon, lat]
	Radius    float64      `json:"radius"`
	SemiMajor float64      `json:"semiMajor"`
	SemiMinor float64      `json:"semiMinor"`
	Rotation  float64      `json:"rotation"`
	Positions [][2]float64 `json:"positions"`
	Unit      shape.Unit   `json:"unit"`
}

type drawingResponse struct {
	Layer       layer.Layer       `json:"layer"`
	Measurement shape.Measurement `json:"measurement"`
	Unit        shape.Unit        `json:"unit"`
	Perimeter   float64           `json:"perimeter"`
	Area        float64           `json:"area"`
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := s.services.Layers.Layers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(layers))
}

func (s *Server) handleAddLayer(w http.ResponseWriter, r *http.Request) {
	var req addLayerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.File == "" {
		s.writeError(w, &domain.ValidationError{Field: "file", Reason: "required"})
		return
	}
	opacity := 100
	if req.Opacity != nil {
		opacity = *req.Opacity
	}

	l, err := s.services.Layers.AddOverlay(r.Context(), req.Name, req.File, opacity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleMove(up bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moved, err := s.services.Layers.Move(r.Context(), r.PathValue("id"), up)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
	}
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Layers.SetEnabled(r.Context(), r.PathValue("id"), enabled); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSetOpacity(w http.ResponseWriter, r *http.Request) {
	var req opacityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Opacity == nil {
		s.writeError(w, &domain.ValidationError{Field: "opacity", Reason: "required"})
		return
	}
	if err := s.services.Layers.SetOpacity(r.Context(), r.PathValue("id"), *req.Opacity); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Layers.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Layers.Reset(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("layer state reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLegends(w http.ResponseWriter, r *http.Request) {
	legends, err := s.services.Layers.Legends(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(legends))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.services.Layers.Catalog(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.services.Layers.Recent()))
}

func (s *Server) handleAddDrawing(w http.ResponseWriter, r *http.Request) {
	var req drawingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	unit := req.Unit
	if unit == "" {
		unit = shape.Kilometres
	}

	b := shape.New(req.Kind).
		Radius(req.Radius).
		Axes(req.SemiMajor, req.SemiMinor).
		Rotation(req.Rotation)
	if req.Center != nil {
		b.Center(orb.Point(*req.Center))
	}
	for _, p := range req.Positions {
		b.Positions(orb.Point(p))
	}
	sh, err := b.Build()
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "shape", Reason: err.Error()})
		return
	}

	m := shape.Measure(sh)
	perimeter, area, err := m.In(unit)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "unit", Reason: err.Error()})
		return
	}

	l, err := s.services.Layers.AddDrawing(r.Context(), req.Name, sh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, drawingResponse{
		Layer:       l,
		Measurement: m,
		Unit:        unit,
		Perimeter:   perimeter,
		Area:        area,
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if s.services.Capabilities == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "capabilities not configured"})
		return
	}
	layers, err := s.services.Capabilities.Fetch(r.Context())
	if err != nil {
		s.logger.Warn("fetch capabilities failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(layers))
}

func (s *Server) handleTestMessage(w http.ResponseWriter, r *http.Request) {
	if s.services.Feed == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "feed not configured"})
		return
	}
	if err := s.services.Feed.RequestTestMessage(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		vErr *domain.ValidationError
		tErr *domain.TransportError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrLayerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.As(err, &tErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
