package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-data-layers/internal/capabilities"
	"github.com/couchcryptid/storm-data-layers/internal/catalog"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/layer"
	"github.com/couchcryptid/storm-data-layers/internal/shape"
)

// LayerService is the layer state behind the API.
type LayerService interface {
	Layers(ctx context.Context) ([]layer.Layer, error)
	Catalog(ctx context.Context) ([]catalog.Entry, error)
	Legends(ctx context.Context) ([]domain.Legend, error)
	AddOverlay(ctx context.Context, name, file string, opacity int) (layer.Layer, error)
	AddDrawing(ctx context.Context, name string, s shape.Shape) (layer.Layer, error)
	Move(ctx context.Context, id string, up bool) (bool, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SetOpacity(ctx context.Context, id string, opacity int) error
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Recent() []layer.Event
}

// CapabilitiesFetcher lists the layers a WMS server offers.
type CapabilitiesFetcher interface {
	Fetch(ctx context.Context) ([]capabilities.Layer, error)
}

// TestMessageRequester asks the feed for a test announcement batch.
type TestMessageRequester interface {
	RequestTestMessage(ctx context.Context) error
}

// Services are the optional backends of the API routes. A nil Capabilities
// or Feed disables its route.
type Services struct {
	Layers       LayerService
	Capabilities CapabilitiesFetcher
	Feed         TestMessageRequester
}

// Server exposes the layer API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	services   Services
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the health and layer routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, services Services, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		services: services,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /layers", s.handleListLayers)
	mux.HandleFunc("POST /layers", s.handleAddLayer)
	mux.HandleFunc("POST /layers/{id}/raise", s.handleMove(true))
	mux.HandleFunc("POST /layers/{id}/lower", s.handleMove(false))
	mux.HandleFunc("POST /layers/{id}/enable", s.handleSetEnabled(true))
	mux.HandleFunc("POST /layers/{id}/disable", s.handleSetEnabled(false))
	mux.HandleFunc("PUT /layers/{id}/opacity", s.handleSetOpacity)
	mux.HandleFunc("DELETE /layers/{id}", s.handleDeleteLayer)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /legends", s.handleLegends)
	mux.HandleFunc("GET /catalog", s.handleCatalog)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /drawings", s.handleAddDrawing)
	mux.HandleFunc("GET /capabilities", s.handleCapabilities)
	mux.HandleFunc("POST /feed/test-message", s.handleTestMessage)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}
