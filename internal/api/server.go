package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/opensource-finance/paysentry/internal/history"
	"github.com/opensource-finance/paysentry/internal/metrics"
	"github.com/opensource-finance/paysentry/internal/scan"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, riskCfg domain.RiskConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *scan.Processor, hist *history.Service, version string) *Server {
	handler := NewHandler(riskCfg, repo, cache, bus, processor, hist, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(metrics.Middleware)     // Prometheus request metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and metrics endpoints (no user required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes (user required)
	router.Group(func(r chi.Router) {
		r.Use(UserMiddleware)

		// Scan evaluation and history
		r.Post("/scans", handler.CreateScan)
		r.Get("/scans", handler.ListScans)

		// Stateless parser and classifier access
		r.Post("/parse", handler.Parse)
		r.Post("/classify", handler.Classify)

		// Safe zones
		r.Get("/zones", handler.ListZones)
		r.Post("/zones", handler.CreateZone)
		r.Get("/zones/{id}", handler.GetZone)
		r.Put("/zones/{id}", handler.UpdateZone)
		r.Delete("/zones/{id}", handler.DeleteZone)

		// Location checks and community fraud alerts
		r.Post("/locations/check", handler.CheckLocation)
		r.Get("/fraud-alerts", handler.ListFraudAlerts)
		r.Post("/fraud-alerts", handler.CreateFraudAlert)

		// Suggestions
		r.Get("/suggestions", handler.ListSuggestions)
		r.Post("/suggestions/{id}/dismiss", handler.DismissSuggestion)

		// Favorites and preferences
		r.Get("/favorites", handler.ListFavorites)
		r.Post("/favorites", handler.AddFavorite)
		r.Delete("/favorites/{identifier}", handler.RemoveFavorite)
		r.Get("/preferences", handler.GetPreferences)
		r.Put("/preferences", handler.UpdatePreferences)

		// Custom classifier rules
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
