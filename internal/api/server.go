package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tamweel-digital/falcon/internal/decision"
	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/notify"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, engine *decision.Engine, notifier *notify.Service, version string) *Server {
	handler := NewHandler(repo, cache, engine, notifier, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no API key required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Business routes (API key required)
	router.Route("/", func(r chi.Router) {
		r.Use(APIKeyMiddleware(repo))

		// Eligibility decisions
		r.Post("/decision/card", handler.CardDecision)
		r.Post("/decision/loan", handler.LoanDecision)

		// Notifications
		r.Post("/notifications/send", handler.SendNotifications)
		r.Post("/notifications/list", handler.ListNotifications)

		// Application lookups (portal reads)
		r.Get("/applications/loan/{national_id}", handler.GetLoanApplication)
		r.Get("/applications/card/{national_id}", handler.GetCardApplication)
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
