// Package core provides the API chassis for the chatforge platform.
// It creates the chi router and enforces cross-cutting concerns (request
// correlation, logging, session authentication, error handling) before
// requests reach domain-specific handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatforge/internal/config"
	"chatforge/internal/external"
)

// Server encapsulates the chassis dependencies of the chatforge API, allowing
// for easy injection during testing and distinct configuration per environment.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Sessions external.SessionResolver

	// V1RouteRegistrars is populated by the application entry point with the
	// domain handler mount functions. The indirection avoids import cycles
	// between core and the handler packages.
	V1RouteRegistrars []func(chi.Router)

	// HealthProbes lists the critical dependencies checked by GET /health.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the server for route
// mounting. It performs a fail-fast check on critical dependencies.
// The caller is responsible for mounting routes (via MountRoutes) after
// construction.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	sessions external.SessionResolver,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
