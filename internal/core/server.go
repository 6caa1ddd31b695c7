// Package core is the HTTP chassis shared by services that report their
// failures through the notifier. It provides the chi router, the middleware
// chain (panic recovery, request ids, access logging) and the standard JSON
// error envelope.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasknotifier/internal/config"
	"tasknotifier/internal/notifier"
)

// Notifier is the part of *notifier.Notifier the HTTP layer uses.
type Notifier interface {
	Notify(err error, opts notifier.Options)
	NotifyPanic(v any, opts notifier.Options)
	Close(ctx context.Context) error
}

// RouteRegistrar mounts application routes on the router.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of an HTTP service.
type Server struct {
	Config       *config.Config
	Notifier     Notifier
	Logger       *slog.Logger
	HealthProbes []HealthProbe

	// RouteRegistrars are applied by MountRoutes after the middleware chain.
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the dependencies and prepares an empty router.
func NewServer(cfg *config.Config, n Notifier, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if n == nil {
		return nil, fmt.Errorf("notifier must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:   cfg,
		Notifier: n,
		Logger:   logger,
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown drains the notifier so incidents raised by in-flight requests
// are still delivered.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if err := s.Notifier.Close(ctx); err != nil {
		s.Logger.Error("notifier did not drain", "error", err.Error())
		return fmt.Errorf("closing notifier: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
