package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"tasknotifier/internal/types"
)

const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders are masked in access logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Proxy-Authorization",
	"X-CSRF-Token",
}

// MountRoutes registers the middleware chain, the health check and the
// application routes.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)
	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}
}

// registerGlobalMiddleware applies middleware in order:
//  1. RequestID      - the id is already in context when a panic is reported.
//  2. Recoverer      - catches panics from everything below it.
//  3. ContextTimeout - soft deadline for handlers.
//  4. RequestLogger  - access log with redacted headers.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware copies the id assigned by chi's middleware.RequestID
// into the types context, where the notifier picks it up as the incident
// trace id, and echoes it in the X-Request-Id response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = r.Header.Get(middleware.RequestIDHeader)
		}
		if requestID == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(middleware.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
