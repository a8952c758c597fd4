package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency probe made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleSystemMetrics)
		r.Get("/bus/stats", s.handleBusStats)

		r.Route("/faculty", func(r chi.Router) {
			r.Get("/presence", s.handleListPresence)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/presence", s.handleGetPresence)
				r.Get("/presence/history", s.handlePresenceHistory)
				r.Post("/messages", s.handleSendRequest)
				r.Post("/cancellations", s.handleSendCancellation)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the bus connection and every configured dependency.
// Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks)+1)
	healthy := true

	probe := func(name string, hc HealthChecker) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	probe("mqtt", s.bus)
	for name, hc := range s.checks {
		if hc != nil {
			probe(name, hc)
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
