package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each component check made by /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Device sockets. Mounted outside /api/v1 so firmware URLs stay short.
	r.Handle(s.wsCfg.Path, s.gateway)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/factory-reset", s.handleFactoryReset)
				r.Get("/configs", s.handleListDeviceConfigs)
			})
		})

		r.Route("/configs", func(r chi.Router) {
			r.Post("/", s.handleCreateConfig)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetConfig)
				r.Patch("/", s.handleUpdateConfig)
				r.Delete("/", s.handleDeleteConfig)
			})
		})

		r.Route("/soundtrack", func(r chi.Router) {
			r.Get("/accounts", s.handleSearchAccounts)
			r.Get("/accounts/{accountId}/zones", s.handleListZones)
			r.Post("/zones/{zoneId}/volume", s.handleSetZoneVolume)
		})

		r.Get("/audit", s.handleListAudit)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// handleHealth runs every registered component check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.checks))

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":         overall,
		"version":        s.version,
		"devices_online": s.registry.Count(),
		"components":     components,
	})
}
