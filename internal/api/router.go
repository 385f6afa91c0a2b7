// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/funnelgraph/internal/config"
	"github.com/tomtom215/funnelgraph/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so the middleware package works with
// r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router assembles the HTTP routing tree for a handler.
type Router struct {
	handler *Handler
	config  *config.SecurityConfig
}

// NewRouter creates a router for the given handler using the security
// section of its configuration.
func NewRouter(handler *Handler) *Router {
	return &Router{
		handler: handler,
		config:  &handler.config.Security,
	}
}

// rateLimit returns the shared per-IP rate limiter, or a no-op when rate
// limiting is disabled (local development, tests).
func (router *Router) rateLimit() func(http.Handler) http.Handler {
	if router.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		router.config.RateLimitReqs,
		router.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS must be
	// global to handle OPTIONS preflight.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints stay outside the rate limiter so orchestrator
	// probes are never throttled.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Management endpoints: projects and funnel definitions.
	r.Route("/api/v1/projects", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/", router.handler.ListProjects)
		r.Post("/", router.handler.CreateProject)
		r.Get("/{projectID}", router.handler.GetProject)
		r.Put("/{projectID}", router.handler.UpdateProject)
		r.Delete("/{projectID}", router.handler.DeleteProject)
	})

	r.Route("/api/v1/funnels", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/", router.handler.ListFunnels)
		r.Post("/", router.handler.CreateFunnel)
		r.Get("/{funnelID}", router.handler.GetFunnel)
		r.Put("/{funnelID}", router.handler.UpdateFunnel)
		r.Delete("/{funnelID}", router.handler.DeleteFunnel)
	})

	// Tracking endpoints: the public ingestion surface.
	r.Route("/api/v1/track", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Post("/", router.handler.TrackEvent)
		r.Post("/batch", router.handler.TrackBatch)
	})

	// Analytics and event metadata.
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/funnel/{funnelID}", router.handler.FunnelAnalytics)
		r.Get("/funnel/{funnelID}/insights", router.handler.FunnelInsights)
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/types", router.handler.EventTypes)
	})

	return r
}
