// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlearnhq/feedrank/internal/config"
	"github.com/openlearnhq/feedrank/internal/middleware"
)

// NewRouter assembles the HTTP routing tree.
func NewRouter(handler *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// health gets a permissive limit so monitors can poll freely
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, cfg.RateLimitWindow))
		r.Get("/", handler.Health)
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Route("/api/v1/feed", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(middleware.Prometheus)
		r.Use(middleware.Compression)

		r.Get("/", handler.GetFeed)
		r.Post("/reset", handler.ResetFeed)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
