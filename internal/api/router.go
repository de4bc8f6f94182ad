// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Eatventory/KlickLab-sub001/internal/config"
)

// NewRouter wires the full route tree. Dashboard reads share one rate
// limit bucket per client IP; the collect endpoint gets a separate, more
// generous bucket because trackers fire on every page view.
func NewRouter(h *Handler, cfg *config.APIConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics())

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByRealIP(cfg.RateLimitReqs, cfg.RateLimitWindow))

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/traffic", h.Traffic)
				r.Get("/engagement", h.Engagement)
				r.Get("/overview", h.Overview)
				r.Get("/channels", h.Channels)
				r.Get("/devices", h.Devices)
			})
			r.Get("/export/report", h.ExportReport)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByRealIP(cfg.RateLimitReqs*10, cfg.RateLimitWindow))
			r.Post("/collect", h.Collect)
		})
	})

	return r
}
