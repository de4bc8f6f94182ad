// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package metrics exposes Prometheus instrumentation for the merge engine,
// the store, the query cache, and the rollup scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store Metrics

	// StoreQueryDuration tracks range query latency per rollup table.
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klicklab_store_query_duration_seconds",
			Help:    "Duration of rollup table range queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"source"},
	)

	// StoreQueryErrors counts failed retrievals per rollup table; each one
	// surfaces to a dashboard caller as a 503.
	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klicklab_store_query_errors_total",
			Help: "Total number of failed rollup table queries",
		},
		[]string{"source"},
	)

	// Query Cache Metrics

	// CacheHits counts dashboard responses served from cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "klicklab_query_cache_hits_total",
			Help: "Total number of dashboard query cache hits",
		},
	)

	// CacheMisses counts dashboard queries that went to the engine.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "klicklab_query_cache_misses_total",
			Help: "Total number of dashboard query cache misses",
		},
	)

	// API Metrics

	// APIRequestsTotal counts HTTP requests by route and status class.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klicklab_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)

	// APIRequestDuration tracks end-to-end handler latency per route.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klicklab_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Rollup Metrics

	// RollupRunsTotal counts rollup passes by granularity and outcome.
	RollupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klicklab_rollup_runs_total",
			Help: "Total number of rollup passes",
		},
		[]string{"granularity", "outcome"},
	)

	// RollupDuration tracks rollup pass latency by granularity.
	RollupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klicklab_rollup_duration_seconds",
			Help:    "Duration of rollup passes in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"granularity"},
	)

	// EventsIngested counts raw events accepted by the collect endpoint.
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "klicklab_events_ingested_total",
			Help: "Total number of raw events accepted for ingestion",
		},
	)
)

// ObserveStoreQuery records one rollup table retrieval.
func ObserveStoreQuery(source string, d time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(source).Inc()
	}
}

// ObserveRollup records one rollup pass.
func ObserveRollup(granularity string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	RollupRunsTotal.WithLabelValues(granularity, outcome).Inc()
	RollupDuration.WithLabelValues(granularity).Observe(d.Seconds())
}
