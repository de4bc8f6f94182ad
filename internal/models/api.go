// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package models

import "time"

// APIResponse is the standard envelope for all JSON API responses.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability: server timestamp,
// query execution time, and whether the result came from the TTL cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError describes a failed request. Message is always safe to show to
// clients; raw store error text never leaves the server.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SeriesResponse is the payload of a dashboard time-series endpoint.
type SeriesResponse struct {
	Family      string     `json:"family"`
	Granularity string     `json:"granularity"`
	Series      []DenseRow `json:"series"`
}

// BreakdownResponse is the payload of a top-N dimension breakdown endpoint.
type BreakdownResponse struct {
	Family    string     `json:"family"`
	Dimension string     `json:"dimension"`
	Rows      []DenseRow `json:"rows"`
}

// OverviewResponse carries period KPI totals plus deltas against the
// previous period of equal length.
type OverviewResponse struct {
	Totals   map[string]float64 `json:"totals"`
	Previous map[string]float64 `json:"previous"`
	DeltaPct map[string]float64 `json:"delta_pct"`
}

// CollectEvent is one raw analytics event accepted by the ingest endpoint.
type CollectEvent struct {
	AccountID string    `json:"account_id" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
	VisitorID string    `json:"visitor_id" validate:"required"`
	SessionID string    `json:"session_id" validate:"required"`
	EventName string    `json:"event_name"`
	URL       string    `json:"url"`
	Device    string    `json:"device"`
	Channel   string    `json:"channel"`
	Duration  int64     `json:"duration_seconds" validate:"gte=0"`
}
