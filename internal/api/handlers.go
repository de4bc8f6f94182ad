// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package api exposes the dashboard HTTP API: time-series and breakdown
// endpoints over the merge engine, event ingestion, CSV export, health, and
// Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Eatventory/KlickLab-sub001/internal/cache"
	"github.com/Eatventory/KlickLab-sub001/internal/config"
	"github.com/Eatventory/KlickLab-sub001/internal/engine"
	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/metrics"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
	"github.com/Eatventory/KlickLab-sub001/internal/store"
)

// EventWriter is the ingestion contract the collect handler needs from the
// store.
type EventWriter interface {
	InsertEvent(ctx context.Context, ev store.Event) error
}

// Handler holds the dependencies shared by all endpoint handlers.
type Handler struct {
	engine   *engine.Engine
	events   EventWriter
	cache    *cache.Cache
	cfg      *config.Config
	loc      *time.Location
	validate *validator.Validate
	ready    func(ctx context.Context) error
}

// NewHandler constructs the API handler set.
func NewHandler(eng *engine.Engine, events EventWriter, c *cache.Cache, cfg *config.Config, loc *time.Location, ready func(context.Context) error) *Handler {
	return &Handler{
		engine:   eng,
		events:   events,
		cache:    c,
		cfg:      cfg,
		loc:      loc,
		validate: validator.New(),
		ready:    ready,
	}
}

// Health reports liveness and, when a readiness probe is wired, store
// reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			status["status"] = "degraded"
			status["store"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, &models.APIResponse{
		Status:   "success",
		Data:     status,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// Collect accepts one raw analytics event and appends it to the events
// table. The rollup scheduler picks it up on its next pass.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	var ev models.CollectEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if err := h.validate.Struct(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Event is missing required fields", err)
		return
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	name := ev.EventName
	if name == "" {
		name = "page_view"
	}
	device := ev.Device
	if device == "" {
		device = "unknown"
	}
	channel := ev.Channel
	if channel == "" {
		channel = "direct"
	}

	rec := store.Event{
		EventID:   uuid.NewString(),
		AccountID: ev.AccountID,
		Timestamp: ts.In(h.loc),
		VisitorID: ev.VisitorID,
		SessionID: ev.SessionID,
		EventName: name,
		PageURL:   ev.URL,
		Device:    device,
		Channel:   channel,
		Duration:  ev.Duration,
	}
	if err := h.events.InsertEvent(r.Context(), rec); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Event insert failed")
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "Event could not be stored", err)
		return
	}
	metrics.EventsIngested.Inc()

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status:   "success",
		Data:     map[string]string{"event_id": rec.EventID},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
