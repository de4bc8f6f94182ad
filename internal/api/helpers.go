// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Eatventory/KlickLab-sub001/internal/engine"
	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// sanitizeLogValue removes control characters from strings to prevent log
// injection from attacker-controlled parameters.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError sends an error response. The message is client-safe; the
// raw error only goes to the log.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}

// respondEngineError maps engine error taxonomy to HTTP statuses: invalid
// ranges and bad parameters are the caller's fault; an unavailable source
// is a temporary server-side condition and deliberately generic so table
// names never leak to clients.
func respondEngineError(w http.ResponseWriter, err error) {
	var srcErr *engine.SourceUnavailableError
	switch {
	case errors.Is(err, engine.ErrInvalidRange):
		respondError(w, http.StatusBadRequest, "INVALID_RANGE", "The requested time range is invalid", err)
	case errors.As(err, &srcErr):
		respondError(w, http.StatusServiceUnavailable, "SOURCE_UNAVAILABLE", "Metric data is temporarily unavailable", err)
	case errors.Is(err, engine.ErrUnknownFamily):
		respondError(w, http.StatusNotFound, "UNKNOWN_FAMILY", "Unknown metric family", err)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed", err)
	}
}

// dashboardParams are the query parameters shared by all dashboard
// endpoints.
type dashboardParams struct {
	AccountID   string             `json:"account_id"`
	Start       string             `json:"start"`
	End         string             `json:"end"`
	Granularity models.Granularity `json:"granularity"`
	Filters     map[string]string  `json:"filters,omitempty"`
}

// parseDashboardParams extracts and validates the shared dashboard query
// parameters. Dates are whole calendar days in the reporting zone; the end
// date is inclusive in the URL and converted to the half-open window the
// engine consumes.
func (h *Handler) parseDashboardParams(r *http.Request) (dashboardParams, models.TimeWindow, error) {
	q := r.URL.Query()

	p := dashboardParams{AccountID: q.Get("account_id")}
	if p.AccountID == "" {
		return p, models.TimeWindow{}, fmt.Errorf("account_id is required")
	}

	g, err := models.ParseGranularity(q.Get("granularity"))
	if err != nil {
		return p, models.TimeWindow{}, err
	}
	p.Granularity = g

	now := time.Now().In(h.loc)
	end := models.TruncateBucket(now, models.Day).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -h.cfg.API.DefaultWindowDays)

	if v := q.Get("start"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return p, models.TimeWindow{}, fmt.Errorf("start: expected YYYY-MM-DD")
		}
		start = d
	}
	if v := q.Get("end"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return p, models.TimeWindow{}, fmt.Errorf("end: expected YYYY-MM-DD")
		}
		end = d.AddDate(0, 0, 1)
	}
	if end.Sub(start) > time.Duration(h.cfg.API.MaxWindowDays)*24*time.Hour {
		return p, models.TimeWindow{}, fmt.Errorf("window exceeds %d days", h.cfg.API.MaxWindowDays)
	}
	p.Start, p.End = start.Format("2006-01-02"), end.Format("2006-01-02")

	filters := map[string]string{}
	for _, dim := range []string{"device", "channel"} {
		if v := q.Get(dim); v != "" {
			filters[dim] = v
		}
	}
	if len(filters) > 0 {
		p.Filters = filters
	}

	return p, models.TimeWindow{Start: start, End: end}, nil
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
