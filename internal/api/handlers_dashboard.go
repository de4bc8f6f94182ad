// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package api

import (
	"context"
	"net/http"

	"github.com/Eatventory/KlickLab-sub001/internal/engine"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Traffic serves the traffic time series: page views, sessions, events, and
// distinct visitors per bucket.
func (h *Handler) Traffic(w http.ResponseWriter, r *http.Request) {
	h.seriesEndpoint(w, r, "traffic")
}

// Engagement serves the engagement time series: bounce rate, session
// duration, and events per session, recomputed from merged components.
func (h *Handler) Engagement(w http.ResponseWriter, r *http.Request) {
	h.seriesEndpoint(w, r, "engagement")
}

func (h *Handler) seriesEndpoint(w http.ResponseWriter, r *http.Request, family string) {
	p, window, err := h.parseDashboardParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
		return
	}

	h.execute(w, r, family, p, func(ctx context.Context) (interface{}, error) {
		series, err := h.engine.ComputeSeries(ctx, engine.SeriesRequest{
			AccountID:   p.AccountID,
			Window:      window,
			Granularity: p.Granularity,
			Filters:     p.Filters,
			Family:      family,
		})
		if err != nil {
			return nil, err
		}
		return &models.SeriesResponse{
			Family:      family,
			Granularity: string(p.Granularity),
			Series:      series,
		}, nil
	})
}

// Overview serves period KPI totals with deltas against the previous
// period of equal length.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	p, window, err := h.parseDashboardParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
		return
	}

	h.execute(w, r, "overview", p, func(ctx context.Context) (interface{}, error) {
		req := engine.SeriesRequest{
			AccountID:   p.AccountID,
			Window:      window,
			Granularity: p.Granularity,
			Filters:     p.Filters,
			Family:      "overview",
		}
		current, err := h.engine.ComputeTotals(ctx, req)
		if err != nil {
			return nil, err
		}

		// Previous period: the window of equal length ending where this
		// one starts.
		span := window.End.Sub(window.Start)
		prevReq := req
		prevReq.Window = models.TimeWindow{Start: window.Start.Add(-span), End: window.Start}
		previous, err := h.engine.ComputeTotals(ctx, prevReq)
		if err != nil {
			return nil, err
		}

		deltas := make(map[string]float64, len(current.Values))
		for name, cur := range current.Values {
			prev := previous.Values[name]
			if prev == 0 {
				// No baseline: a percentage against zero is undefined, and
				// reporting 0 would read as "no change". Omit the key and
				// let the widget render the delta as not applicable.
				if cur == 0 {
					deltas[name] = 0
				}
				continue
			}
			deltas[name] = (cur - prev) / prev * 100
		}
		return &models.OverviewResponse{
			Totals:   current.Values,
			Previous: previous.Values,
			DeltaPct: deltas,
		}, nil
	})
}

// Channels serves the top acquisition channels ranked by sessions over the
// whole window.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	h.breakdownEndpoint(w, r, "channel", "sessions")
}

// Devices serves the device breakdown ranked by sessions.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	h.breakdownEndpoint(w, r, "device", "sessions")
}

func (h *Handler) breakdownEndpoint(w http.ResponseWriter, r *http.Request, dimension, rankBy string) {
	p, window, err := h.parseDashboardParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
		return
	}
	limit := getIntParam(r, "limit", 10)

	type breakdownParams struct {
		dashboardParams
		Dimension string `json:"dimension"`
		Limit     int    `json:"limit"`
	}
	params := breakdownParams{dashboardParams: p, Dimension: dimension, Limit: limit}

	h.execute(w, r, "breakdown", params, func(ctx context.Context) (interface{}, error) {
		rows, err := h.engine.ComputeBreakdown(ctx, engine.BreakdownRequest{
			SeriesRequest: engine.SeriesRequest{
				AccountID:   p.AccountID,
				Window:      window,
				Granularity: p.Granularity,
				Filters:     p.Filters,
				Family:      "traffic",
			},
			Dimension: dimension,
			RankBy:    rankBy,
			Limit:     limit,
		})
		if err != nil {
			return nil, err
		}
		return &models.BreakdownResponse{
			Family:    "traffic",
			Dimension: dimension,
			Rows:      rows,
		}, nil
	})
}
