// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/cache"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// queryFunc executes one dashboard query against the engine.
type queryFunc func(ctx context.Context) (interface{}, error)

// execute runs the cache-first flow every dashboard handler shares: build a
// key from the endpoint name and parameters, serve a fresh cached result if
// one exists, otherwise run the engine pipeline once (coalescing concurrent
// identical requests) and cache the result.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, name string, params interface{}, query queryFunc) {
	start := time.Now()
	key := cache.GenerateKey(name, params)

	// The computation may be shared with coalesced identical requests, so
	// it must not die with whichever caller happened to start it. Request
	// values (request id, logger) still flow through.
	qctx := context.WithoutCancel(r.Context())
	data, cached, err := h.cache.GetOrCompute(key, func() (interface{}, error) {
		return query(qctx)
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	queryTime := int64(0)
	if !cached {
		queryTime = time.Since(start).Milliseconds()
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: queryTime,
			Cached:      cached,
		},
	})
}
