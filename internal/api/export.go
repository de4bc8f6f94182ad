// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Eatventory/KlickLab-sub001/internal/engine"
	"github.com/Eatventory/KlickLab-sub001/internal/logging"
)

// ExportReport streams the requested family's series as a CSV download.
// Export bypasses the response cache: reports are occasional, large, and
// not worth a cache slot.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	p, window, err := h.parseDashboardParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
		return
	}

	familyName := r.URL.Query().Get("family")
	if familyName == "" {
		familyName = "traffic"
	}
	family, ok := h.engine.Family(familyName)
	if !ok {
		respondError(w, http.StatusNotFound, "UNKNOWN_FAMILY", "unknown metric family", nil)
		return
	}

	series, err := h.engine.ComputeSeries(r.Context(), engine.SeriesRequest{
		AccountID:   p.AccountID,
		Window:      window,
		Granularity: p.Granularity,
		Filters:     p.Filters,
		Family:      familyName,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	filename := fmt.Sprintf("klicklab_%s_%s_%s.csv", familyName, p.Start, p.End)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	measures := family.MeasureNames()
	cw := csv.NewWriter(w)
	header := append([]string{"bucket"}, measures...)
	if err := cw.Write(header); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("csv export write failed")
		return
	}
	record := make([]string, len(header))
	for _, row := range series {
		record[0] = row.Key
		for i, name := range measures {
			record[i+1] = strconv.FormatFloat(row.Values[name], 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("csv export write failed")
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("csv export flush failed")
	}
}
