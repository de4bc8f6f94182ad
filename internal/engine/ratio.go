// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"math"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// RecalculateRatios computes every Derived measure of the family from its
// merged Additive components. Ratios are never merged or averaged across
// partial windows: averaging two already-computed rates weights a quiet
// partial window the same as a busy one and produces wrong numbers. The
// only correct rate for a merged period is numerator over denominator of
// the merged sums.
//
// A zero denominator or a non-finite result yields exactly 0: dashboards
// must always receive a renderable number.
func RecalculateRatios(family *Family, rows []models.MetricRow) []models.MetricRow {
	for i := range rows {
		if rows[i].Derived == nil {
			rows[i].Derived = make(map[string]float64)
		}
		for _, m := range family.Measures {
			if m.Kind != models.Derived {
				continue
			}
			rows[i].Derived[m.Name] = deriveRatio(m, rows[i].Additive)
		}
	}
	return rows
}

// deriveRatio computes one Derived value from the merged additive components.
func deriveRatio(m Measure, additive map[string]float64) float64 {
	den := additive[m.Denominator]
	if den == 0 {
		return 0
	}

	scale := m.Scale
	if scale == 0 {
		scale = 1
	}

	v := additive[m.Numerator] / den * scale
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return roundTo(v, m.Precision)
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
