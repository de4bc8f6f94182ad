// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"fmt"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Measure declares one named measure of a metric family and the rule for
// combining it across sources and buckets.
type Measure struct {
	Name string
	Kind models.MeasureKind

	// Numerator and Denominator name the Additive components a Derived
	// measure is recomputed from after the merge. Unused for other kinds.
	Numerator   string
	Denominator string

	// Scale multiplies the recomputed ratio before rounding: 100 for
	// percentages, 1 (default) for plain averages.
	Scale float64

	// Precision is the number of decimal places the recomputed value is
	// rounded to. Dashboards use 1 for percentages and 2 for averages.
	Precision int
}

// Family is the declarative descriptor a dashboard query is parameterized
// by: which dimension columns rows carry and which measures to fetch, with
// their merge rules. Replacing per-endpoint merge logic with one engine
// driven by these descriptors is what keeps boundary handling consistent
// across the traffic, engagement, and overview paths.
type Family struct {
	Name       string
	Dimensions []string
	Measures   []Measure
}

// Measure returns the named measure declaration.
func (f *Family) Measure(name string) (Measure, bool) {
	for _, m := range f.Measures {
		if m.Name == name {
			return m, true
		}
	}
	return Measure{}, false
}

// AdditiveNames returns the names of all Additive measures in declaration order.
func (f *Family) AdditiveNames() []string {
	var names []string
	for _, m := range f.Measures {
		if m.Kind == models.Additive {
			names = append(names, m.Name)
		}
	}
	return names
}

// SketchNames returns the names of all SketchMergeable measures in declaration order.
func (f *Family) SketchNames() []string {
	var names []string
	for _, m := range f.Measures {
		if m.Kind == models.SketchMergeable {
			names = append(names, m.Name)
		}
	}
	return names
}

// MeasureNames returns every declared measure name in declaration order.
func (f *Family) MeasureNames() []string {
	names := make([]string, 0, len(f.Measures))
	for _, m := range f.Measures {
		names = append(names, m.Name)
	}
	return names
}

// Validate checks that every measure has a usable merge rule. Derived
// measures must reference existing Additive components within the same
// family. Called once at engine construction; a failure here is fatal.
func (f *Family) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("metric family with empty name")
	}

	seen := make(map[string]bool, len(f.Measures))
	for _, m := range f.Measures {
		if m.Name == "" {
			return &UnknownMeasureKindError{Family: f.Name, Measure: m.Name, Reason: "empty measure name"}
		}
		if seen[m.Name] {
			return &UnknownMeasureKindError{Family: f.Name, Measure: m.Name, Reason: "declared twice"}
		}
		seen[m.Name] = true

		switch m.Kind {
		case models.Additive, models.SketchMergeable:
			// Plain merge rules, nothing more to declare.
		case models.Derived:
			num, numOK := f.Measure(m.Numerator)
			den, denOK := f.Measure(m.Denominator)
			if !numOK || !denOK {
				return &UnknownMeasureKindError{Family: f.Name, Measure: m.Name, Reason: "derived measure references a missing component"}
			}
			if num.Kind != models.Additive || den.Kind != models.Additive {
				return &UnknownMeasureKindError{Family: f.Name, Measure: m.Name, Reason: "derived measure components must be additive"}
			}
		default:
			return &UnknownMeasureKindError{Family: f.Name, Measure: m.Name, Reason: fmt.Sprintf("unknown measure kind %d", m.Kind)}
		}
	}
	return nil
}

// BuiltinFamilies returns the metric families the dashboard endpoints are
// built on. Visitors is the one sketch-backed measure: distinct visitor
// counts cannot be summed across partial windows.
func BuiltinFamilies() []*Family {
	return []*Family{
		{
			Name:       "traffic",
			Dimensions: []string{"device", "channel"},
			Measures: []Measure{
				{Name: "page_views", Kind: models.Additive},
				{Name: "sessions", Kind: models.Additive},
				{Name: "events", Kind: models.Additive},
				{Name: "visitors", Kind: models.SketchMergeable},
			},
		},
		{
			Name:       "engagement",
			Dimensions: []string{"device", "channel"},
			Measures: []Measure{
				{Name: "sessions", Kind: models.Additive},
				{Name: "bounces", Kind: models.Additive},
				{Name: "events", Kind: models.Additive},
				{Name: "total_duration", Kind: models.Additive},
				{Name: "visitors", Kind: models.SketchMergeable},
				{Name: "bounce_rate", Kind: models.Derived, Numerator: "bounces", Denominator: "sessions", Scale: 100, Precision: 1},
				{Name: "avg_session_duration", Kind: models.Derived, Numerator: "total_duration", Denominator: "sessions", Scale: 1, Precision: 2},
				{Name: "events_per_session", Kind: models.Derived, Numerator: "events", Denominator: "sessions", Scale: 1, Precision: 2},
			},
		},
		{
			Name:       "overview",
			Dimensions: []string{"device", "channel"},
			Measures: []Measure{
				{Name: "page_views", Kind: models.Additive},
				{Name: "sessions", Kind: models.Additive},
				{Name: "bounces", Kind: models.Additive},
				{Name: "events", Kind: models.Additive},
				{Name: "total_duration", Kind: models.Additive},
				{Name: "visitors", Kind: models.SketchMergeable},
				{Name: "bounce_rate", Kind: models.Derived, Numerator: "bounces", Denominator: "sessions", Scale: 100, Precision: 1},
				{Name: "avg_session_duration", Kind: models.Derived, Numerator: "total_duration", Denominator: "sessions", Scale: 1, Precision: 2},
			},
		},
	}
}
