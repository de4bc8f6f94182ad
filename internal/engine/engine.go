// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package engine implements the real-time/historical metrics merge engine.
//
// Every dashboard query runs the same pipeline: resolve the requested window
// into closed/open sub-ranges, fetch each sub-range from its rollup table,
// merge the row sets per measure kind, recompute derived ratios from the
// merged components, and densify into the full calendar domain. The pipeline
// is parameterized by a metric family descriptor, so each dashboard endpoint
// is a declaration rather than bespoke merge logic.
//
// All pipeline stages are pure; "now" is injected per request, never read
// from the system clock inside a stage.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Engine computes dense, merged metric series against an aggregate store.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	store    AggregateStore
	families map[string]*Family
	loc      *time.Location
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests and by any
// caller that needs a snapshot consistent across several computations.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New validates the family descriptors and constructs an engine. A family
// with a measure lacking a merge rule fails here, at startup, never at
// request time.
func New(store AggregateStore, families []*Family, loc *time.Location, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine requires an aggregate store")
	}
	if loc == nil {
		loc = time.Local
	}

	byName := make(map[string]*Family, len(families))
	for _, f := range families {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("metric family %q registered twice", f.Name)
		}
		byName[f.Name] = f
	}

	e := &Engine{
		store:    store,
		families: byName,
		loc:      loc,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Family returns a registered family descriptor.
func (e *Engine) Family(name string) (*Family, bool) {
	f, ok := e.families[name]
	return f, ok
}

// SeriesRequest describes one dashboard series computation.
type SeriesRequest struct {
	AccountID   string
	Window      models.TimeWindow
	Granularity models.Granularity

	// Filters are exact-match dimension predicates applied at the store.
	Filters map[string]string

	// Family names the registered metric family descriptor.
	Family string
}

// BreakdownRequest ranks dimension values by a measure over the whole window.
type BreakdownRequest struct {
	SeriesRequest

	// Dimension is the dimension to break totals down by.
	Dimension string

	// RankBy names the Additive measure to order by. Defaults to the
	// family's first additive measure.
	RankBy string

	// Limit caps the number of returned rows. 0 means no cap.
	Limit int
}

// ComputeSeries runs the full pipeline and returns a dense, gap-filled time
// series for the requested window and granularity. Sketch measures appear
// only as their merged scalar cardinality.
func (e *Engine) ComputeSeries(ctx context.Context, req SeriesRequest) ([]models.DenseRow, error) {
	// One snapshot serves both classification and gap fill, so a request
	// straddling midnight cannot see two different todays.
	now := e.clock().In(e.loc)
	family, merged, err := e.fetchMerged(ctx, req, now)
	if err != nil {
		return nil, err
	}

	collapsed, err := CollapseDimensions(family, merged)
	if err != nil {
		return nil, err
	}
	collapsed = RecalculateRatios(family, collapsed)

	sparse, err := flattenRows(family, collapsed, func(r models.MetricRow) string { return r.Bucket })
	if err != nil {
		return nil, err
	}

	return FillSeries(sparse, family, req.Granularity, req.Window, now), nil
}

// ComputeTotals merges the whole window into one KPI row: additive sums,
// sketch cardinalities, and ratios recomputed from the period totals.
func (e *Engine) ComputeTotals(ctx context.Context, req SeriesRequest) (models.DenseRow, error) {
	family, merged, err := e.fetchMerged(ctx, req, e.clock().In(e.loc))
	if err != nil {
		return models.DenseRow{}, err
	}

	total, err := CollapseAll(family, merged)
	if err != nil {
		return models.DenseRow{}, err
	}
	rows := RecalculateRatios(family, []models.MetricRow{total})

	flat, err := flattenRows(family, rows, func(models.MetricRow) string { return "total" })
	if err != nil {
		return models.DenseRow{}, err
	}
	row := flat[0]
	// Zero-fill so KPI cards always receive every declared measure.
	for _, name := range family.MeasureNames() {
		if _, ok := row.Values[name]; !ok {
			row.Values[name] = 0
		}
	}
	return row, nil
}

// ComputeBreakdown ranks the values of one dimension by a merged additive
// total, descending, ties broken by dimension value lexical order so the
// ranking is deterministic.
func (e *Engine) ComputeBreakdown(ctx context.Context, req BreakdownRequest) ([]models.DenseRow, error) {
	family, ok := e.families[req.Family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, req.Family)
	}
	if !containsString(family.Dimensions, req.Dimension) {
		return nil, fmt.Errorf("family %q has no dimension %q", req.Family, req.Dimension)
	}
	rankBy := req.RankBy
	if rankBy == "" {
		additives := family.AdditiveNames()
		if len(additives) == 0 {
			return nil, fmt.Errorf("family %q has no additive measure to rank by", req.Family)
		}
		rankBy = additives[0]
	}
	if m, ok := family.Measure(rankBy); !ok || m.Kind != models.Additive {
		return nil, fmt.Errorf("family %q cannot rank by %q", req.Family, rankBy)
	}

	_, merged, err := e.fetchMerged(ctx, req.SeriesRequest, e.clock().In(e.loc))
	if err != nil {
		return nil, err
	}

	byDim, err := CollapseToDimension(family, req.Dimension, merged)
	if err != nil {
		return nil, err
	}
	byDim = RecalculateRatios(family, byDim)

	rows, err := flattenRows(family, byDim, func(r models.MetricRow) string { return r.Dims[req.Dimension] })
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		vi, vj := rows[i].Values[rankBy], rows[j].Values[rankBy]
		if vi != vj {
			return vi > vj
		}
		return rows[i].Key < rows[j].Key
	})
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return rows, nil
}

// fetchMerged runs the resolve-fetch-merge front half of the pipeline
// against the caller's single time snapshot.
func (e *Engine) fetchMerged(ctx context.Context, req SeriesRequest, now time.Time) (*Family, []models.MetricRow, error) {
	family, ok := e.families[req.Family]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFamily, req.Family)
	}

	cls, err := Resolve(req.Window, now)
	if err != nil {
		return nil, nil, err
	}

	base := models.RangeQuery{
		Granularity:      req.Granularity,
		AccountID:        req.AccountID,
		Filters:          req.Filters,
		Dimensions:       family.Dimensions,
		AdditiveMeasures: family.AdditiveNames(),
		SketchMeasures:   family.SketchNames(),
	}

	results, err := fetchSources(ctx, e.store, cls.SourcesFor(req.Granularity), base)
	if err != nil {
		return nil, nil, err
	}

	rowSets := make([][]models.MetricRow, 0, len(results))
	for _, r := range results {
		rowSets = append(rowSets, r.Rows)
	}
	merged, err := MergeRows(family, rowSets...)
	if err != nil {
		return nil, nil, err
	}
	return family, merged, nil
}

// flattenRows converts merged rows into dense rows keyed by keyFn, exposing
// additive totals, sketch cardinalities, and recomputed ratios. Internal
// sketch state never leaves the engine.
func flattenRows(family *Family, rows []models.MetricRow, keyFn func(models.MetricRow) string) ([]models.DenseRow, error) {
	out := make([]models.DenseRow, 0, len(rows))
	for _, row := range rows {
		values := make(map[string]float64, len(family.Measures))
		for name, v := range row.Additive {
			values[name] = v
		}
		for name, sv := range row.Sketches {
			card, err := SketchCardinality(sv)
			if err != nil {
				return nil, fmt.Errorf("measure %q: %w", name, err)
			}
			values[name] = card
		}
		for name, v := range row.Derived {
			values[name] = v
		}
		out = append(out, models.DenseRow{Key: keyFn(row), Values: values})
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
