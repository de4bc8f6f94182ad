// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package models

// MeasureKind classifies how a numeric field may be combined across
// sources and buckets.
type MeasureKind int

const (
	// Additive measures are safe to sum across sources and buckets
	// (page views, sessions, total duration).
	Additive MeasureKind = iota

	// SketchMergeable measures carry approximate distinct-count state that
	// must be merged with the sketch's own union operator, never summed.
	SketchMergeable

	// Derived measures are ratios or averages recomputed from their merged
	// additive components after the merge, never merged directly.
	Derived
)

// String returns the lowercase name of the measure kind.
func (k MeasureKind) String() string {
	switch k {
	case Additive:
		return "additive"
	case SketchMergeable:
		return "sketch"
	case Derived:
		return "derived"
	default:
		return "unknown"
	}
}

// Source identifies which rollup table a row set was retrieved from.
type Source int

const (
	// SourceDaily is the durable per-day rollup table (closed ranges).
	SourceDaily Source = iota
	// SourceHourly is the hour-granularity partial table (open range, today).
	SourceHourly
	// SourceMinute is the 10-minute partial table (most recent incomplete hour).
	SourceMinute
)

// String returns the table-facing name of the source.
func (s Source) String() string {
	switch s {
	case SourceDaily:
		return "daily"
	case SourceHourly:
		return "hourly"
	case SourceMinute:
		return "10min"
	default:
		return "unknown"
	}
}

// SketchValue is the wire form of a SketchMergeable measure. Open-range
// tables always return serialized mergeable state; the closed daily table
// may return either state or a finalized scalar.
type SketchValue struct {
	// State is the serialized HyperLogLog state. Nil when finalized.
	State []byte

	// Final is the pre-merged cardinality, meaningful only when State is nil.
	Final float64
}

// MetricRow is one aggregate row keyed by calendar bucket plus dimension
// tuple, carrying named measures split by kind.
type MetricRow struct {
	// Bucket is the calendar bucket label (see BucketLabel).
	Bucket string

	// Dims maps dimension keys (device, channel) to their values.
	Dims map[string]string

	// Additive holds summable measures by name.
	Additive map[string]float64

	// Sketches holds mergeable distinct-count state by measure name.
	Sketches map[string]SketchValue

	// Derived holds recomputed ratio measures by name. Populated only
	// after the merge; store rows never carry derived values.
	Derived map[string]float64
}

// RangeQuery describes one retrieval against the aggregate store: a single
// rollup table, a half-open time range, and the account plus dimension
// predicates every query is filtered by.
type RangeQuery struct {
	Source      Source
	Window      TimeWindow
	Granularity Granularity
	AccountID   string

	// Filters are exact-match dimension predicates (device=mobile).
	Filters map[string]string

	// Dimensions are the dimension columns to return on each row.
	Dimensions []string

	// AdditiveMeasures and SketchMeasures name the measure columns to fetch.
	AdditiveMeasures []string
	SketchMeasures   []string
}

// DenseRow is one entry of a gap-filled series: the domain key plus all
// additive totals, merged sketch cardinalities, and recomputed ratios.
// Internal sketch state is never exposed.
type DenseRow struct {
	Key    string             `json:"key"`
	Values map[string]float64 `json:"values"`
}
