// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"fmt"
	"strings"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
	"github.com/Eatventory/KlickLab-sub001/internal/sketch"
)

// keySep separates bucket and dimension values inside a group key. It cannot
// occur in bucket labels or dimension values.
const keySep = "\x1f"

// MergeRows combines the row sets retrieved from the (up to three) sources
// into one row set, grouped by (bucket, dimension tuple). Measures combine
// per their declared kind: Additive values are summed, SketchMergeable state
// is unioned, Derived values are skipped here and recomputed afterwards.
//
// Each group's contributions are always accumulated, never overwritten. The
// resolver's disjoint sub-ranges mean a bucket should only ever appear in
// one source, but if the same bucket does arrive twice (or a finer-grained
// source maps several stored rows onto one requested bucket) both
// contributions are kept. Merging is commutative and associative in the
// order row sets are supplied.
func MergeRows(family *Family, rowSets ...[]models.MetricRow) ([]models.MetricRow, error) {
	return mergeKeyed(family, family.Dimensions, false, rowSets...)
}

// CollapseDimensions re-merges rows across all dimension tuples, leaving one
// row per bucket. Used for pure time-series output where the caller filtered
// by dimensions but did not group by them.
func CollapseDimensions(family *Family, rows []models.MetricRow) ([]models.MetricRow, error) {
	return mergeKeyed(family, nil, false, rows)
}

// CollapseAll re-merges rows across buckets and dimensions into a single
// period-total row. Sketch union keeps distinct counts honest across the
// whole period: a visitor active on three days still counts once.
func CollapseAll(family *Family, rows []models.MetricRow) (models.MetricRow, error) {
	merged, err := mergeKeyed(family, nil, true, rows)
	if err != nil {
		return models.MetricRow{}, err
	}
	if len(merged) == 0 {
		return models.MetricRow{Bucket: "total"}, nil
	}
	total := merged[0]
	total.Bucket = "total"
	return total, nil
}

// CollapseToDimension re-merges rows onto a single dimension, leaving one
// row per dimension value across the whole period. Rows missing the
// dimension fall into the empty-valued group.
func CollapseToDimension(family *Family, dimension string, rows []models.MetricRow) ([]models.MetricRow, error) {
	rekeyed := make([]models.MetricRow, len(rows))
	for i, r := range rows {
		nr := r
		nr.Bucket = ""
		nr.Dims = map[string]string{dimension: r.Dims[dimension]}
		rekeyed[i] = nr
	}
	return mergeKeyed(family, []string{dimension}, false, rekeyed)
}

type sketchAcc struct {
	merged *sketch.Sketch
	final  float64
}

type mergeAcc struct {
	bucket   string
	dims     map[string]string
	additive map[string]float64
	sketches map[string]*sketchAcc
}

func mergeKeyed(family *Family, dimOrder []string, ignoreBucket bool, rowSets ...[]models.MetricRow) ([]models.MetricRow, error) {
	groups := make(map[string]*mergeAcc)
	var order []string

	for _, rows := range rowSets {
		for _, row := range rows {
			key := groupKey(row, dimOrder, ignoreBucket)
			acc, ok := groups[key]
			if !ok {
				acc = &mergeAcc{
					bucket:   row.Bucket,
					dims:     projectDims(row.Dims, dimOrder),
					additive: make(map[string]float64),
					sketches: make(map[string]*sketchAcc),
				}
				if ignoreBucket {
					acc.bucket = ""
				}
				groups[key] = acc
				order = append(order, key)
			}

			for name, v := range row.Additive {
				acc.additive[name] += v
			}

			for name, sv := range row.Sketches {
				sa, ok := acc.sketches[name]
				if !ok {
					sa = &sketchAcc{}
					acc.sketches[name] = sa
				}
				if len(sv.State) == 0 {
					sa.final += sv.Final
					continue
				}
				state, err := sketch.Unmarshal(sv.State)
				if err != nil {
					return nil, fmt.Errorf("measure %q: %w", name, err)
				}
				if sa.merged == nil {
					sa.merged = state
					continue
				}
				if err := sa.merged.Merge(state); err != nil {
					return nil, fmt.Errorf("measure %q: %w", name, err)
				}
			}
		}
	}

	out := make([]models.MetricRow, 0, len(groups))
	for _, key := range order {
		acc := groups[key]
		row := models.MetricRow{
			Bucket:   acc.bucket,
			Dims:     acc.dims,
			Additive: acc.additive,
			Sketches: make(map[string]models.SketchValue, len(acc.sketches)),
		}
		for name, sa := range acc.sketches {
			sv := models.SketchValue{Final: sa.final}
			if sa.merged != nil {
				state, err := sa.merged.Marshal()
				if err != nil {
					return nil, fmt.Errorf("measure %q: %w", name, err)
				}
				sv.State = state
			}
			row.Sketches[name] = sv
		}
		out = append(out, row)
	}
	return out, nil
}

// groupKey builds the grouping key from the bucket label and the dimension
// values in declared order, so two rows with the same tuple always land in
// the same group regardless of map iteration order.
func groupKey(row models.MetricRow, dimOrder []string, ignoreBucket bool) string {
	var b strings.Builder
	if !ignoreBucket {
		b.WriteString(row.Bucket)
	}
	for _, d := range dimOrder {
		b.WriteString(keySep)
		b.WriteString(row.Dims[d])
	}
	return b.String()
}

func projectDims(dims map[string]string, dimOrder []string) map[string]string {
	if len(dimOrder) == 0 {
		return nil
	}
	out := make(map[string]string, len(dimOrder))
	for _, d := range dimOrder {
		out[d] = dims[d]
	}
	return out
}

// SketchCardinality exposes the merged scalar of a sketch measure: the
// estimate of any unioned state plus the sum of finalized scalars.
func SketchCardinality(v models.SketchValue) (float64, error) {
	total := v.Final
	if v.State != nil {
		s, err := sketch.Unmarshal(v.State)
		if err != nil {
			return 0, err
		}
		total += float64(s.Estimate())
	}
	return total, nil
}
