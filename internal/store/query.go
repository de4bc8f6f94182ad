// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/metrics"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// QueryRange retrieves metric rows from one rollup table for a half-open
// time range. Rows come back labeled at the requested granularity but
// otherwise unaggregated; the merge engine folds rows sharing a bucket and
// dimension values, so a day bucket assembled from six 10-minute rows sums
// correctly without SQL-side grouping.
//
// Sketch measures are returned as opaque HLL state from the partial tables
// and as the finalized scalar from the daily table.
func (s *Store) QueryRange(ctx context.Context, q models.RangeQuery) ([]models.MetricRow, error) {
	start := time.Now()
	rows, err := s.breaker.Execute(func() ([]models.MetricRow, error) {
		return s.queryRange(ctx, q)
	})
	metrics.ObserveStoreQuery(q.Source.String(), time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Error().
			Err(err).
			Str("source", q.Source.String()).
			Str("account_id", q.AccountID).
			Msg("Range query failed")
		return nil, err
	}
	return rows, nil
}

func (s *Store) queryRange(ctx context.Context, q models.RangeQuery) ([]models.MetricRow, error) {
	table, err := tableForSource(q.Source)
	if err != nil {
		return nil, err
	}

	// Request-supplied names are interpolated into SQL, so everything is
	// validated against the column allowlists first.
	dims := append([]string(nil), q.Dimensions...)
	for _, d := range dims {
		if !dimensionColumns[d] {
			return nil, fmt.Errorf("unknown dimension column %q", d)
		}
	}
	for _, m := range q.AdditiveMeasures {
		if !additiveColumns[m] {
			return nil, fmt.Errorf("unknown additive measure column %q", m)
		}
	}
	for _, m := range q.SketchMeasures {
		if _, ok := sketchColumns[m]; !ok {
			return nil, fmt.Errorf("unknown sketch measure column %q", m)
		}
	}

	cols := []string{"bucket_start"}
	cols = append(cols, dims...)
	cols = append(cols, q.AdditiveMeasures...)
	for _, m := range q.SketchMeasures {
		cols = append(cols, sketchColumns[m], "visitors")
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE account_id = ? AND bucket_start >= ? AND bucket_start < ?",
		strings.Join(cols, ", "), table)
	args := []any{q.AccountID, s.naiveTimestamp(q.Window.Start), s.naiveTimestamp(q.Window.End)}

	// Deterministic filter order keeps query text stable for plan caching.
	filterKeys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		if !dimensionColumns[k] {
			return nil, fmt.Errorf("unknown filter column %q", k)
		}
		query += fmt.Sprintf(" AND %s = ?", k)
		args = append(args, q.Filters[k])
	}

	res, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close result set")
		}
	}()

	var out []models.MetricRow
	for res.Next() {
		row, err := s.scanMetricRow(res, q, dims)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) scanMetricRow(res *sql.Rows, q models.RangeQuery, dims []string) (models.MetricRow, error) {
	var bucketStart time.Time
	dimVals := make([]sql.NullString, len(dims))
	addVals := make([]sql.NullInt64, len(q.AdditiveMeasures))
	blobVals := make([][]byte, len(q.SketchMeasures))
	finalVals := make([]sql.NullInt64, len(q.SketchMeasures))

	dest := []any{&bucketStart}
	for i := range dimVals {
		dest = append(dest, &dimVals[i])
	}
	for i := range addVals {
		dest = append(dest, &addVals[i])
	}
	for i := range blobVals {
		dest = append(dest, &blobVals[i], &finalVals[i])
	}
	if err := res.Scan(dest...); err != nil {
		return models.MetricRow{}, fmt.Errorf("scan metric row: %w", err)
	}

	row := models.MetricRow{
		Bucket: models.BucketLabel(s.inReportingZone(bucketStart), q.Granularity),
	}
	if len(dims) > 0 {
		row.Dims = make(map[string]string, len(dims))
		for i, d := range dims {
			row.Dims[d] = dimVals[i].String
		}
	}
	if len(q.AdditiveMeasures) > 0 {
		row.Additive = make(map[string]float64, len(q.AdditiveMeasures))
		for i, m := range q.AdditiveMeasures {
			row.Additive[m] = float64(addVals[i].Int64)
		}
	}
	if len(q.SketchMeasures) > 0 {
		row.Sketches = make(map[string]models.SketchValue, len(q.SketchMeasures))
		for i, m := range q.SketchMeasures {
			// Return state XOR scalar, never both, so the merger cannot
			// count the same visitors twice. State wins: only a sketch
			// union dedupes a visitor across buckets, a scalar can merely
			// be summed. The scalar serves rows with no usable blob. An
			// empty blob counts as absent; it is not a valid sketch.
			switch {
			case len(blobVals[i]) > 0:
				row.Sketches[m] = models.SketchValue{State: blobVals[i]}
			case finalVals[i].Valid:
				row.Sketches[m] = models.SketchValue{Final: float64(finalVals[i].Int64)}
			default:
				row.Sketches[m] = models.SketchValue{}
			}
		}
	}
	return row, nil
}
