// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// AggregateStore is the query contract the engine consumes. The engine does
// not assume a particular query language; it only assumes each rollup table
// supports range-filtered, dimension-grouped retrieval, and that
// SketchMergeable measures come back as opaque mergeable state from the two
// open-range tables (the daily table may return either state or a finalized
// scalar).
type AggregateStore interface {
	QueryRange(ctx context.Context, q models.RangeQuery) ([]models.MetricRow, error)
}

// sourceRows is the result of one attempted retrieval. A source whose
// sub-range was empty is never attempted and never appears in the result
// slice; callers must not conflate "not queried" with "queried, zero rows".
type sourceRows struct {
	Source models.Source
	Rows   []models.MetricRow
}

// fetchSources issues one retrieval per non-empty sub-range, concurrently.
// The three retrievals have no data dependency on each other; the first
// failure aborts the request with SourceUnavailable (fail-fast) while
// sibling retrievals already in flight run to completion and are discarded.
func fetchSources(ctx context.Context, st AggregateStore, windows []SourceWindow, base models.RangeQuery) ([]sourceRows, error) {
	if len(windows) == 0 {
		return nil, nil
	}

	results := make([]sourceRows, len(windows))
	g, gctx := errgroup.WithContext(ctx)

	for i, sw := range windows {
		g.Go(func() error {
			q := base
			q.Source = sw.Source
			q.Window = sw.Window

			rows, err := st.QueryRange(gctx, q)
			if err != nil {
				return &SourceUnavailableError{Source: sw.Source, Err: err}
			}
			results[i] = sourceRows{Source: sw.Source, Rows: rows}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
