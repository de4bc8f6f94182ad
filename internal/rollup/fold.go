// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package rollup builds the three rollup tables from raw events: events
// fold into 10-minute partials, 10-minute partials into hourly partials,
// and hourly partials into daily rows with a finalized visitor count.
//
// Folds are pure functions over their input rows; the scheduler pairs each
// fold with an idempotent bucket-range replace so re-running a pass over
// the same range is harmless.
package rollup

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
	"github.com/Eatventory/KlickLab-sub001/internal/sketch"
	"github.com/Eatventory/KlickLab-sub001/internal/store"
)

// groupKey identifies one rollup row within a fold pass.
type groupKey struct {
	accountID string
	bucket    time.Time
	device    string
	channel   string
}

// acc accumulates one output row during a fold.
type acc struct {
	pageViews     int64
	events        int64
	totalDuration int64
	sessions      int64
	bounces       int64
	visitors      *sketch.Sketch

	// sessionEvents tracks per-session event counts for the event-level
	// fold; sessions with a single event are bounces.
	sessionEvents map[string]int64
}

// FoldEvents aggregates raw events into 10-minute rollup rows. Sessions and
// bounces are counted within each bucket: a session spanning buckets
// contributes to each bucket it has events in, matching how the partial
// tables are later summed.
func FoldEvents(events []store.Event) ([]store.RollupRow, error) {
	groups := make(map[groupKey]*acc)
	var order []groupKey

	for _, ev := range events {
		key := groupKey{
			accountID: ev.AccountID,
			bucket:    models.TruncateBucket(ev.Timestamp, models.Minute10),
			device:    ev.Device,
			channel:   ev.Channel,
		}
		a, ok := groups[key]
		if !ok {
			a = &acc{visitors: sketch.New(), sessionEvents: make(map[string]int64)}
			groups[key] = a
			order = append(order, key)
		}

		a.events++
		if ev.EventName == "page_view" {
			a.pageViews++
		}
		a.totalDuration += ev.Duration
		a.visitors.Insert(ev.VisitorID)
		a.sessionEvents[ev.SessionID]++
	}

	rows := make([]store.RollupRow, 0, len(groups))
	for _, key := range order {
		a := groups[key]
		a.sessions = int64(len(a.sessionEvents))
		for _, n := range a.sessionEvents {
			if n == 1 {
				a.bounces++
			}
		}
		row, err := a.toRow(key, false)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows, nil
}

// FoldUp aggregates rollup rows into the next coarser granularity: additive
// measures sum, visitor sketches union. With finalize set the scalar
// visitor count is computed from the unioned sketch, which is how daily
// rows get their durable visitors value at day close.
func FoldUp(rows []store.RollupRow, g models.Granularity, finalize bool) ([]store.RollupRow, error) {
	groups := make(map[groupKey]*acc)
	var order []groupKey

	for _, row := range rows {
		key := groupKey{
			accountID: row.AccountID,
			bucket:    models.TruncateBucket(row.BucketStart, g),
			device:    row.Device,
			channel:   row.Channel,
		}
		a, ok := groups[key]
		if !ok {
			a = &acc{visitors: sketch.New()}
			groups[key] = a
			order = append(order, key)
		}

		a.pageViews += row.PageViews
		a.sessions += row.Sessions
		a.bounces += row.Bounces
		a.totalDuration += row.TotalDuration
		a.events += row.Events

		if len(row.VisitorsHLL) > 0 {
			sk, err := sketch.Unmarshal(row.VisitorsHLL)
			if err != nil {
				return nil, fmt.Errorf("bucket %v: %w", row.BucketStart, err)
			}
			if err := a.visitors.Merge(sk); err != nil {
				return nil, fmt.Errorf("bucket %v: %w", row.BucketStart, err)
			}
		}
	}

	out := make([]store.RollupRow, 0, len(groups))
	for _, key := range order {
		row, err := groups[key].toRow(key, finalize)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	sortRows(out)
	return out, nil
}

func (a *acc) toRow(key groupKey, finalize bool) (store.RollupRow, error) {
	state, err := a.visitors.Marshal()
	if err != nil {
		return store.RollupRow{}, fmt.Errorf("marshal visitor sketch: %w", err)
	}
	row := store.RollupRow{
		AccountID:     key.accountID,
		BucketStart:   key.bucket,
		Device:        key.device,
		Channel:       key.channel,
		PageViews:     a.pageViews,
		Sessions:      a.sessions,
		Bounces:       a.bounces,
		TotalDuration: a.totalDuration,
		Events:        a.events,
		VisitorsHLL:   state,
	}
	if finalize {
		row.Visitors = sql.NullInt64{Int64: int64(a.visitors.Estimate()), Valid: true}
	}
	return row, nil
}

func sortRows(rows []store.RollupRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.BucketStart.Equal(b.BucketStart) {
			return a.BucketStart.Before(b.BucketStart)
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		return a.Channel < b.Channel
	})
}
