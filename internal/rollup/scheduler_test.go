// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package rollup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/Eatventory/KlickLab-sub001/internal/config"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
	"github.com/Eatventory/KlickLab-sub001/internal/store"
)

func newSchedulerTestStore(t *testing.T) (*store.Store, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	st, err := store.New(&config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "rollup.duckdb"),
		MaxMemory: "256MB",
		Threads:   1,
	}, loc)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, loc
}

func schedulerEvent(id string, ts time.Time, visitor, session string) store.Event {
	return store.Event{
		EventID:   id,
		AccountID: "acct-1",
		Timestamp: ts,
		VisitorID: visitor,
		SessionID: session,
		EventName: "page_view",
		PageURL:   "/",
		Device:    "desktop",
		Channel:   "organic",
	}
}

func TestScheduler_PassBuildsTiers(t *testing.T) {
	st, loc := newSchedulerTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 21, 14, 7, 0, 0, loc)

	// Two sessions inside the lookback window, spanning two hours.
	for _, ev := range []store.Event{
		schedulerEvent("e1", now.Add(-30*time.Minute), "v-1", "s-1"),
		schedulerEvent("e2", now.Add(-28*time.Minute), "v-1", "s-1"),
		schedulerEvent("e3", now.Add(-70*time.Minute), "v-2", "s-2"),
	} {
		if err := st.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	sched := NewScheduler(st, config.RollupConfig{
		Interval: time.Minute,
		Lookback: 2 * time.Hour,
	}, loc)
	sched.SetClock(func() time.Time { return now })

	sched.runPass(ctx)

	window := models.TimeWindow{Start: now.Add(-2 * time.Hour), End: now}
	minuteRows, err := st.RollupRowsInRange(ctx, models.SourceMinute, window)
	if err != nil {
		t.Fatalf("RollupRowsInRange(minute): %v", err)
	}
	if len(minuteRows) != 2 {
		t.Fatalf("10-minute rows = %d, want 2 buckets", len(minuteRows))
	}
	var totalEvents, totalSessions int64
	for _, row := range minuteRows {
		totalEvents += row.Events
		totalSessions += row.Sessions
		if row.VisitorsHLL == nil {
			t.Error("10-minute row missing sketch state")
		}
		if row.Visitors.Valid {
			t.Error("10-minute row must not carry a finalized visitor count")
		}
	}
	if totalEvents != 3 || totalSessions != 2 {
		t.Errorf("events/sessions = %d/%d, want 3/2", totalEvents, totalSessions)
	}

	hourlyWindow := models.TimeWindow{Start: models.TruncateBucket(now.Add(-2*time.Hour), models.Hour), End: now}
	hourlyRows, err := st.RollupRowsInRange(ctx, models.SourceHourly, hourlyWindow)
	if err != nil {
		t.Fatalf("RollupRowsInRange(hourly): %v", err)
	}
	if len(hourlyRows) != 2 {
		t.Fatalf("hourly rows = %d, want 2 completed hours", len(hourlyRows))
	}
	var hourlyEvents int64
	for _, row := range hourlyRows {
		hourlyEvents += row.Events
	}
	if hourlyEvents != 3 {
		t.Errorf("hourly events = %d, want all 3 folded up", hourlyEvents)
	}

	// A second pass over the same data converges to the same tables.
	sched.runPass(ctx)
	again, err := st.RollupRowsInRange(ctx, models.SourceMinute, window)
	if err != nil {
		t.Fatalf("RollupRowsInRange(minute) second pass: %v", err)
	}
	if len(again) != len(minuteRows) {
		t.Errorf("second pass rows = %d, want %d (idempotent rebuild)", len(again), len(minuteRows))
	}
}

func TestScheduler_ServeStopsOnCancel(t *testing.T) {
	st, loc := newSchedulerTestStore(t)
	sched := NewScheduler(st, config.RollupConfig{
		Interval: 50 * time.Millisecond,
		Lookback: time.Hour,
	}, loc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestScheduler_RateDefaults(t *testing.T) {
	st, loc := newSchedulerTestStore(t)

	unthrottled := NewScheduler(st, config.RollupConfig{Interval: time.Minute}, loc)
	if unthrottled.limiter.Limit() != rate.Inf {
		t.Errorf("zero rate limit = %v, want rate.Inf (unthrottled)", unthrottled.limiter.Limit())
	}

	throttled := NewScheduler(st, config.RollupConfig{Interval: time.Minute, RatePerSecond: 2}, loc)
	if throttled.limiter.Limit() != rate.Limit(2) {
		t.Errorf("configured rate limit = %v, want 2", throttled.limiter.Limit())
	}
}

func TestScheduler_String(t *testing.T) {
	st, loc := newSchedulerTestStore(t)
	if got := NewScheduler(st, config.RollupConfig{Interval: time.Minute}, loc).String(); got != "rollup-scheduler" {
		t.Errorf("String() = %q", got)
	}
}
