// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package rollup

import (
	"fmt"
	"testing"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
	"github.com/Eatventory/KlickLab-sub001/internal/sketch"
	"github.com/Eatventory/KlickLab-sub001/internal/store"
)

func seoulLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	return loc
}

func TestFoldEvents(t *testing.T) {
	loc := seoulLoc(t)
	base := time.Date(2025, 7, 21, 13, 2, 0, 0, loc)

	events := []store.Event{
		// Session s1: two events, not a bounce.
		{AccountID: "acct-1", Timestamp: base, VisitorID: "v1", SessionID: "s1", EventName: "page_view", Device: "mobile", Channel: "organic", Duration: 12},
		{AccountID: "acct-1", Timestamp: base.Add(4 * time.Minute), VisitorID: "v1", SessionID: "s1", EventName: "click", Device: "mobile", Channel: "organic", Duration: 8},
		// Session s2: single event, a bounce.
		{AccountID: "acct-1", Timestamp: base.Add(5 * time.Minute), VisitorID: "v2", SessionID: "s2", EventName: "page_view", Device: "mobile", Channel: "organic", Duration: 3},
		// Different dimension values, own row.
		{AccountID: "acct-1", Timestamp: base.Add(time.Minute), VisitorID: "v3", SessionID: "s3", EventName: "page_view", Device: "desktop", Channel: "paid", Duration: 20},
		// Next 10-minute bucket.
		{AccountID: "acct-1", Timestamp: base.Add(10 * time.Minute), VisitorID: "v1", SessionID: "s1", EventName: "page_view", Device: "mobile", Channel: "organic", Duration: 5},
	}

	rows, err := FoldEvents(events)
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	bucket := time.Date(2025, 7, 21, 13, 0, 0, 0, loc)
	var mobile *store.RollupRow
	for i := range rows {
		if rows[i].Device == "mobile" && rows[i].BucketStart.Equal(bucket) {
			mobile = &rows[i]
		}
	}
	if mobile == nil {
		t.Fatal("missing mobile/organic row for the 13:00 bucket")
	}
	if mobile.Events != 3 {
		t.Errorf("events = %d, want 3", mobile.Events)
	}
	if mobile.PageViews != 2 {
		t.Errorf("page_views = %d, want 2", mobile.PageViews)
	}
	if mobile.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", mobile.Sessions)
	}
	if mobile.Bounces != 1 {
		t.Errorf("bounces = %d, want 1", mobile.Bounces)
	}
	if mobile.TotalDuration != 23 {
		t.Errorf("total_duration = %d, want 23", mobile.TotalDuration)
	}

	sk, err := sketch.Unmarshal(mobile.VisitorsHLL)
	if err != nil {
		t.Fatalf("unmarshal sketch failed: %v", err)
	}
	if got := sk.Estimate(); got != 2 {
		t.Errorf("distinct visitors = %d, want 2", got)
	}
	if mobile.Visitors.Valid {
		t.Error("partial row must not carry a finalized visitor count")
	}
}

func TestFoldUp_HourlyFromTenMinute(t *testing.T) {
	loc := seoulLoc(t)
	hour := time.Date(2025, 7, 21, 13, 0, 0, 0, loc)

	mkState := func(ids ...string) []byte {
		sk := sketch.New()
		for _, id := range ids {
			sk.Insert(id)
		}
		state, err := sk.Marshal()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		return state
	}

	fine := []store.RollupRow{
		{AccountID: "acct-1", BucketStart: hour, Device: "mobile", Channel: "organic", PageViews: 5, Sessions: 2, Events: 7, VisitorsHLL: mkState("v1", "v2")},
		{AccountID: "acct-1", BucketStart: hour.Add(10 * time.Minute), Device: "mobile", Channel: "organic", PageViews: 3, Sessions: 1, Events: 4, VisitorsHLL: mkState("v1", "v3")},
		{AccountID: "acct-1", BucketStart: hour.Add(time.Hour), Device: "mobile", Channel: "organic", PageViews: 8, Sessions: 3, Events: 9, VisitorsHLL: mkState("v4")},
	}

	coarse, err := FoldUp(fine, models.Hour, false)
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	if len(coarse) != 2 {
		t.Fatalf("got %d rows, want 2 hourly buckets", len(coarse))
	}

	first := coarse[0]
	if !first.BucketStart.Equal(hour) {
		t.Errorf("first bucket = %v, want %v", first.BucketStart, hour)
	}
	if first.PageViews != 8 || first.Sessions != 3 || first.Events != 11 {
		t.Errorf("sums = pv %d, sess %d, ev %d, want 8, 3, 11", first.PageViews, first.Sessions, first.Events)
	}

	// v1 appears in both fine buckets: the union must count it once.
	sk, err := sketch.Unmarshal(first.VisitorsHLL)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := sk.Estimate(); got != 3 {
		t.Errorf("unioned visitors = %d, want 3 (v1 deduplicated)", got)
	}
}

func TestFoldUp_DailyFinalizesVisitors(t *testing.T) {
	loc := seoulLoc(t)
	day := time.Date(2025, 7, 20, 0, 0, 0, 0, loc)

	mkState := func(prefix string, n int) []byte {
		sk := sketch.New()
		for i := 0; i < n; i++ {
			sk.Insert(fmt.Sprintf("%s-%d", prefix, i))
		}
		state, err := sk.Marshal()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		return state
	}

	hourly := []store.RollupRow{
		{AccountID: "acct-1", BucketStart: day.Add(9 * time.Hour), Device: "mobile", Channel: "organic", PageViews: 50, VisitorsHLL: mkState("a", 20)},
		{AccountID: "acct-1", BucketStart: day.Add(14 * time.Hour), Device: "mobile", Channel: "organic", PageViews: 70, VisitorsHLL: mkState("b", 25)},
	}

	daily, err := FoldUp(hourly, models.Day, true)
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	if len(daily) != 1 {
		t.Fatalf("got %d rows, want 1", len(daily))
	}
	row := daily[0]
	if !row.BucketStart.Equal(day) {
		t.Errorf("bucket = %v, want %v", row.BucketStart, day)
	}
	if row.PageViews != 120 {
		t.Errorf("page_views = %d, want 120", row.PageViews)
	}
	if !row.Visitors.Valid {
		t.Fatal("daily row missing finalized visitor count")
	}
	if row.Visitors.Int64 != 45 {
		t.Errorf("visitors = %d, want 45", row.Visitors.Int64)
	}
	if len(row.VisitorsHLL) == 0 {
		t.Error("daily row must keep the sketch state for re-folds")
	}
}

func TestFoldEvents_Empty(t *testing.T) {
	rows, err := FoldEvents(nil)
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows from no events, want 0", len(rows))
	}
}

// TestFoldUp_Idempotent folds the same input twice and expects identical
// output, the property the delete-then-insert replace relies on.
func TestFoldUp_Idempotent(t *testing.T) {
	loc := seoulLoc(t)
	hour := time.Date(2025, 7, 21, 13, 0, 0, 0, loc)

	sk := sketch.New()
	sk.Insert("v1")
	state, err := sk.Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	fine := []store.RollupRow{
		{AccountID: "acct-1", BucketStart: hour, Device: "mobile", Channel: "organic", PageViews: 5, VisitorsHLL: state},
	}

	a, err := FoldUp(fine, models.Hour, false)
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	b, err := FoldUp(fine, models.Hour, false)
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	if len(a) != len(b) || a[0].PageViews != b[0].PageViews || string(a[0].VisitorsHLL) != string(b[0].VisitorsHLL) {
		t.Error("fold output differs across identical runs")
	}
}
