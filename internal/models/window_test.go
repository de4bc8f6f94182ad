// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package models

import (
	"testing"
	"time"
)

func TestParseGranularity(t *testing.T) {
	cases := []struct {
		in      string
		want    Granularity
		wantErr bool
	}{
		{"day", Day, false},
		{"daily", Day, false},
		{"", Day, false},
		{"Hour", Hour, false},
		{"10min", Minute10, false},
		{"10m", Minute10, false},
		{"WEEK", Week, false},
		{"monthly", Month, false},
		{" day ", Day, false},
		{"year", "", true},
		{"5min", "", true},
	}
	for _, tc := range cases {
		got, err := ParseGranularity(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseGranularity(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGranularity(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseGranularity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateBucket(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	ts := time.Date(2025, 7, 23, 14, 37, 42, 0, loc) // a Wednesday

	cases := []struct {
		g    Granularity
		want time.Time
	}{
		{Minute10, time.Date(2025, 7, 23, 14, 30, 0, 0, loc)},
		{Hour, time.Date(2025, 7, 23, 14, 0, 0, 0, loc)},
		{Day, time.Date(2025, 7, 23, 0, 0, 0, 0, loc)},
		{Week, time.Date(2025, 7, 21, 0, 0, 0, 0, loc)},
		{Month, time.Date(2025, 7, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		if got := TruncateBucket(ts, tc.g); !got.Equal(tc.want) {
			t.Errorf("TruncateBucket(%s) = %v, want %v", tc.g, got, tc.want)
		}
	}
}

// TestTruncateBucket_WeekOnSundayAndMonday pins the Monday week start on
// both edges of the week.
func TestTruncateBucket_WeekOnSundayAndMonday(t *testing.T) {
	loc := time.UTC
	sunday := time.Date(2025, 7, 27, 23, 0, 0, 0, loc)
	monday := time.Date(2025, 7, 21, 0, 0, 0, 0, loc)

	if got := TruncateBucket(sunday, Week); !got.Equal(monday) {
		t.Errorf("Sunday truncates to %v, want the preceding Monday %v", got, monday)
	}
	if got := TruncateBucket(monday, Week); !got.Equal(monday) {
		t.Errorf("Monday truncates to %v, want itself", got)
	}
}

func TestNextBucket(t *testing.T) {
	loc := time.UTC
	ts := time.Date(2025, 1, 31, 23, 55, 0, 0, loc)

	if got := NextBucket(ts, Minute10); !got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, loc)) {
		t.Errorf("NextBucket(10min) = %v", got)
	}
	if got := NextBucket(ts, Month); !got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, loc)) {
		t.Errorf("NextBucket(month) = %v", got)
	}
}

func TestBucketLabel(t *testing.T) {
	loc := time.UTC
	ts := time.Date(2025, 7, 23, 14, 37, 0, 0, loc)

	cases := []struct {
		g    Granularity
		want string
	}{
		{Minute10, "2025-07-23 14:30"},
		{Hour, "2025-07-23 14:00"},
		{Day, "2025-07-23"},
		{Week, "2025-07-21"},
		{Month, "2025-07"},
	}
	for _, tc := range cases {
		if got := BucketLabel(ts, tc.g); got != tc.want {
			t.Errorf("BucketLabel(%s) = %q, want %q", tc.g, got, tc.want)
		}
	}
}

func TestTimeWindowIntersect(t *testing.T) {
	loc := time.UTC
	w := TimeWindow{
		Start: time.Date(2025, 7, 15, 0, 0, 0, 0, loc),
		End:   time.Date(2025, 7, 22, 0, 0, 0, 0, loc),
	}

	got := w.Intersect(time.Date(2025, 7, 18, 0, 0, 0, 0, loc), time.Date(2025, 7, 25, 0, 0, 0, 0, loc))
	if !got.Start.Equal(time.Date(2025, 7, 18, 0, 0, 0, 0, loc)) || !got.End.Equal(w.End) {
		t.Errorf("Intersect = [%v, %v)", got.Start, got.End)
	}

	empty := w.Intersect(time.Date(2025, 8, 1, 0, 0, 0, 0, loc), time.Date(2025, 8, 2, 0, 0, 0, 0, loc))
	if !empty.IsEmpty() {
		t.Errorf("disjoint intersect not empty: [%v, %v)", empty.Start, empty.End)
	}
}
