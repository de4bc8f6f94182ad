// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	return loc
}

func win(start, end time.Time) models.TimeWindow {
	return models.TimeWindow{Start: start, End: end}
}

// TestResolve_SpecScenario covers the canonical boundary split: a week-long
// window ending today, resolved at 14:07.
func TestResolve_SpecScenario(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 14, 7, 0, 0, loc)
	requested := win(
		time.Date(2025, 7, 15, 0, 0, 0, 0, loc),
		time.Date(2025, 7, 22, 0, 0, 0, 0, loc),
	)

	cls, err := Resolve(requested, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wantClosed := win(requested.Start, time.Date(2025, 7, 21, 0, 0, 0, 0, loc))
	wantOpenHour := win(time.Date(2025, 7, 21, 0, 0, 0, 0, loc), time.Date(2025, 7, 21, 13, 0, 0, 0, loc))
	wantOpenMinute := win(time.Date(2025, 7, 21, 13, 0, 0, 0, loc), time.Date(2025, 7, 21, 14, 0, 0, 0, loc))

	assertWindow(t, "closed", cls.Closed, &wantClosed)
	assertWindow(t, "open-hour", cls.OpenHour, &wantOpenHour)
	assertWindow(t, "open-minute", cls.OpenMinute, &wantOpenMinute)
}

// TestResolve_FullyClosed checks that windows ending before today never
// produce open ranges.
func TestResolve_FullyClosed(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 14, 7, 0, 0, loc)

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{"last week", time.Date(2025, 7, 7, 0, 0, 0, 0, loc), time.Date(2025, 7, 14, 0, 0, 0, 0, loc)},
		{"ends at midnight today", time.Date(2025, 7, 14, 0, 0, 0, 0, loc), time.Date(2025, 7, 21, 0, 0, 0, 0, loc)},
		{"single past day", time.Date(2025, 7, 1, 0, 0, 0, 0, loc), time.Date(2025, 7, 2, 0, 0, 0, 0, loc)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls, err := Resolve(win(tc.start, tc.end), now)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if cls.OpenHour != nil {
				t.Errorf("expected no open-hour range, got %v", *cls.OpenHour)
			}
			if cls.OpenMinute != nil {
				t.Errorf("expected no open-minute range, got %v", *cls.OpenMinute)
			}
			if cls.Closed == nil {
				t.Fatal("expected closed range")
			}
			if !cls.Closed.Start.Equal(tc.start) || !cls.Closed.End.Equal(tc.end) {
				t.Errorf("closed = [%v, %v), want [%v, %v)", cls.Closed.Start, cls.Closed.End, tc.start, tc.end)
			}
		})
	}
}

// TestResolve_FullyOpen checks the today-only split: open-hour up to the
// previous completed hour, open-minute up to the 10-minute floor.
func TestResolve_FullyOpen(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 14, 37, 0, 0, loc)
	dayStart := time.Date(2025, 7, 21, 0, 0, 0, 0, loc)

	cls, err := Resolve(win(dayStart, now), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cls.Closed != nil {
		t.Errorf("expected no closed range, got %v", *cls.Closed)
	}
	wantOpenHour := win(dayStart, time.Date(2025, 7, 21, 13, 0, 0, 0, loc))
	wantOpenMinute := win(time.Date(2025, 7, 21, 13, 0, 0, 0, loc), time.Date(2025, 7, 21, 14, 30, 0, 0, loc))
	assertWindow(t, "open-hour", cls.OpenHour, &wantOpenHour)
	assertWindow(t, "open-minute", cls.OpenMinute, &wantOpenMinute)
}

// TestResolve_EarlyMorning exercises the seam where the previous completed
// hour lies before midnight: the open-minute range must not reach back into
// territory the closed range already covers.
func TestResolve_EarlyMorning(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 0, 25, 0, 0, loc)
	requested := win(time.Date(2025, 7, 20, 0, 0, 0, 0, loc), now)

	cls, err := Resolve(requested, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	dayStart := time.Date(2025, 7, 21, 0, 0, 0, 0, loc)
	wantClosed := win(requested.Start, dayStart)
	wantOpenMinute := win(dayStart, time.Date(2025, 7, 21, 0, 20, 0, 0, loc))

	assertWindow(t, "closed", cls.Closed, &wantClosed)
	if cls.OpenHour != nil {
		t.Errorf("expected no open-hour range, got %v", *cls.OpenHour)
	}
	assertWindow(t, "open-minute", cls.OpenMinute, &wantOpenMinute)
	assertDisjointCovering(t, cls)
}

// TestResolve_InvalidRange rejects start after end before any store call.
func TestResolve_InvalidRange(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 14, 7, 0, 0, loc)

	_, err := Resolve(win(now, now.Add(-time.Hour)), now)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

// TestResolve_EmptyWindow allows start == end and yields no sub-ranges.
func TestResolve_EmptyWindow(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 14, 7, 0, 0, loc)

	cls, err := Resolve(win(now, now), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(cls.Sources()) != 0 {
		t.Errorf("expected no sources for an empty window, got %d", len(cls.Sources()))
	}
}

// Sub-day granularities read their closed sub-range from the finer tables;
// day-and-coarser keep the daily table.
func TestSourcesFor(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 7, 21, 14, 7, 0, 0, loc)

	cls, err := Resolve(win(time.Date(2025, 7, 18, 0, 0, 0, 0, loc), now), now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	cases := []struct {
		granularity models.Granularity
		closed      models.Source
	}{
		{models.Day, models.SourceDaily},
		{models.Week, models.SourceDaily},
		{models.Month, models.SourceDaily},
		{models.Hour, models.SourceHourly},
		{models.Minute10, models.SourceMinute},
	}
	for _, tc := range cases {
		sources := cls.SourcesFor(tc.granularity)
		if len(sources) != 3 {
			t.Fatalf("%s: got %d sources, want 3", tc.granularity, len(sources))
		}
		if sources[0].Source != tc.closed {
			t.Errorf("%s: closed sub-range source = %s, want %s", tc.granularity, sources[0].Source, tc.closed)
		}
		if !sources[0].Window.Start.Equal(cls.Closed.Start) || !sources[0].Window.End.Equal(cls.Closed.End) {
			t.Errorf("%s: remapping must not move the closed window", tc.granularity)
		}
		if sources[1].Source != models.SourceHourly || sources[2].Source != models.SourceMinute {
			t.Errorf("%s: open sub-range sources changed: %s, %s", tc.granularity, sources[1].Source, sources[2].Source)
		}
	}
}

// TestResolve_DisjointAndCovering verifies the structural no-double-counting
// invariant across a spread of clock positions and windows.
func TestResolve_DisjointAndCovering(t *testing.T) {
	loc := mustLoc(t)

	nows := []time.Time{
		time.Date(2025, 7, 21, 14, 7, 0, 0, loc),
		time.Date(2025, 7, 21, 0, 5, 0, 0, loc),
		time.Date(2025, 7, 21, 1, 0, 0, 0, loc),
		time.Date(2025, 7, 21, 23, 59, 0, 0, loc),
		time.Date(2025, 12, 31, 23, 55, 0, 0, loc),
	}
	windows := []models.TimeWindow{
		win(time.Date(2025, 7, 14, 0, 0, 0, 0, loc), time.Date(2025, 7, 22, 0, 0, 0, 0, loc)),
		win(time.Date(2025, 7, 21, 0, 0, 0, 0, loc), time.Date(2025, 7, 22, 0, 0, 0, 0, loc)),
		win(time.Date(2025, 6, 1, 0, 0, 0, 0, loc), time.Date(2026, 1, 1, 0, 0, 0, 0, loc)),
		win(time.Date(2025, 7, 21, 13, 30, 0, 0, loc), time.Date(2025, 7, 21, 14, 0, 0, 0, loc)),
	}

	for _, now := range nows {
		for _, w := range windows {
			cls, err := Resolve(w, now)
			if err != nil {
				t.Fatalf("Resolve(%v at %v) failed: %v", w, now, err)
			}
			assertDisjointCovering(t, cls)

			tenMinFloor := models.TruncateBucket(now, models.Minute10)
			for _, sw := range cls.Sources() {
				if sw.Window.End.After(tenMinFloor) {
					t.Errorf("sub-range %v at %v extends past the 10-minute floor %v", sw, now, tenMinFloor)
				}
			}

			// Union of present sub-ranges must equal the requested window
			// clamped to the 10-minute floor.
			expected := w.Intersect(w.Start, tenMinFloor)
			total := time.Duration(0)
			for _, sw := range cls.Sources() {
				total += sw.Window.End.Sub(sw.Window.Start)
			}
			wantTotal := time.Duration(0)
			if !expected.IsEmpty() {
				wantTotal = expected.End.Sub(expected.Start)
			}
			if total != wantTotal {
				t.Errorf("sub-ranges cover %v of the window at %v, want %v", total, now, wantTotal)
			}
		}
	}
}

func assertWindow(t *testing.T, name string, got *models.TimeWindow, want *models.TimeWindow) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Errorf("%s = [%v, %v), want none", name, got.Start, got.End)
		}
		return
	}
	if got == nil {
		t.Errorf("%s missing, want [%v, %v)", name, want.Start, want.End)
		return
	}
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Errorf("%s = [%v, %v), want [%v, %v)", name, got.Start, got.End, want.Start, want.End)
	}
}

// assertDisjointCovering checks present sub-ranges are non-overlapping and
// contiguous in chronological order.
func assertDisjointCovering(t *testing.T, cls Classification) {
	t.Helper()
	sources := cls.Sources()
	for i := 1; i < len(sources); i++ {
		prev, cur := sources[i-1].Window, sources[i].Window
		if cur.Start.Before(prev.End) {
			t.Errorf("sub-ranges overlap: %v then %v", prev, cur)
		}
		if !cur.Start.Equal(prev.End) {
			t.Errorf("sub-ranges not contiguous: %v then %v", prev, cur)
		}
	}
}
