// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Classification splits a requested window into the sub-ranges served by the
// three rollup tables. The sub-ranges are pairwise disjoint and, where
// present, contiguous; their union is the requested window intersected with
// [start, tenMinFloor(now)]. Disjointness is what guarantees no event is
// counted twice: deduplication after the fact is never needed.
type Classification struct {
	// Closed covers complete calendar days, served from the daily table
	// at day-and-coarser granularities and from the finer tables below
	// that (see SourcesFor).
	Closed *models.TimeWindow

	// OpenHour covers today's completed hours, served from the hourly table.
	OpenHour *models.TimeWindow

	// OpenMinute covers the most recent incomplete hour, served from the
	// 10-minute table. Always ends at the 10-minute floor of now: the
	// current partial 10-minute bucket does not yet exist in the store.
	OpenMinute *models.TimeWindow
}

// Resolve classifies the requested window against an injected now.
//
// The store keeps three tables of increasing freshness and decreasing
// completeness: daily rollups land once per day after midnight, hourly
// rollups land once the following hour completes, 10-minute rollups land
// every few minutes for the trailing hour. Any fully elapsed period is read
// from the coarsest table that already covers it; only the still-accumulating
// present falls through to the finer tables.
func Resolve(requested models.TimeWindow, now time.Time) (Classification, error) {
	if requested.Start.After(requested.End) {
		return Classification{}, ErrInvalidRange
	}

	dayStart := models.TruncateBucket(now, models.Day)
	tenMinFloor := models.TruncateBucket(now, models.Minute10)
	// Start of the most recent fully completed hour. Its rollup has not
	// been batched into the hourly table yet, so it is read from the
	// 10-minute table instead.
	hourFloor := models.TruncateBucket(now, models.Hour).Add(-time.Hour)

	cls := Classification{}

	closed := requested.Intersect(requested.Start, dayStart)
	if !closed.IsEmpty() {
		cls.Closed = &closed
	}

	openHour := requested.Intersect(dayStart, minTime(hourFloor, tenMinFloor))
	if !openHour.IsEmpty() {
		cls.OpenHour = &openHour
	}

	// The open-minute range never reaches back past midnight: everything
	// before dayStart already belongs to the closed range.
	minuteLow := hourFloor
	if minuteLow.Before(dayStart) {
		minuteLow = dayStart
	}
	openMinute := requested.Intersect(minuteLow, tenMinFloor)
	if !openMinute.IsEmpty() {
		cls.OpenMinute = &openMinute
	}

	return cls, nil
}

// Sources pairs each present sub-range with its rollup table, in
// chronological order.
func (c Classification) Sources() []SourceWindow {
	var out []SourceWindow
	if c.Closed != nil {
		out = append(out, SourceWindow{Source: models.SourceDaily, Window: *c.Closed})
	}
	if c.OpenHour != nil {
		out = append(out, SourceWindow{Source: models.SourceHourly, Window: *c.OpenHour})
	}
	if c.OpenMinute != nil {
		out = append(out, SourceWindow{Source: models.SourceMinute, Window: *c.OpenMinute})
	}
	return out
}

// SourcesFor binds each sub-range to the table that can serve it at the
// requested granularity. The closed sub-range normally reads the daily
// table, but day-resolution rows cannot populate a sub-day chart: a closed
// day's midnight bucket would land outside the hour or 10-minute domain
// and the day's data would silently vanish. Sub-day granularities read
// their closed sub-range from the finer table instead; rollups only
// rewrite buckets inside their lookback window, so older fine-grained
// rows persist.
func (c Classification) SourcesFor(g models.Granularity) []SourceWindow {
	out := c.Sources()
	for i := range out {
		if out[i].Source != models.SourceDaily {
			continue
		}
		switch g {
		case models.Hour:
			out[i].Source = models.SourceHourly
		case models.Minute10:
			out[i].Source = models.SourceMinute
		}
	}
	return out
}

// SourceWindow is one sub-range bound to the table that serves it.
type SourceWindow struct {
	Source models.Source
	Window models.TimeWindow
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
