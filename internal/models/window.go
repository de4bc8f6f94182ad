// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package models defines the shared data types of the metrics engine:
// time windows, granularities, metric rows, measure kinds, and the API
// response envelope.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Granularity selects the calendar bucket size of a time series.
type Granularity string

// Supported granularities. Minute10 matches the finest rollup the store
// keeps (10-minute partials for the trailing hour).
const (
	Minute10 Granularity = "10min"
	Hour     Granularity = "hour"
	Day      Granularity = "day"
	Week     Granularity = "week"
	Month    Granularity = "month"
)

// ParseGranularity converts a user-facing string into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "10min", "minute10", "10m":
		return Minute10, nil
	case "hour", "hourly":
		return Hour, nil
	case "day", "daily", "":
		return Day, nil
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	default:
		return "", fmt.Errorf("invalid granularity: must be 10min, hour, day, week, or month")
	}
}

// TimeWindow is a half-open time range [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// IsEmpty reports whether the window contains no time at all.
func (w TimeWindow) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Intersect clamps the window to [start, end), returning the overlap.
func (w TimeWindow) Intersect(start, end time.Time) TimeWindow {
	out := w
	if out.Start.Before(start) {
		out.Start = start
	}
	if out.End.After(end) {
		out.End = end
	}
	return out
}

// TruncateBucket floors t to the start of its calendar bucket at the given
// granularity, in t's location. Weeks start on Monday.
func TruncateBucket(t time.Time, g Granularity) time.Time {
	switch g {
	case Minute10:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%10, 0, 0, t.Location())
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case Week:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
		return d.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

// NextBucket returns the start of the bucket following the one containing t.
func NextBucket(t time.Time, g Granularity) time.Time {
	start := TruncateBucket(t, g)
	switch g {
	case Minute10:
		return start.Add(10 * time.Minute)
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// BucketLabel formats the bucket containing t as the stable key charting
// callers group by. Week buckets are labeled by their Monday date.
func BucketLabel(t time.Time, g Granularity) string {
	start := TruncateBucket(t, g)
	switch g {
	case Minute10, Hour:
		return start.Format("2006-01-02 15:04")
	case Day, Week:
		return start.Format("2006-01-02")
	case Month:
		return start.Format("2006-01")
	default:
		return start.Format(time.RFC3339)
	}
}
