// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Domain sizes per granularity. Day windows derive their size from the
// requested window instead (7 for the default weekly view, 30 for monthly).
const (
	hourDomainSize     = 24
	weekDomainSize     = 6
	monthDomainSize    = 12
	minute10DomainSize = 6
	maxDayDomainSize   = 366
)

// FillSeries expands a sparse series into the full ordered key domain for
// the requested granularity, synthesizing zero-valued entries for missing
// keys. Output preserves domain order, oldest to newest — the contract every
// charting caller depends on. The transform is pure and idempotent:
// FillSeries(FillSeries(x)) == FillSeries(x).
func FillSeries(sparse []models.DenseRow, family *Family, g models.Granularity, window models.TimeWindow, now time.Time) []models.DenseRow {
	keys := domainKeys(g, window, now)

	byKey := make(map[string]models.DenseRow, len(sparse))
	for _, row := range sparse {
		byKey[row.Key] = row
	}

	names := family.MeasureNames()
	out := make([]models.DenseRow, 0, len(keys))
	for _, key := range keys {
		row, ok := byKey[key]
		if !ok {
			row = models.DenseRow{Key: key}
		}
		// Uniform value set: every declared measure present on every row.
		values := make(map[string]float64, len(names))
		for _, name := range names {
			values[name] = row.Values[name]
		}
		row.Values = values
		out = append(out, row)
	}
	return out
}

// domainKeys builds the full ordered key domain the series is filled into.
// Hour, week, month, and 10-minute domains are anchored at now ("last 24
// hours ending now"); the day domain covers the requested window's calendar
// days, clamped to today.
func domainKeys(g models.Granularity, window models.TimeWindow, now time.Time) []string {
	switch g {
	case models.Hour:
		return trailingKeys(now, g, hourDomainSize)
	case models.Week:
		return trailingKeys(now, g, weekDomainSize)
	case models.Month:
		return trailingKeys(now, g, monthDomainSize)
	case models.Minute10:
		return trailingKeys(now, g, minute10DomainSize)
	case models.Day:
		return dayKeys(window, now)
	default:
		return nil
	}
}

// trailingKeys returns n bucket labels ending at the bucket containing now.
func trailingKeys(now time.Time, g models.Granularity, n int) []string {
	keys := make([]string, 0, n)
	cur := models.TruncateBucket(now, g)
	for i := n - 1; i >= 0; i-- {
		t := cur
		for j := 0; j < i; j++ {
			t = prevBucket(t, g)
		}
		keys = append(keys, models.BucketLabel(t, g))
	}
	return keys
}

// dayKeys covers every calendar day of the requested window. The window is
// half-open, so an end falling exactly on midnight does not add a day; the
// domain never extends past today.
func dayKeys(window models.TimeWindow, now time.Time) []string {
	first := models.TruncateBucket(window.Start, models.Day)

	last := models.TruncateBucket(window.End, models.Day)
	if window.End.Equal(last) && window.End.After(window.Start) {
		last = last.AddDate(0, 0, -1)
	}
	if today := models.TruncateBucket(now, models.Day); last.After(today) {
		last = today
	}

	var keys []string
	for d := first; !d.After(last) && len(keys) < maxDayDomainSize; d = d.AddDate(0, 0, 1) {
		keys = append(keys, models.BucketLabel(d, models.Day))
	}
	return keys
}

func prevBucket(t time.Time, g models.Granularity) time.Time {
	switch g {
	case models.Minute10:
		return t.Add(-10 * time.Minute)
	case models.Hour:
		return t.Add(-time.Hour)
	case models.Day:
		return t.AddDate(0, 0, -1)
	case models.Week:
		return t.AddDate(0, 0, -7)
	case models.Month:
		return t.AddDate(0, -1, 0)
	default:
		return t
	}
}
