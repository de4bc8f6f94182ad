// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package rollup

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/Eatventory/KlickLab-sub001/internal/config"
	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/metrics"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
	"github.com/Eatventory/KlickLab-sub001/internal/store"
)

// Scheduler periodically rebuilds the rollup tables. It runs as a suture
// service: Serve blocks until the context is canceled, and a panic or error
// gets the service restarted by the supervisor.
type Scheduler struct {
	store   *store.Store
	cfg     config.RollupConfig
	loc     *time.Location
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewScheduler constructs a rollup scheduler.
func NewScheduler(st *store.Store, cfg config.RollupConfig, loc *time.Location) *Scheduler {
	rps := rate.Limit(cfg.RatePerSecond)
	if rps <= 0 {
		rps = rate.Inf
	}
	return &Scheduler{
		store:   st,
		cfg:     cfg,
		loc:     loc,
		limiter: rate.NewLimiter(rps, 1),
		clock:   time.Now,
	}
}

// SetClock overrides the scheduler's time source for tests.
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "rollup-scheduler"
}

// Serve runs rollup passes at the configured interval until ctx is
// canceled. The first pass runs immediately so a fresh deployment has
// partial rollups before the first tick.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.cfg.Interval).
		Dur("lookback", s.cfg.Lookback).
		Msg("Rollup scheduler started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Rollup scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass rebuilds the three rollup tables, finest first so each coarser
// fold reads the pass's own fresh output. Errors are logged and counted,
// never fatal: the next tick retries.
func (s *Scheduler) runPass(ctx context.Context) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	now := s.clock().In(s.loc)

	if err := s.foldTenMinute(ctx, now); err != nil {
		logging.Error().Err(err).Msg("10-minute rollup pass failed")
	}
	if err := s.foldHourly(ctx, now); err != nil {
		logging.Error().Err(err).Msg("Hourly rollup pass failed")
	}
	if err := s.foldDaily(ctx, now); err != nil {
		logging.Error().Err(err).Msg("Daily rollup pass failed")
	}
}

// foldTenMinute reaggregates raw events over the lookback window into the
// 10-minute table. Only fully elapsed buckets are built; the bucket
// containing now is still accumulating events and is left out, matching
// the query path which never reads past the 10-minute floor.
func (s *Scheduler) foldTenMinute(ctx context.Context, now time.Time) error {
	start := time.Now()
	window := models.TimeWindow{
		Start: models.TruncateBucket(now.Add(-s.cfg.Lookback), models.Minute10),
		End:   models.TruncateBucket(now, models.Minute10),
	}
	err := s.foldWindow(ctx, window, models.SourceMinute)
	metrics.ObserveRollup("10min", time.Since(start), err)
	return err
}

func (s *Scheduler) foldHourly(ctx context.Context, now time.Time) error {
	start := time.Now()
	window := models.TimeWindow{
		Start: models.TruncateBucket(now.Add(-s.cfg.Lookback), models.Hour),
		End:   models.TruncateBucket(now, models.Hour),
	}
	err := s.foldWindow(ctx, window, models.SourceHourly)
	metrics.ObserveRollup("hourly", time.Since(start), err)
	return err
}

// foldDaily folds yesterday's hourly rows into the daily table once the day
// has closed. The daily fold finalizes the scalar visitor count.
func (s *Scheduler) foldDaily(ctx context.Context, now time.Time) error {
	start := time.Now()
	dayStart := models.TruncateBucket(now, models.Day)
	window := models.TimeWindow{Start: dayStart.AddDate(0, 0, -1), End: dayStart}
	err := s.foldWindow(ctx, window, models.SourceDaily)
	metrics.ObserveRollup("daily", time.Since(start), err)
	return err
}

// foldWindow rebuilds one rollup table over the given bucket window.
func (s *Scheduler) foldWindow(ctx context.Context, window models.TimeWindow, target models.Source) error {
	if window.IsEmpty() {
		return nil
	}

	var (
		rows []store.RollupRow
		err  error
	)
	switch target {
	case models.SourceMinute:
		var events []store.Event
		if events, err = s.store.EventsInRange(ctx, window); err != nil {
			return err
		}
		rows, err = FoldEvents(events)
	case models.SourceHourly:
		var fine []store.RollupRow
		if fine, err = s.store.RollupRowsInRange(ctx, models.SourceMinute, window); err != nil {
			return err
		}
		rows, err = FoldUp(fine, models.Hour, false)
	case models.SourceDaily:
		var fine []store.RollupRow
		if fine, err = s.store.RollupRowsInRange(ctx, models.SourceHourly, window); err != nil {
			return err
		}
		rows, err = FoldUp(fine, models.Day, true)
	}
	if err != nil {
		return err
	}

	if err := s.store.ReplaceBucketRange(ctx, target, window, rows); err != nil {
		return err
	}
	logging.Debug().
		Str("target", target.String()).
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Int("rows", len(rows)).
		Msg("Rollup pass complete")
	return nil
}
