// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Event is one raw collected event as stored in the events table.
type Event struct {
	EventID   string
	AccountID string
	Timestamp time.Time
	VisitorID string
	SessionID string
	EventName string
	PageURL   string
	Device    string
	Channel   string
	// Duration is the time-on-page in seconds reported by the client.
	Duration int64
}

// RollupRow is one pre-aggregated row of a rollup table, keyed by account,
// bucket start, and the two dimension columns.
type RollupRow struct {
	AccountID   string
	BucketStart time.Time
	Device      string
	Channel     string

	PageViews     int64
	Sessions      int64
	Bounces       int64
	TotalDuration int64
	Events        int64

	// VisitorsHLL is the serialized distinct-visitor sketch.
	VisitorsHLL []byte

	// Visitors is the finalized scalar count, set only when the row's day
	// has closed.
	Visitors sql.NullInt64
}

// InsertEvent appends one raw event.
func (s *Store) InsertEvent(ctx context.Context, ev Event) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO events (event_id, account_id, ts, visitor_id, session_id, event_name, page_url, device, channel, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.AccountID, s.naiveTimestamp(ev.Timestamp), ev.VisitorID, ev.SessionID,
		ev.EventName, ev.PageURL, ev.Device, ev.Channel, ev.Duration)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventsInRange returns raw events in [window.Start, window.End) across all
// accounts, ordered by timestamp. The 10-minute fold consumes this.
func (s *Store) EventsInRange(ctx context.Context, window models.TimeWindow) ([]Event, error) {
	res, err := s.conn.QueryContext(ctx,
		`SELECT event_id, account_id, ts, visitor_id, session_id, event_name, page_url, device, channel, duration
		 FROM events WHERE ts >= ? AND ts < ? ORDER BY ts`,
		s.naiveTimestamp(window.Start), s.naiveTimestamp(window.End))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer closeRows(res)

	var out []Event
	for res.Next() {
		var ev Event
		var ts time.Time
		var pageURL sql.NullString
		if err := res.Scan(&ev.EventID, &ev.AccountID, &ts, &ev.VisitorID, &ev.SessionID,
			&ev.EventName, &pageURL, &ev.Device, &ev.Channel, &ev.Duration); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = s.inReportingZone(ts)
		ev.PageURL = pageURL.String
		out = append(out, ev)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// RollupRowsInRange returns rollup rows from one table with bucket_start in
// [window.Start, window.End). Coarser folds consume the next finer table
// through this.
func (s *Store) RollupRowsInRange(ctx context.Context, src models.Source, window models.TimeWindow) ([]RollupRow, error) {
	table, err := tableForSource(src)
	if err != nil {
		return nil, err
	}

	res, err := s.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT account_id, bucket_start, device, channel, page_views, sessions, bounces, total_duration, events, visitors_hll, visitors
		 FROM %s WHERE bucket_start >= ? AND bucket_start < ? ORDER BY bucket_start`, table),
		s.naiveTimestamp(window.Start), s.naiveTimestamp(window.End))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer closeRows(res)

	var out []RollupRow
	for res.Next() {
		var row RollupRow
		var bucketStart time.Time
		if err := res.Scan(&row.AccountID, &bucketStart, &row.Device, &row.Channel,
			&row.PageViews, &row.Sessions, &row.Bounces, &row.TotalDuration, &row.Events,
			&row.VisitorsHLL, &row.Visitors); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		row.BucketStart = s.inReportingZone(bucketStart)
		out = append(out, row)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// ReplaceBucketRange atomically replaces all rows of one rollup table whose
// bucket_start falls in [window.Start, window.End). Delete-then-insert in a
// single transaction keeps rollup passes idempotent: re-running a pass over
// the same range produces the same table state.
func (s *Store) ReplaceBucketRange(ctx context.Context, src models.Source, window models.TimeWindow, rows []RollupRow) error {
	table, err := tableForSource(src)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			logging.Debug().Err(rerr).Msg("Rollback failed")
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE bucket_start >= ? AND bucket_start < ?", table),
		s.naiveTimestamp(window.Start), s.naiveTimestamp(window.End)); err != nil {
		return fmt.Errorf("delete %s range: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (account_id, bucket_start, device, channel, page_views, sessions, bounces, total_duration, events, visitors_hll, visitors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close statement")
		}
	}()

	for _, row := range rows {
		var visitors any
		if row.Visitors.Valid {
			visitors = row.Visitors.Int64
		}
		if _, err := stmt.ExecContext(ctx,
			row.AccountID, s.naiveTimestamp(row.BucketStart), row.Device, row.Channel,
			row.PageViews, row.Sessions, row.Bounces, row.TotalDuration, row.Events,
			row.VisitorsHLL, visitors); err != nil {
			return fmt.Errorf("insert %s row: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func closeRows(res *sql.Rows) {
	if err := res.Close(); err != nil {
		logging.Debug().Err(err).Msg("Failed to close result set")
	}
}
