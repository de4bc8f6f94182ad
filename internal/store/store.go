// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package store persists raw events and the three rollup tables in DuckDB
// and serves the range queries the merge engine consumes.
//
// Layout:
//   - events: raw collected events, append-only
//   - metrics_10min: 10-minute partial rollups for the trailing hour
//   - metrics_hourly: hourly partial rollups for today
//   - metrics_daily: durable daily rollups for completed days
//
// The partial tables carry distinct-visitor state as serialized HLL sketch
// blobs so partial windows stay mergeable; the daily table additionally
// finalizes the scalar visitor count at day close.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Eatventory/KlickLab-sub001/internal/config"
	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Store wraps the DuckDB connection and provides data access methods.
type Store struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// loc is the reporting time zone. DuckDB TIMESTAMP columns are
	// zone-naive; every timestamp crossing the store boundary is written
	// and reinterpreted as wall-clock time in this zone.
	loc *time.Location

	// breaker trips after repeated query failures so a wedged database
	// degrades to fast 503s instead of piling up blocked requests.
	breaker *gobreaker.CircuitBreaker[[]models.MetricRow]
}

// New opens the database, configures the connection pool, and initializes
// the schema.
func New(cfg *config.DatabaseConfig, loc *time.Location) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for the database file.
	if dbDir := filepath.Dir(cfg.Path); dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s",
		cfg.Path, numThreads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}

	s := &Store{
		conn: conn,
		cfg:  cfg,
		loc:  loc,
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]models.MetricRow](gobreaker.Settings{
		Name:    "store-query",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store circuit breaker state change")
		},
	})

	s.configurePool(numThreads)

	if err := s.initSchema(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Store opened")
	return s, nil
}

func (s *Store) configurePool(numThreads int) {
	s.conn.SetMaxOpenConns(numThreads)
	s.conn.SetMaxIdleConns(2)
	s.conn.SetConnMaxLifetime(time.Hour)
	s.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying SQL connection for maintenance tooling.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("Failed to close database connection")
	}
}

// tableForSource maps a rollup source to its table name.
func tableForSource(src models.Source) (string, error) {
	switch src {
	case models.SourceMinute:
		return "metrics_10min", nil
	case models.SourceHourly:
		return "metrics_hourly", nil
	case models.SourceDaily:
		return "metrics_daily", nil
	default:
		return "", fmt.Errorf("unknown rollup source %d", src)
	}
}

// naiveTimestamp formats t as the zone-naive wall-clock literal DuckDB
// TIMESTAMP columns store, in the reporting zone.
func (s *Store) naiveTimestamp(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02 15:04:05")
}

// inReportingZone reinterprets a scanned zone-naive timestamp as wall-clock
// time in the reporting zone.
func (s *Store) inReportingZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.loc)
}
