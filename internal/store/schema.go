// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package store

import (
	"fmt"
)

// Rollup tables share one shape so the fold pipeline and the range query
// path can treat them uniformly. metrics_daily additionally carries the
// finalized visitors scalar written at day close; it stays NULL on the
// partial tables.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id   VARCHAR NOT NULL,
		account_id VARCHAR NOT NULL,
		ts         TIMESTAMP NOT NULL,
		visitor_id VARCHAR NOT NULL,
		session_id VARCHAR NOT NULL,
		event_name VARCHAR NOT NULL,
		page_url   VARCHAR,
		device     VARCHAR NOT NULL,
		channel    VARCHAR NOT NULL,
		duration   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_10min (
		account_id     VARCHAR NOT NULL,
		bucket_start   TIMESTAMP NOT NULL,
		device         VARCHAR NOT NULL,
		channel        VARCHAR NOT NULL,
		page_views     BIGINT NOT NULL DEFAULT 0,
		sessions       BIGINT NOT NULL DEFAULT 0,
		bounces        BIGINT NOT NULL DEFAULT 0,
		total_duration BIGINT NOT NULL DEFAULT 0,
		events         BIGINT NOT NULL DEFAULT 0,
		visitors_hll   BLOB,
		visitors       BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_hourly (
		account_id     VARCHAR NOT NULL,
		bucket_start   TIMESTAMP NOT NULL,
		device         VARCHAR NOT NULL,
		channel        VARCHAR NOT NULL,
		page_views     BIGINT NOT NULL DEFAULT 0,
		sessions       BIGINT NOT NULL DEFAULT 0,
		bounces        BIGINT NOT NULL DEFAULT 0,
		total_duration BIGINT NOT NULL DEFAULT 0,
		events         BIGINT NOT NULL DEFAULT 0,
		visitors_hll   BLOB,
		visitors       BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_daily (
		account_id     VARCHAR NOT NULL,
		bucket_start   TIMESTAMP NOT NULL,
		device         VARCHAR NOT NULL,
		channel        VARCHAR NOT NULL,
		page_views     BIGINT NOT NULL DEFAULT 0,
		sessions       BIGINT NOT NULL DEFAULT 0,
		bounces        BIGINT NOT NULL DEFAULT 0,
		total_duration BIGINT NOT NULL DEFAULT 0,
		events         BIGINT NOT NULL DEFAULT 0,
		visitors_hll   BLOB,
		visitors       BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_account_ts ON events (account_id, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_10min_account_bucket ON metrics_10min (account_id, bucket_start)`,
	`CREATE INDEX IF NOT EXISTS idx_hourly_account_bucket ON metrics_hourly (account_id, bucket_start)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_account_bucket ON metrics_daily (account_id, bucket_start)`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// additiveColumns is the allowlist of additive measure columns on the
// rollup tables. Measure names from request parameters are validated
// against it before being interpolated into SQL.
var additiveColumns = map[string]bool{
	"page_views":     true,
	"sessions":       true,
	"bounces":        true,
	"total_duration": true,
	"events":         true,
}

// sketchColumns maps sketch measure names to their blob column.
var sketchColumns = map[string]string{
	"visitors": "visitors_hll",
}

// dimensionColumns is the allowlist of dimension columns.
var dimensionColumns = map[string]bool{
	"device":  true,
	"channel": true,
}
