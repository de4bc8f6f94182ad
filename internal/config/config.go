// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package config provides centralized configuration for all application
// components, loaded in layers: built-in defaults, then an optional YAML
// config file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration. It is immutable after Load()
// and safe for concurrent read access.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Engine   EngineConfig   `koanf:"engine"`
	Cache    CacheConfig    `koanf:"cache"`
	Rollup   RollupConfig   `koanf:"rollup"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Host        string        `koanf:"host" validate:"required"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=1s"`
	Environment string        `koanf:"environment" validate:"oneof=development staging production"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory" validate:"required"`
	// Threads is the number of DuckDB threads (0 = use NumCPU).
	Threads                int  `koanf:"threads" validate:"min=0"`
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// EngineConfig holds merge engine settings.
type EngineConfig struct {
	// TimeZone is the IANA name of the reporting time zone. Day boundaries,
	// the hour floor, and week starts are all computed in this zone.
	TimeZone string `koanf:"time_zone" validate:"required"`
}

// CacheConfig holds dashboard query cache settings.
type CacheConfig struct {
	// TTL is the freshness window for cached dashboard responses.
	// 0 disables caching; concurrent identical queries still coalesce.
	TTL             time.Duration `koanf:"ttl" validate:"min=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"min=1s"`
}

// RollupConfig holds the rollup scheduler settings.
type RollupConfig struct {
	Enabled bool `koanf:"enabled"`
	// Interval is how often partial rollups are refreshed.
	Interval time.Duration `koanf:"interval" validate:"min=1s"`
	// Lookback bounds how far back a rollup pass re-aggregates, covering
	// late-arriving events without rescanning history.
	Lookback time.Duration `koanf:"lookback" validate:"min=1m"`
	// RatePerSecond throttles rollup passes against the store.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"min=0"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	// DefaultWindowDays is the window applied when a request carries no
	// explicit start/end dates.
	DefaultWindowDays int           `koanf:"default_window_days" validate:"min=1"`
	MaxWindowDays     int           `koanf:"max_window_days" validate:"min=1"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Engine.TimeZone); err != nil {
		return fmt.Errorf("invalid engine.time_zone %q: %w", c.Engine.TimeZone, err)
	}
	if c.API.MaxWindowDays < c.API.DefaultWindowDays {
		return fmt.Errorf("api.max_window_days (%d) must be >= api.default_window_days (%d)",
			c.API.MaxWindowDays, c.API.DefaultWindowDays)
	}
	return nil
}
