// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/klicklab/config.yaml",
	"/etc/klicklab/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces every KlickLab environment variable.
const envPrefix = "KLICKLAB_"

// defaultConfig returns a Config with all defaults applied. These are
// loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:                   "/data/klicklab.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Engine: EngineConfig{
			TimeZone: "Asia/Seoul",
		},
		Cache: CacheConfig{
			TTL:             30 * time.Second,
			CleanupInterval: time.Minute,
		},
		Rollup: RollupConfig{
			Enabled:       true,
			Interval:      time.Minute,
			Lookback:      2 * time.Hour,
			RatePerSecond: 2,
		},
		API: APIConfig{
			DefaultWindowDays: 7,
			MaxWindowDays:     366,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values for every setting
//  2. Config file: optional YAML file (config.yaml)
//  3. Environment variables: KLICKLAB_-prefixed overrides, highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// KLICKLAB_SERVER_PORT -> server.port, KLICKLAB_DATABASE_MAX_MEMORY ->
	// database.max_memory, and so on via the explicit mapping table.
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first readable config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKeyMap pins each supported environment variable to its config path.
// Section and field names both contain underscores, so a mechanical
// underscore-to-dot transform cannot tell KLICKLAB_DATABASE_MAX_MEMORY
// apart from a three-level path; the table keeps the mapping unambiguous.
var envKeyMap = map[string]string{
	"SERVER_PORT":              "server.port",
	"SERVER_HOST":              "server.host",
	"SERVER_TIMEOUT":           "server.timeout",
	"SERVER_ENVIRONMENT":       "server.environment",
	"DATABASE_PATH":            "database.path",
	"DATABASE_MAX_MEMORY":      "database.max_memory",
	"DATABASE_THREADS":         "database.threads",
	"ENGINE_TIME_ZONE":         "engine.time_zone",
	"CACHE_TTL":                "cache.ttl",
	"CACHE_CLEANUP_INTERVAL":   "cache.cleanup_interval",
	"ROLLUP_ENABLED":           "rollup.enabled",
	"ROLLUP_INTERVAL":          "rollup.interval",
	"ROLLUP_LOOKBACK":          "rollup.lookback",
	"ROLLUP_RATE_PER_SECOND":   "rollup.rate_per_second",
	"API_DEFAULT_WINDOW_DAYS":  "api.default_window_days",
	"API_MAX_WINDOW_DAYS":      "api.max_window_days",
	"API_RATE_LIMIT_REQS":      "api.rate_limit_reqs",
	"API_RATE_LIMIT_WINDOW":    "api.rate_limit_window",
	"API_CORS_ORIGINS":         "api.cors_origins",
	"LOG_LEVEL":                "logging.level",
	"LOG_FORMAT":               "logging.format",
	"LOG_CALLER":               "logging.caller",
}

// envTransform maps a KLICKLAB_-prefixed variable name to its koanf path.
// Unknown variables are dropped.
func envTransform(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	return envKeyMap[key]
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as env var strings.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
