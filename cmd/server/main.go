// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package main is the entry point for the KlickLab analytics server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 load (defaults, config.yaml, KLICKLAB_ env)
//  2. Database: DuckDB with the events table and three pre-aggregated tiers
//  3. Merge engine: window classification, sketch merge, ratio recompute, gap fill
//  4. Rollup scheduler: folds raw events upward through the tiers
//  5. HTTP server: dashboard API, event ingest, CSV export, Prometheus metrics
//
// Long-running services (rollup scheduler, HTTP server) run under a suture
// supervisor tree and shut down gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eatventory/KlickLab-sub001/internal/api"
	"github.com/Eatventory/KlickLab-sub001/internal/cache"
	"github.com/Eatventory/KlickLab-sub001/internal/config"
	"github.com/Eatventory/KlickLab-sub001/internal/engine"
	"github.com/Eatventory/KlickLab-sub001/internal/logging"
	"github.com/Eatventory/KlickLab-sub001/internal/rollup"
	"github.com/Eatventory/KlickLab-sub001/internal/store"
	"github.com/Eatventory/KlickLab-sub001/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("timezone", cfg.Engine.TimeZone).
		Msg("Starting KlickLab")

	loc, err := time.LoadLocation(cfg.Engine.TimeZone)
	if err != nil {
		logging.Fatal().Err(err).Str("timezone", cfg.Engine.TimeZone).Msg("Invalid reporting timezone")
	}

	db, err := store.New(&cfg.Database, loc)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	eng, err := engine.New(db, engine.BuiltinFamilies(), loc)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build merge engine")
	}

	responseCache := cache.New(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	defer responseCache.Close()

	handler := api.NewHandler(eng, db, responseCache, cfg, loc, db.Ping)
	router := api.NewRouter(handler, &cfg.API)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if cfg.Rollup.Enabled {
		tree.AddPipelineService(rollup.NewScheduler(db, cfg.Rollup, loc))
		logging.Info().
			Dur("interval", cfg.Rollup.Interval).
			Dur("lookback", cfg.Rollup.Lookback).
			Msg("Rollup scheduler added")
	} else {
		logging.Warn().Msg("Rollup disabled; pre-aggregated tiers will go stale")
	}

	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor error")
		}
	}

	logging.Info().Msg("KlickLab stopped gracefully")
}
