// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Kinograph API server. Loads the prebuilt similarity index artifacts,
// wires the TMDB client behind a circuit breaker, and serves search,
// movie detail, and recommendation endpoints under a supervision tree.
//
//nolint:staticcheck // File documentation, not package doc
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/kinograph/internal/api"
	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/index"
	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/recommend"
	"github.com/tomtom215/kinograph/internal/supervisor"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if cfg.TMDB.APIKey == "" {
		return fmt.Errorf("TMDB API key is required; set KINOGRAPH_TMDB_API_KEY")
	}

	// Recommendation candidates are resolved live, so the server paces
	// its upstream calls with the same budget as the crawler.
	rate := float64(cfg.Crawler.RateLimit) / cfg.Crawler.RateWindow.Seconds()
	client := tmdb.NewClient(&cfg.TMDB, tmdb.WithAdmitter(tmdb.NewPacer(rate, cfg.Crawler.RateLimit)))
	breaker := tmdb.NewCircuitBreakerClient(client)

	// A missing index is not fatal: the server starts degraded and the
	// readiness probe reports 503 until artifacts are built.
	artifacts, err := index.LoadArtifacts(&cfg.Index)
	if err != nil {
		logging.Warn().Err(err).Str("dir", cfg.Index.Dir).
			Msg("index artifacts unavailable, serving in degraded mode")
		artifacts = nil
	} else {
		logging.Info().Int("items", artifacts.Index.NItems()).
			Str("metric", cfg.Index.Metric).
			Msg("index artifacts loaded")
	}

	algorithm := "knn-" + cfg.Index.Metric
	ranker := recommend.New(artifacts, breaker, &cfg.Ranker, algorithm)

	handler := api.NewHandler(breaker, ranker, breaker)
	router := api.NewRouter(handler, &cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.Add(supervisor.NewHTTPServerService(server, treeCfg.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("starting http server")

	errCh := tree.ServeBackground(ctx)
	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("supervision tree failed: %w", err)
		}
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), treeCfg.ShutdownTimeout+time.Second)
		defer cancel()
		select {
		case <-errCh:
		case <-drainCtx.Done():
			logging.Warn().Msg("shutdown deadline exceeded")
		}
	}

	logging.Info().Msg("server stopped")
	return nil
}
