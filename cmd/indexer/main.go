// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Kinograph indexer. Crawls the TMDB catalog year by year, vectorizes
// the discovered movies, and writes the similarity index artifacts the
// server loads at startup.
//
//nolint:staticcheck // File documentation, not package doc
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/kinograph/internal/cache"
	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/crawl"
	"github.com/tomtom215/kinograph/internal/index"
	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/ratelimit"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("indexer failed")
		os.Exit(1)
	}
}

func run() error {
	var (
		startYear = flag.Int("start-year", 0, "first release year to crawl (overrides config)")
		endYear   = flag.Int("end-year", 0, "last release year to crawl (overrides config)")
		maxPages  = flag.Int("max-pages", 0, "page ceiling per year (overrides config)")
		metric    = flag.String("metric", "", "index distance metric (overrides config)")
		trees     = flag.Int("trees", 0, "index tree count (overrides config)")
		jobs      = flag.Int("jobs", 0, "index build parallelism (overrides config)")
		outputDir = flag.String("output-dir", "", "artifact directory (overrides config)")
		cfgPath   = flag.String("config", "", "config file path")
	)
	flag.Parse()

	if *cfgPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, *cfgPath); err != nil {
			return fmt.Errorf("set config path: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyOverrides(cfg, *startYear, *endYear, *maxPages, *metric, *trees, *jobs, *outputDir)

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if cfg.TMDB.APIKey == "" {
		return fmt.Errorf("TMDB API key is required; set KINOGRAPH_TMDB_API_KEY or TMDB_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The crawler's window limiter admits requests strictly within the
	// configured window, unlike a token bucket that bursts after idling.
	limiter := ratelimit.New(cfg.Crawler.RateLimit, cfg.Crawler.RateWindow)
	client := tmdb.NewClient(&cfg.TMDB, tmdb.WithAdmitter(limiter))

	movieCache := cache.New(cfg.Crawler.CacheFile)
	movieCache.Load()

	logging.Info().
		Int("start_year", cfg.Crawler.StartYear).
		Int("end_year", cfg.Crawler.EndYear).
		Int("max_pages_per_year", cfg.Crawler.MaxPagesPerYear).
		Msg("starting catalog crawl")

	crawler := crawl.New(client, movieCache, &cfg.Crawler)
	movies, err := crawler.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	if len(movies) == 0 {
		return fmt.Errorf("crawl discovered no movies, nothing to index")
	}

	logging.Info().Int("movies", len(movies)).Msg("crawl complete, building index")

	result, err := index.Build(movies, &cfg.Index)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	logging.Info().
		Int("items", result.Items).
		Int("excluded", result.Excluded).
		Int("trees", result.Trees).
		Str("dir", result.Dir).
		Msg("index artifacts written")
	return nil
}

// applyOverrides layers command-line flags over the loaded config.
// Zero or empty flag values leave the config untouched.
func applyOverrides(cfg *config.Config, startYear, endYear, maxPages int, metric string, trees, jobs int, outputDir string) {
	if startYear > 0 {
		cfg.Crawler.StartYear = startYear
	}
	if endYear > 0 {
		cfg.Crawler.EndYear = endYear
	}
	if maxPages > 0 {
		cfg.Crawler.MaxPagesPerYear = maxPages
	}
	if metric != "" {
		cfg.Index.Metric = metric
	}
	if trees > 0 {
		cfg.Index.Trees = trees
	}
	if jobs > 0 {
		cfg.Index.Jobs = jobs
	}
	if outputDir != "" {
		cfg.Index.Dir = outputDir
	}
}
