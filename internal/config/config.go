// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Package config provides layered configuration for Kinograph using Koanf:
// built-in defaults, an optional YAML file, and environment variable
// overrides, in increasing order of precedence.
package config

import (
	"time"
)

// Config is the root configuration for both the indexer and the server.
type Config struct {
	TMDB    TMDBConfig    `koanf:"tmdb"`
	Crawler CrawlerConfig `koanf:"crawler"`
	Index   IndexConfig   `koanf:"index"`
	Ranker  RankerConfig  `koanf:"ranker"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// TMDBConfig configures the upstream TMDB API client.
type TMDBConfig struct {
	// APIKey authenticates all TMDB requests. Supplied out-of-band via
	// KINOGRAPH_TMDB_API_KEY (or legacy TMDB_API_KEY).
	APIKey string `koanf:"api_key"`

	// BaseURL is the TMDB API root.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Language is passed on every request.
	Language string `koanf:"language"`

	// Timeout bounds each individual HTTP request. No timeout spans an
	// entire crawl partition.
	Timeout time.Duration `koanf:"timeout"`

	// RetryAttempts bounds transport-level retries for transient failures.
	RetryAttempts int `koanf:"retry_attempts" validate:"min=0,max=10"`

	// RetryDelay is the base delay between retry attempts.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// CrawlerConfig configures the paginated catalog crawler.
type CrawlerConfig struct {
	// StartYear and EndYear bound the release-year partitions, inclusive.
	StartYear int `koanf:"start_year" validate:"min=1874"`
	EndYear   int `koanf:"end_year" validate:"min=1874"`

	// MaxPagesPerYear caps pagination within one partition. The declared
	// total page count reported by the API stops the crawl earlier.
	MaxPagesPerYear int `koanf:"max_pages_per_year" validate:"min=1"`

	// BatchSize is the number of pages fetched concurrently per batch.
	BatchSize int `koanf:"batch_size" validate:"min=1"`

	// RateLimit admits at most this many requests in any RateWindow.
	RateLimit  int           `koanf:"rate_limit" validate:"min=1"`
	RateWindow time.Duration `koanf:"rate_window"`

	// CacheFile is the JSON file persisting previously fetched movies.
	CacheFile string `koanf:"cache_file"`
}

// IndexConfig configures the similarity index build and artifact layout.
type IndexConfig struct {
	// Metric selects the index distance strategy. A name outside the
	// closed set is a configuration error, never a silent default.
	Metric string `koanf:"metric" validate:"oneof=angular euclidean manhattan dot dotproduct hamming"`

	// Trees is the tree count passed to the index build.
	Trees int `koanf:"trees" validate:"min=1"`

	// Jobs is the parallelism degree for the index build.
	Jobs int `koanf:"jobs" validate:"min=1"`

	// Dir is where the index, ID map, and metadata artifacts live.
	Dir string `koanf:"dir"`
}

// RankerConfig configures the two-phase recommendation ranker.
type RankerConfig struct {
	// QualityGate is the minimum vote average for a candidate to count as
	// high quality; filtering activates when the source movie meets it too.
	QualityGate float64 `koanf:"quality_gate" validate:"min=0,max=10"`

	// Overfetch multiplies the requested limit when the quality filter is
	// active, leaving room for rejected candidates.
	Overfetch int `koanf:"overfetch" validate:"min=1"`

	// DefaultLimit and MaxLimit bound the result-count request parameter.
	DefaultLimit int `koanf:"default_limit" validate:"min=1"`
	MaxLimit     int `koanf:"max_limit" validate:"min=1"`
}

// ServerConfig configures the HTTP serving process.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed origins. Empty disables cross-origin use.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs/RateLimitWindow throttle inbound API requests per client.
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		TMDB: TMDBConfig{
			APIKey:        "",
			BaseURL:       "https://api.themoviedb.org/3",
			Language:      "en-US",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    5 * time.Second,
		},
		Crawler: CrawlerConfig{
			StartYear:       2005,
			EndYear:         2025,
			MaxPagesPerYear: 500,
			BatchSize:       10,
			RateLimit:       40,
			RateWindow:      10 * time.Second,
			CacheFile:       "movie_cache.json",
		},
		Index: IndexConfig{
			Metric: "hamming",
			Trees:  20,
			Jobs:   4,
			Dir:    ".",
		},
		Ranker: RankerConfig{
			QualityGate:  6.0,
			Overfetch:    5,
			DefaultLimit: 12,
			MaxLimit:     20,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
