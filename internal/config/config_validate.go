// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate runs the struct-tag constraints declared in config.go.
var validate = validator.New()

// Validate checks that the configuration is internally consistent. Field
// constraints (ranges, enums, URL shape) are enforced by validator tags;
// cross-field rules are checked by hand below.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid field: %w", err)
	}

	if err := c.validateCrawler(); err != nil {
		return err
	}
	if err := c.validateRanker(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateCrawler() error {
	if c.Crawler.StartYear > c.Crawler.EndYear {
		return fmt.Errorf("crawler start_year %d is after end_year %d",
			c.Crawler.StartYear, c.Crawler.EndYear)
	}
	if c.Crawler.RateWindow <= 0 {
		return fmt.Errorf("crawler rate_window must be positive, got %s", c.Crawler.RateWindow)
	}
	if c.Crawler.BatchSize > c.Crawler.MaxPagesPerYear {
		return fmt.Errorf("crawler batch_size %d exceeds max_pages_per_year %d",
			c.Crawler.BatchSize, c.Crawler.MaxPagesPerYear)
	}
	return nil
}

func (c *Config) validateRanker() error {
	if c.Ranker.DefaultLimit > c.Ranker.MaxLimit {
		return fmt.Errorf("ranker default_limit %d exceeds max_limit %d",
			c.Ranker.DefaultLimit, c.Ranker.MaxLimit)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server rate_limit_window must be positive, got %s", c.Server.RateLimitWindow)
	}
	return nil
}

// RequireAPIKey returns an error when no TMDB credential is configured.
// The serving process calls this eagerly; the indexer refuses to start
// without it.
func (c *Config) RequireAPIKey() error {
	if c.TMDB.APIKey == "" {
		return fmt.Errorf("TMDB API key is not set (KINOGRAPH_TMDB_API_KEY or TMDB_API_KEY)")
	}
	return nil
}
