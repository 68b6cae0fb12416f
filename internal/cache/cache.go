// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Package cache persists fetched movie records between crawl runs.
//
// The cache is a best-effort optimization, never a correctness dependency:
// a missing or corrupt cache file starts the crawl with an empty cache, and
// a failed flush is logged but does not fail the run. Entries are never
// evicted; a refetched movie overwrites its in-memory entry and reaches
// disk on the next successful Flush.
package cache

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/metrics"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

// MovieCache is a disk-backed map of movie ID to last-fetched record.
// Safe for concurrent use, though the crawl path is its only writer.
type MovieCache struct {
	mu     sync.RWMutex
	path   string
	movies map[int64]tmdb.Movie
}

// New creates a cache persisted at path. Call Load before first use.
func New(path string) *MovieCache {
	return &MovieCache{
		path:   path,
		movies: make(map[int64]tmdb.Movie),
	}
}

// Load reads the persisted mapping. A missing or unreadable file is
// non-fatal: the cache starts empty and the condition is logged.
func (c *MovieCache) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", c.path).Msg("cache file unreadable, starting empty")
		}
		return
	}

	// The on-disk shape matches the original artifact: object keyed by
	// stringified movie ID.
	raw := make(map[string]tmdb.Movie)
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Warn().Err(err).Str("path", c.path).Msg("cache file corrupt, starting empty")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, movie := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			logging.Warn().Str("key", key).Msg("skipping cache entry with non-numeric ID")
			continue
		}
		c.movies[id] = movie
	}
	metrics.CacheEntries.Set(float64(len(c.movies)))
	logging.Info().Int("movies", len(c.movies)).Str("path", c.path).Msg("loaded movie cache")
}

// Get returns the cached record for id.
func (c *MovieCache) Get(id int64) (tmdb.Movie, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	movie, ok := c.movies[id]
	if ok {
		metrics.CacheHits.Inc()
	} else {
		metrics.CacheMisses.Inc()
	}
	return movie, ok
}

// Has reports whether id is cached without touching hit/miss counters.
func (c *MovieCache) Has(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.movies[id]
	return ok
}

// Put stores or overwrites the record for id in memory. The disk copy is
// untouched until Flush.
func (c *MovieCache) Put(id int64, movie tmdb.Movie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.movies[id] = movie
	metrics.CacheEntries.Set(float64(len(c.movies)))
}

// Len returns the number of cached records.
func (c *MovieCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.movies)
}

// Flush serializes the entire mapping to disk, replacing the previous
// file. The write goes through a temp file and rename so a crash mid-write
// cannot corrupt the previous snapshot.
func (c *MovieCache) Flush() error {
	c.mu.RLock()
	raw := make(map[string]tmdb.Movie, len(c.movies))
	for id, movie := range c.movies {
		raw[strconv.FormatInt(id, 10)] = movie
	}
	c.mu.RUnlock()

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // cache is not sensitive
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}

	logging.Info().Int("movies", len(raw)).Str("path", c.path).Msg("saved movie cache")
	return nil
}
