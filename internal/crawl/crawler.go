// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

/*
crawler.go - Paginated Catalog Crawler

Crawls the TMDB discover listing one release-year partition at a time.
Within a partition, pages are fetched in fixed-size concurrent batches;
every request is individually gated by the shared rolling-window limiter
(wired into the TMDB client) and retried at the transport layer.

Failure isolation:
  - One failed page does not discard its batch; successfully fetched pages
    in the same batch still contribute items.
  - One failed batch does not abort the partition; the crawl proceeds to
    the next batch and the partition returns what it accumulated.
  - One failed partition does not abort the run; the cache is flushed at
    the end regardless.

Every batch outcome is captured in an explicit BatchResult so callers and
tests can see exactly which page ranges failed without scraping logs.
*/

//nolint:staticcheck // File documentation, not package doc
package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kinograph/internal/cache"
	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/metrics"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

// PageFetcher is the slice of the TMDB client the crawler consumes.
type PageFetcher interface {
	DiscoverByYear(ctx context.Context, year, page int) (*tmdb.Page, error)
}

// BatchResult reports the outcome of one concurrently dispatched page
// batch. A batch with Err != nil may still have contributed items from
// the pages that succeeded.
type BatchResult struct {
	StartPage int
	EndPage   int // inclusive
	PagesOK   int
	Items     int
	Err       error
}

// PartitionResult is the outcome of crawling one release-year partition.
type PartitionResult struct {
	Year    int
	Movies  []tmdb.Movie // deduplicated, first-seen order
	Batches []BatchResult
}

// FailedBatches counts batches that had at least one failed page.
func (p *PartitionResult) FailedBatches() int {
	n := 0
	for _, b := range p.Batches {
		if b.Err != nil {
			n++
		}
	}
	return n
}

// Crawler turns the paginated discover endpoint into complete per-year
// item lists, merging everything it sees into the movie cache.
type Crawler struct {
	fetcher   PageFetcher
	cache     *cache.MovieCache
	startYear int
	endYear   int
	maxPages  int
	batchSize int
	logger    zerolog.Logger
}

// New creates a Crawler. The fetcher is expected to carry its own
// admission gating and retry; the crawler only orchestrates.
func New(fetcher PageFetcher, movieCache *cache.MovieCache, cfg *config.CrawlerConfig) *Crawler {
	return &Crawler{
		fetcher:   fetcher,
		cache:     movieCache,
		startYear: cfg.StartYear,
		endYear:   cfg.EndYear,
		maxPages:  cfg.MaxPagesPerYear,
		batchSize: cfg.BatchSize,
		logger:    logging.With().Str("component", "crawler").Logger(),
	}
}

// pageResult carries one page fetch outcome across the batch fan-in.
type pageResult struct {
	page int
	data *tmdb.Page
	err  error
}

// FetchYear fetches every page of one release-year partition and returns
// the deduplicated item list. It errors only when the context is
// canceled; page and batch failures are isolated and reported in the
// PartitionResult.
func (c *Crawler) FetchYear(ctx context.Context, year int) (*PartitionResult, error) {
	result := &PartitionResult{Year: year}

	// Order-preserving dedup: a movie appearing on several pages within
	// the partition is kept once, at its first position, with its
	// last-seen record. The cache keeps the first-sight record instead,
	// so prior runs' entries are never clobbered mid-crawl.
	order := make([]int64, 0, c.batchSize*20)
	seen := make(map[int64]tmdb.Movie)

	// The declared total page count is learned from the first successful
	// response and caps the crawl below the configured ceiling.
	totalPages := 0
	start := time.Now()

	for batchStart := 1; batchStart <= c.maxPages; batchStart += c.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batchEnd := batchStart + c.batchSize - 1
		if batchEnd > c.maxPages {
			batchEnd = c.maxPages
		}
		if totalPages > 0 && batchEnd > totalPages {
			batchEnd = totalPages
		}

		batch := c.fetchBatch(ctx, year, batchStart, batchEnd)

		for _, pr := range batch {
			if pr.err != nil || pr.data == nil {
				continue
			}
			if totalPages == 0 && pr.data.TotalPages > 0 {
				totalPages = pr.data.TotalPages
				if totalPages > c.maxPages {
					totalPages = c.maxPages
				}
			}
			for _, movie := range pr.data.Results {
				if movie.ID == 0 {
					continue
				}
				if !c.cache.Has(movie.ID) {
					c.cache.Put(movie.ID, movie)
				}
				if _, dup := seen[movie.ID]; !dup {
					order = append(order, movie.ID)
				}
				seen[movie.ID] = movie
			}
		}

		result.Batches = append(result.Batches, summarizeBatch(batchStart, batchEnd, batch))

		if totalPages > 0 && batchEnd >= totalPages {
			break
		}
	}

	result.Movies = make([]tmdb.Movie, len(order))
	for i, id := range order {
		result.Movies[i] = seen[id]
	}

	metrics.CrawlerPartitionDuration.Observe(time.Since(start).Seconds())
	c.logger.Info().
		Int("year", year).
		Int("movies", len(result.Movies)).
		Int("batches", len(result.Batches)).
		Int("failed_batches", result.FailedBatches()).
		Msg("partition crawl complete")

	return result, nil
}

// fetchBatch dispatches pages [startPage, endPage] concurrently and
// collects every page's individual outcome.
func (c *Crawler) fetchBatch(ctx context.Context, year, startPage, endPage int) []pageResult {
	n := endPage - startPage + 1
	results := make([]pageResult, n)
	done := make(chan int, n)

	for i := 0; i < n; i++ {
		go func(idx int) {
			page := startPage + idx
			data, err := c.fetcher.DiscoverByYear(ctx, year, page)
			results[idx] = pageResult{page: page, data: data, err: err}
			done <- idx
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	for _, pr := range results {
		if pr.err != nil {
			metrics.CrawlerPagesFetched.WithLabelValues("error").Inc()
			c.logger.Warn().Err(pr.err).Int("year", year).Int("page", pr.page).Msg("page fetch failed")
		} else {
			metrics.CrawlerPagesFetched.WithLabelValues("success").Inc()
		}
	}

	return results
}

// summarizeBatch folds page outcomes into one BatchResult.
func summarizeBatch(startPage, endPage int, pages []pageResult) BatchResult {
	br := BatchResult{StartPage: startPage, EndPage: endPage}
	for _, pr := range pages {
		if pr.err != nil {
			if br.Err == nil {
				br.Err = fmt.Errorf("page %d: %w", pr.page, pr.err)
			}
			continue
		}
		br.PagesOK++
		if pr.data != nil {
			br.Items += len(pr.data.Results)
		}
	}

	switch {
	case br.Err == nil:
		metrics.CrawlerBatches.WithLabelValues("success").Inc()
	case br.PagesOK > 0:
		metrics.CrawlerBatches.WithLabelValues("partial").Inc()
	default:
		metrics.CrawlerBatches.WithLabelValues("error").Inc()
	}
	return br
}

// Run crawls every configured partition sequentially, accumulating the
// global movie list. Partitions are not crawled concurrently: the shared
// rate budget already bounds throughput and sequential partitions bound
// peak fan-out. The cache is flushed at the end regardless of partial
// partition failures; a flush failure is logged, never fatal.
func (c *Crawler) Run(ctx context.Context) ([]tmdb.Movie, error) {
	var all []tmdb.Movie

	defer func() {
		if err := c.cache.Flush(); err != nil {
			c.logger.Error().Err(err).Msg("cache flush failed")
		}
	}()

	for year := c.startYear; year <= c.endYear; year++ {
		c.logger.Info().Int("year", year).Msg("processing partition")

		partition, err := c.FetchYear(ctx, year)
		if err != nil {
			// Only context cancellation lands here; everything below is
			// isolated per batch.
			return all, fmt.Errorf("partition %d: %w", year, err)
		}

		all = append(all, partition.Movies...)
		metrics.CrawlerItemsDiscovered.Add(float64(len(partition.Movies)))
		c.logger.Info().Int("year", year).Int("movies", len(partition.Movies)).Msg("partition accumulated")
	}

	c.logger.Info().Int("total_movies", len(all)).Msg("crawl run complete")
	return all, nil
}
