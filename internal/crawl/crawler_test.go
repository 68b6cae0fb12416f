// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/tomtom215/kinograph/internal/cache"
	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

// fakeFetcher records every requested page and serves canned responses.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string // "year:page"
	handler func(year, page int) (*tmdb.Page, error)
}

func (f *fakeFetcher) DiscoverByYear(_ context.Context, year, page int) (*tmdb.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%d:%d", year, page))
	f.mu.Unlock()
	return f.handler(year, page)
}

func (f *fakeFetcher) calledPages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	sort.Strings(out)
	return out
}

func testCrawlerConfig(startYear, endYear, maxPages, batchSize int) *config.CrawlerConfig {
	return &config.CrawlerConfig{
		StartYear:       startYear,
		EndYear:         endYear,
		MaxPagesPerYear: maxPages,
		BatchSize:       batchSize,
	}
}

func newTestCache(t *testing.T) *cache.MovieCache {
	t.Helper()
	return cache.New(filepath.Join(t.TempDir(), "movie_cache.json"))
}

func moviePage(totalPages int, ids ...int64) *tmdb.Page {
	p := &tmdb.Page{TotalPages: totalPages}
	for _, id := range ids {
		p.Results = append(p.Results, tmdb.Movie{ID: id, Title: fmt.Sprintf("Movie %d", id)})
	}
	return p
}

func TestFetchYearStopsAtDeclaredTotalPages(t *testing.T) {
	ff := &fakeFetcher{handler: func(_, page int) (*tmdb.Page, error) {
		if page > 3 {
			t.Errorf("page %d requested beyond declared total", page)
			return nil, errors.New("past the end")
		}
		return moviePage(3, int64(page*10), int64(page*10+1)), nil
	}}

	c := New(ff, newTestCache(t), testCrawlerConfig(2020, 2020, 50, 2))
	res, err := c.FetchYear(context.Background(), 2020)
	if err != nil {
		t.Fatalf("FetchYear: %v", err)
	}

	// Batch 1 covers pages 1-2 and learns total_pages=3; batch 2 is
	// capped to page 3 alone.
	want := []string{"2020:1", "2020:2", "2020:3"}
	got := ff.calledPages()
	if len(got) != len(want) {
		t.Fatalf("pages fetched = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pages fetched = %v, want %v", got, want)
		}
	}
	if len(res.Movies) != 6 {
		t.Errorf("movies = %d, want 6", len(res.Movies))
	}
	if len(res.Batches) != 2 {
		t.Errorf("batches = %d, want 2", len(res.Batches))
	}
}

func TestFetchYearDeduplicatesAcrossPages(t *testing.T) {
	// Movie 100 appears on both pages; it keeps its first position but
	// the last-seen record, while the cache keeps the first-sight record.
	ff := &fakeFetcher{handler: func(_, page int) (*tmdb.Page, error) {
		switch page {
		case 1:
			return &tmdb.Page{TotalPages: 2, Results: []tmdb.Movie{
				{ID: 100, Title: "First Sighting"},
				{ID: 101, Title: "Movie 101"},
			}}, nil
		default:
			return &tmdb.Page{TotalPages: 2, Results: []tmdb.Movie{
				{ID: 100, Title: "Second Sighting"},
				{ID: 102, Title: "Movie 102"},
			}}, nil
		}
	}}

	mc := newTestCache(t)
	c := New(ff, mc, testCrawlerConfig(2020, 2020, 10, 1))
	res, err := c.FetchYear(context.Background(), 2020)
	if err != nil {
		t.Fatalf("FetchYear: %v", err)
	}

	if len(res.Movies) != 3 {
		t.Fatalf("movies = %d, want 3 after dedup", len(res.Movies))
	}
	if res.Movies[0].ID != 100 || res.Movies[0].Title != "Second Sighting" {
		t.Errorf("first movie = %+v, want ID 100 with last-seen title", res.Movies[0])
	}
	cached, ok := mc.Get(100)
	if !ok || cached.Title != "First Sighting" {
		t.Errorf("cached 100 = %+v, %v, want first-seen record", cached, ok)
	}
	if mc.Len() != 3 {
		t.Errorf("cache Len() = %d, want 3", mc.Len())
	}
}

func TestFetchYearBatchFailureIsolated(t *testing.T) {
	// Page 2 always fails; its batch still contributes page 1's items and
	// the crawl proceeds to the next batch.
	ff := &fakeFetcher{handler: func(_, page int) (*tmdb.Page, error) {
		if page == 2 {
			return nil, errors.New("upstream hiccup")
		}
		return moviePage(4, int64(page)), nil
	}}

	c := New(ff, newTestCache(t), testCrawlerConfig(2021, 2021, 10, 2))
	res, err := c.FetchYear(context.Background(), 2021)
	if err != nil {
		t.Fatalf("FetchYear: %v", err)
	}

	if len(res.Batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(res.Batches))
	}
	first := res.Batches[0]
	if first.Err == nil {
		t.Error("batch 1 should carry page 2's error")
	}
	if first.PagesOK != 1 || first.Items != 1 {
		t.Errorf("batch 1 = %+v, want 1 page OK with 1 item", first)
	}
	if res.FailedBatches() != 1 {
		t.Errorf("FailedBatches() = %d, want 1", res.FailedBatches())
	}

	// Pages 1, 3, 4 succeeded.
	if len(res.Movies) != 3 {
		t.Errorf("movies = %d, want 3", len(res.Movies))
	}
}

func TestFetchYearAllPagesFailReturnsEmpty(t *testing.T) {
	ff := &fakeFetcher{handler: func(_, _ int) (*tmdb.Page, error) {
		return nil, errors.New("down")
	}}

	c := New(ff, newTestCache(t), testCrawlerConfig(2022, 2022, 4, 2))
	res, err := c.FetchYear(context.Background(), 2022)
	if err != nil {
		t.Fatalf("FetchYear: %v", err)
	}
	if len(res.Movies) != 0 {
		t.Errorf("movies = %d, want 0", len(res.Movies))
	}
	// Total pages never learned, so the crawl walks the full ceiling.
	if len(res.Batches) != 2 {
		t.Errorf("batches = %d, want 2", len(res.Batches))
	}
	for i, b := range res.Batches {
		if b.Err == nil || b.PagesOK != 0 {
			t.Errorf("batch %d = %+v, want full failure", i, b)
		}
	}
}

func TestRunAccumulatesPartitionsAndFlushes(t *testing.T) {
	ff := &fakeFetcher{handler: func(year, _ int) (*tmdb.Page, error) {
		// One page per year, distinct IDs per partition.
		return moviePage(1, int64(year)), nil
	}}

	cachePath := filepath.Join(t.TempDir(), "movie_cache.json")
	mc := cache.New(cachePath)
	c := New(ff, mc, testCrawlerConfig(2020, 2022, 5, 3))

	movies, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(movies) != 3 {
		t.Fatalf("movies = %d, want 3 (one per year)", len(movies))
	}
	if movies[0].ID != 2020 || movies[2].ID != 2022 {
		t.Errorf("partition order lost: %v %v", movies[0].ID, movies[2].ID)
	}

	// The cache snapshot was written as part of the run.
	reloaded := cache.New(cachePath)
	reloaded.Load()
	if reloaded.Len() != 3 {
		t.Errorf("flushed cache Len() = %d, want 3", reloaded.Len())
	}
}

func TestRunCanceledContext(t *testing.T) {
	ff := &fakeFetcher{handler: func(year, _ int) (*tmdb.Page, error) {
		return moviePage(1, int64(year)), nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(ff, newTestCache(t), testCrawlerConfig(2020, 2021, 5, 3))
	if _, err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run with canceled ctx = %v, want context.Canceled", err)
	}
}
