// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/kinograph/internal/config"
)

func testConfig(baseURL string) *config.TMDBConfig {
	return &config.TMDBConfig{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Language:      "en-US",
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    10 * time.Millisecond,
	}
}

func TestDiscoverByYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/discover/movie" {
			t.Errorf("path = %s, want /discover/movie", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "test-key" {
			t.Errorf("api_key = %q, want test-key", q.Get("api_key"))
		}
		if q.Get("primary_release_year") != "2020" {
			t.Errorf("primary_release_year = %q, want 2020", q.Get("primary_release_year"))
		}
		if q.Get("sort_by") != "popularity.desc" {
			t.Errorf("sort_by = %q, want popularity.desc", q.Get("sort_by"))
		}
		if q.Get("page") != "3" {
			t.Errorf("page = %q, want 3", q.Get("page"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":3,"total_pages":7,"results":[{"id":42,"title":"Test Movie","genre_ids":[28,35],"vote_average":7.1,"original_language":"en"}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	page, err := c.DiscoverByYear(context.Background(), 2020, 3)
	if err != nil {
		t.Fatalf("DiscoverByYear: %v", err)
	}
	if page.TotalPages != 7 {
		t.Errorf("TotalPages = %d, want 7", page.TotalPages)
	}
	if len(page.Results) != 1 || page.Results[0].ID != 42 {
		t.Fatalf("unexpected results: %+v", page.Results)
	}
	if got := page.Results[0].CategoryIDs(); len(got) != 2 || got[0] != 28 {
		t.Errorf("CategoryIDs = %v, want [28 35]", got)
	}
}

func TestGetMovieDetailGenreShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/42" {
			t.Errorf("path = %s, want /movie/42", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"title":"Test Movie","genres":[{"id":18,"name":"Drama"}],"vote_average":8.2,"popularity":55.3}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	m, err := c.GetMovie(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetMovie: %v", err)
	}
	if got := m.CategoryIDs(); len(got) != 1 || got[0] != 18 {
		t.Errorf("CategoryIDs = %v, want [18]", got)
	}
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"title":"Recovered"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	m, err := c.GetMovie(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetMovie after retries: %v", err)
	}
	if m.Title != "Recovered" {
		t.Errorf("Title = %q, want Recovered", m.Title)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestRetryExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryAttempts = 1
	c := NewClient(cfg)
	if _, err := c.GetMovie(context.Background(), 7); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestNonRetryableStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.GetMovie(context.Background(), 999); err == nil {
		t.Fatal("expected error for 404")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (no retry on 404)", got)
	}
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	var calls atomic.Int32
	start := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.GetMovie(context.Background(), 7); err != nil {
		t.Fatalf("GetMovie: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("completed in %s, want >= 1s (Retry-After)", elapsed)
	}
}

type countingAdmitter struct {
	n atomic.Int32
}

func (a *countingAdmitter) Acquire(context.Context) error {
	a.n.Add(1)
	return nil
}

func TestAdmitterGatesEveryRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[]}`))
	}))
	defer srv.Close()

	adm := &countingAdmitter{}
	c := NewClient(testConfig(srv.URL), WithAdmitter(adm))
	for i := 0; i < 4; i++ {
		if _, err := c.SearchMovies(context.Background(), "dune", 1); err != nil {
			t.Fatalf("SearchMovies: %v", err)
		}
	}
	if got := adm.n.Load(); got != 4 {
		t.Errorf("admitter calls = %d, want 4", got)
	}
}

func TestCircuitBreakerPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":42,"title":"Through Breaker"}`))
	}))
	defer srv.Close()

	cbc := NewCircuitBreakerClient(NewClient(testConfig(srv.URL)))
	m, err := cbc.GetMovie(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetMovie: %v", err)
	}
	if m.Title != "Through Breaker" {
		t.Errorf("Title = %q", m.Title)
	}
	if cbc.State() != "closed" {
		t.Errorf("breaker state = %q, want closed", cbc.State())
	}
}
