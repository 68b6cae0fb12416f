// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/index"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

// stubIndex returns a canned neighbor list and records the requested
// count so tests can verify the over-fetch policy.
type stubIndex struct {
	neighbors []int
	lastCount int
	err       error
}

func (s *stubIndex) AddItem(int, []float32) error { return nil }
func (s *stubIndex) Build(int, int) error         { return nil }
func (s *stubIndex) Save(string) error            { return nil }
func (s *stubIndex) Load(string) error            { return nil }
func (s *stubIndex) NItems() int                  { return len(s.neighbors) }
func (s *stubIndex) NTrees() int                  { return 20 }

func (s *stubIndex) GetNNsByItem(_, count int) ([]int, []float32, error) {
	s.lastCount = count
	if s.err != nil {
		return nil, nil, s.err
	}
	n := count
	if n > len(s.neighbors) {
		n = len(s.neighbors)
	}
	return s.neighbors[:n], make([]float32, n), nil
}

// stubFetcher serves movie details from a fixed table.
type stubFetcher struct {
	movies  map[int64]tmdb.Movie
	failing map[int64]bool
}

func (f *stubFetcher) GetMovie(_ context.Context, id int64) (*tmdb.Movie, error) {
	if f.failing[id] {
		return nil, errors.New("upstream failure")
	}
	m, ok := f.movies[id]
	if !ok {
		return nil, fmt.Errorf("movie %d unknown", id)
	}
	return &m, nil
}

func rankerConfig() *config.RankerConfig {
	return &config.RankerConfig{
		QualityGate:  6.0,
		Overfetch:    5,
		DefaultLimit: 12,
		MaxLimit:     20,
	}
}

// newFixture builds a ranker over n indexed movies. Position i holds
// TMDB ID 1000+i; votes[i] and pops[i] fill the detail table. The source
// under test is position 0 (ID 1000).
func newFixture(n int, votes []float64, pops []float64) (*Ranker, *stubIndex, *stubFetcher) {
	movies := make([]tmdb.Movie, n)
	details := make(map[int64]tmdb.Movie, n)
	neighbors := make([]int, n)
	for i := 0; i < n; i++ {
		id := int64(1000 + i)
		m := tmdb.Movie{ID: id, Title: fmt.Sprintf("Movie %d", id)}
		if i < len(votes) {
			m.VoteAverage = votes[i]
		}
		if i < len(pops) {
			m.Popularity = pops[i]
		}
		movies[i] = m
		details[id] = m
		neighbors[i] = i
	}

	idx := &stubIndex{neighbors: neighbors}
	fetcher := &stubFetcher{movies: details, failing: map[int64]bool{}}
	artifacts := &index.Artifacts{Index: idx, IDMap: index.NewIDMap(movies), Metadata: movies}
	return New(artifacts, fetcher, rankerConfig(), "knn-hamming"), idx, fetcher
}

func resultIDs(res *Result) []int64 {
	ids := make([]int64, len(res.Results))
	for i, m := range res.Results {
		ids[i] = m.ID
	}
	return ids
}

func TestRecommendFilterInactive(t *testing.T) {
	// Source rating 4.0 is below the gate: no filtering, limit+1
	// neighbors requested, self excluded, neighbor order preserved.
	votes := []float64{4.0, 5.5, 3.2, 9.0, 2.1, 6.6, 7.7}
	r, idx, _ := newFixture(7, votes, nil)

	res, err := r.Recommend(context.Background(), 1000, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if idx.lastCount != 6 {
		t.Errorf("neighbors requested = %d, want limit+1 = 6", idx.lastCount)
	}
	if res.RatingFilterApplied {
		t.Error("filter applied for source below gate")
	}
	if res.SourceRating != 4.0 {
		t.Errorf("source rating = %v, want 4.0", res.SourceRating)
	}

	want := []int64{1001, 1002, 1003, 1004, 1005}
	got := resultIDs(res)
	if len(got) != 5 {
		t.Fatalf("results = %v, want 5 items", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("results = %v, want %v (neighbor order, no sort)", got, want)
		}
	}
}

func TestRecommendFilterActiveSufficient(t *testing.T) {
	// Source 7.5 activates the filter. Positions 1..9 are candidates;
	// eight meet the gate, one (position 3) does not. The first five
	// gate-passing candidates return in neighbor order.
	votes := []float64{7.5, 6.1, 8.0, 4.0, 7.2, 6.6, 9.1, 6.0, 7.8, 8.4}
	r, idx, _ := newFixture(10, votes, nil)

	res, err := r.Recommend(context.Background(), 1000, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if idx.lastCount != 25 {
		t.Errorf("neighbors requested = %d, want limit*overfetch = 25", idx.lastCount)
	}
	if !res.RatingFilterApplied {
		t.Error("filter not applied for source above gate")
	}

	want := []int64{1001, 1002, 1004, 1005, 1006}
	got := resultIDs(res)
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("results = %v, want %v", got, want)
		}
	}
	if res.HighRatedCount != 5 {
		t.Errorf("high_rated_count = %d, want 5", res.HighRatedCount)
	}
}

func TestRecommendFilterActiveFallback(t *testing.T) {
	// Source 6.2 activates the filter but only positions 2 and 5 meet
	// the gate. The remaining three slots come from the rest sorted by
	// (rating desc, popularity desc).
	votes := []float64{6.2, 5.0, 7.1, 5.5, 5.5, 6.8, 4.0}
	pops := []float64{0, 10, 0, 5, 50, 0, 99}
	r, _, _ := newFixture(7, votes, pops)

	res, err := r.Recommend(context.Background(), 1000, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	// High partition in neighbor order: 1002, 1005. Remainder sorted:
	// 1004 (5.5/50), 1003 (5.5/5), 1001 (5.0), 1006 (4.0).
	want := []int64{1002, 1005, 1004, 1003, 1001}
	got := resultIDs(res)
	if len(got) != 5 {
		t.Fatalf("results = %v, want 5 items", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("results = %v, want %v", got, want)
		}
	}
	if res.HighRatedCount != 2 {
		t.Errorf("high_rated_count = %d, want 2", res.HighRatedCount)
	}
}

func TestRecommendFewerCandidatesThanLimit(t *testing.T) {
	votes := []float64{4.0, 5.0, 5.1}
	r, _, _ := newFixture(3, votes, nil)

	res, err := r.Recommend(context.Background(), 1000, 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(res.Results) != 2 {
		t.Errorf("results = %d, want 2 (all available)", len(res.Results))
	}
}

func TestRecommendNotReady(t *testing.T) {
	r := New(nil, &stubFetcher{}, rankerConfig(), "knn-hamming")
	if r.Ready() {
		t.Error("Ready() = true with nil artifacts")
	}
	if _, err := r.Recommend(context.Background(), 1000, 5); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestRecommendUnknownMovie(t *testing.T) {
	r, _, _ := newFixture(3, []float64{4, 4, 4}, nil)
	if _, err := r.Recommend(context.Background(), 424242, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecommendSourceFetchFailureIsTerminal(t *testing.T) {
	r, _, fetcher := newFixture(3, []float64{4, 4, 4}, nil)
	fetcher.failing[1000] = true
	if _, err := r.Recommend(context.Background(), 1000, 5); err == nil {
		t.Error("expected terminal error when source lookup fails")
	}
}

func TestRecommendCandidateFailureSkipped(t *testing.T) {
	votes := []float64{4.0, 5.0, 5.1, 5.2, 5.3, 5.4}
	r, _, fetcher := newFixture(6, votes, nil)
	fetcher.failing[1002] = true

	res, err := r.Recommend(context.Background(), 1000, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, id := range resultIDs(res) {
		if id == 1002 {
			t.Error("failed candidate present in results")
		}
	}
	// Over-fetch was limit+1; losing one candidate shrinks the result.
	if len(res.Results) != 3 {
		t.Errorf("results = %d, want 3", len(res.Results))
	}
}

func TestRecommendUnmappedPositionSkipped(t *testing.T) {
	votes := []float64{4.0, 5.0, 5.1}
	r, idx, _ := newFixture(3, votes, nil)
	idx.neighbors = []int{0, 1, 99, 2} // 99 has no ID mapping

	res, err := r.Recommend(context.Background(), 1000, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	want := []int64{1001, 1002}
	got := resultIDs(res)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestRecommendIndexQueryFailure(t *testing.T) {
	r, idx, _ := newFixture(3, []float64{4, 4, 4}, nil)
	idx.err = errors.New("index corrupted")
	if _, err := r.Recommend(context.Background(), 1000, 5); err == nil {
		t.Error("expected wrapped error from index failure")
	}
}

func TestClampLimit(t *testing.T) {
	r, _, _ := newFixture(3, []float64{4, 4, 4}, nil)
	tests := []struct {
		in, want int
	}{
		{0, 12},
		{-3, 12},
		{1, 1},
		{15, 15},
		{20, 20},
		{21, 20},
		{1000, 20},
	}
	for _, tt := range tests {
		if got := r.ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
