// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

/*
ranker.go - Two-Phase Recommendation Ranker

Serves recommend-by-ID requests against the loaded index artifacts.

Pipeline per request:
 1. Resolve the TMDB ID to its internal position (absence is not-found).
 2. Fetch the source movie's current rating live from TMDB. The rating
    filter activates when the source meets the quality gate.
 3. Over-fetch neighbors: 5x the limit when the filter is active, else
    limit+1 to absorb excluding the source itself.
 4. Map positions back to TMDB IDs, skipping the source and any
    unmapped position.
 5. Resolve candidate details live; a per-candidate lookup failure
    skips that candidate, never the request.
 6. When the filter is active, candidates meeting the gate keep their
    neighbor-proximity order. If they fall short of the limit, the
    remainder is sorted by (rating desc, popularity desc) and appended.

A request either completes or fails terminally; there is no partial
response.
*/

//nolint:staticcheck // File documentation, not package doc
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/index"
	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/metrics"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

var (
	// ErrNotReady means the index artifacts are not loaded. Every
	// recommendation request fails with it until they are.
	ErrNotReady = errors.New("similarity index not loaded")

	// ErrNotFound means the source movie is not in the index.
	ErrNotFound = errors.New("movie not in index")
)

// DetailFetcher is the upstream slice the ranker uses for live lookups.
// Production wires the circuit-breaker TMDB client.
type DetailFetcher interface {
	GetMovie(ctx context.Context, id int64) (*tmdb.Movie, error)
}

// Result is the observable recommendation contract. The filter state,
// source rating, and high-rated count are contract fields, not
// diagnostics.
type Result struct {
	SourceMovieID       int64        `json:"source_movie_id"`
	SourceRating        float64      `json:"source_rating"`
	RatingFilterApplied bool         `json:"rating_filter_applied"`
	HighRatedCount      int          `json:"high_rated_count"`
	Algorithm           string       `json:"algorithm"`
	Results             []tmdb.Movie `json:"results"`
}

// Ranker answers recommendation requests against immutable loaded
// artifacts. The artifacts are read-only for the process lifetime, so
// Ranker is safe for concurrent use.
type Ranker struct {
	artifacts *index.Artifacts
	fetcher   DetailFetcher
	cfg       *config.RankerConfig
	algorithm string
	logger    zerolog.Logger
}

// New creates a Ranker. artifacts may be nil when the index has not been
// built yet; every request then fails with ErrNotReady.
func New(artifacts *index.Artifacts, fetcher DetailFetcher, cfg *config.RankerConfig, algorithm string) *Ranker {
	return &Ranker{
		artifacts: artifacts,
		fetcher:   fetcher,
		cfg:       cfg,
		algorithm: algorithm,
		logger:    logging.With().Str("component", "ranker").Logger(),
	}
}

// Ready reports whether the ranker can serve requests.
func (r *Ranker) Ready() bool {
	return r.artifacts != nil
}

// Algorithm names the similarity algorithm for responses and health output.
func (r *Ranker) Algorithm() string {
	return r.algorithm
}

// IndexSize returns the number of indexed items, 0 when not ready.
func (r *Ranker) IndexSize() int {
	if r.artifacts == nil {
		return 0
	}
	return r.artifacts.Index.NItems()
}

// ClampLimit bounds a requested result count to [1, MaxLimit], falling
// back to the default for non-positive requests.
func (r *Ranker) ClampLimit(limit int) int {
	if limit <= 0 {
		return r.cfg.DefaultLimit
	}
	if limit > r.cfg.MaxLimit {
		return r.cfg.MaxLimit
	}
	return limit
}

// Recommend produces up to limit recommendations for movieID.
func (r *Ranker) Recommend(ctx context.Context, movieID int64, limit int) (*Result, error) {
	start := time.Now()
	res, err := r.recommend(ctx, movieID, limit)
	metrics.RecommendDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.RecommendRequestsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrNotReady):
		metrics.RecommendRequestsTotal.WithLabelValues("not_ready").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.RecommendRequestsTotal.WithLabelValues("not_found").Inc()
	default:
		metrics.RecommendRequestsTotal.WithLabelValues("error").Inc()
	}
	return res, err
}

func (r *Ranker) recommend(ctx context.Context, movieID int64, limit int) (*Result, error) {
	if r.artifacts == nil {
		return nil, ErrNotReady
	}
	limit = r.ClampLimit(limit)

	position, ok := r.artifacts.IDMap.PositionFor(movieID)
	if !ok {
		return nil, fmt.Errorf("movie %d: %w", movieID, ErrNotFound)
	}

	// The live rating decides the filter, not the build-time snapshot:
	// ratings drift between index rebuilds.
	source, err := r.fetcher.GetMovie(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("fetch source movie %d: %w", movieID, err)
	}
	filterActive := source.VoteAverage >= r.cfg.QualityGate

	fetchCount := limit + 1
	if filterActive {
		fetchCount = limit * r.cfg.Overfetch
	}

	positions, _, err := r.artifacts.Index.GetNNsByItem(position, fetchCount)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	candidates := r.resolveCandidates(ctx, positions, position, movieID)

	var final []tmdb.Movie
	if filterActive {
		final = applyQualityGate(candidates, limit, r.cfg.QualityGate)
	} else if len(candidates) > limit {
		final = candidates[:limit]
	} else {
		final = candidates
	}

	highRated := 0
	for _, m := range final {
		if m.VoteAverage >= r.cfg.QualityGate {
			highRated++
		}
	}
	metrics.RecommendFilterApplied.WithLabelValues(fmt.Sprintf("%t", filterActive)).Inc()

	r.logger.Debug().
		Int64("movie_id", movieID).
		Int("limit", limit).
		Bool("filter_active", filterActive).
		Int("candidates", len(candidates)).
		Int("returned", len(final)).
		Msg("recommendation served")

	return &Result{
		SourceMovieID:       movieID,
		SourceRating:        source.VoteAverage,
		RatingFilterApplied: filterActive,
		HighRatedCount:      highRated,
		Algorithm:           r.algorithm,
		Results:             final,
	}, nil
}

// resolveCandidates maps neighbor positions to full movie records in
// proximity order. The source, unmapped positions, and candidates whose
// detail lookup fails are skipped.
func (r *Ranker) resolveCandidates(ctx context.Context, positions []int, sourcePos int, sourceID int64) []tmdb.Movie {
	out := make([]tmdb.Movie, 0, len(positions))
	for _, pos := range positions {
		if pos == sourcePos {
			continue
		}
		id, ok := r.artifacts.IDMap.TMDBIDFor(pos)
		if !ok {
			r.logger.Warn().Int("position", pos).Msg("neighbor position missing from id map")
			continue
		}
		if id == sourceID {
			continue
		}
		movie, err := r.fetcher.GetMovie(ctx, id)
		if err != nil {
			r.logger.Debug().Err(err).Int64("movie_id", id).Msg("candidate lookup failed, skipping")
			continue
		}
		out = append(out, *movie)
	}
	return out
}

// applyQualityGate implements the two-phase policy: candidates meeting
// the gate keep neighbor order; when they fall short of limit, the
// remainder is sorted by (rating desc, popularity desc) and appended.
func applyQualityGate(candidates []tmdb.Movie, limit int, gate float64) []tmdb.Movie {
	high := make([]tmdb.Movie, 0, len(candidates))
	rest := make([]tmdb.Movie, 0, len(candidates))
	for _, m := range candidates {
		if m.VoteAverage >= gate {
			high = append(high, m)
		} else {
			rest = append(rest, m)
		}
	}

	if len(high) >= limit {
		return high[:limit]
	}

	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].VoteAverage != rest[j].VoteAverage {
			return rest[i].VoteAverage > rest[j].VoteAverage
		}
		return rest[i].Popularity > rest[j].Popularity
	})

	need := limit - len(high)
	if need > len(rest) {
		need = len(rest)
	}
	return append(high, rest[:need]...)
}
