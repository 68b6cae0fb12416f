// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/recommend"
	"github.com/tomtom215/kinograph/internal/tmdb"
)

// maxSearchResults truncates title search responses to the first page's
// top matches.
const maxSearchResults = 10

// BreakerStater reports circuit breaker state for health output.
type BreakerStater interface {
	State() string
}

// Handler serves the Kinograph API. The TMDB client behind tmdb.API is
// expected to carry its own retry and breaker protection.
type Handler struct {
	tmdb    tmdb.API
	ranker  *recommend.Ranker
	breaker BreakerStater
}

// NewHandler creates the API handler. breaker may be nil when the TMDB
// client carries no circuit breaker.
func NewHandler(client tmdb.API, ranker *recommend.Ranker, breaker BreakerStater) *Handler {
	return &Handler{tmdb: client, ranker: ranker, breaker: breaker}
}

// Search handles GET /api/v1/search?query=. It proxies a title search to
// TMDB and returns the top matches of the first page.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	query := r.URL.Query().Get("query")
	if query == "" {
		rw.BadRequest("query parameter is required")
		return
	}

	page, err := h.tmdb.SearchMovies(r.Context(), query, 1)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("query", query).Msg("search failed")
		rw.ExternalServiceError("tmdb", err)
		return
	}

	results := page.Results
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	rw.Success(map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_results": page.TotalResults,
	})
}

// MovieDetail handles GET /api/v1/movies/{id}, a live detail lookup.
func (h *Handler) MovieDetail(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := movieIDParam(r)
	if err != nil {
		rw.BadRequest("movie id must be a positive integer")
		return
	}

	movie, err := h.tmdb.GetMovie(r.Context(), id)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int64("movie_id", id).Msg("detail lookup failed")
		rw.ExternalServiceError("tmdb", err)
		return
	}
	rw.Success(movie)
}

// Recommend handles GET /api/v1/recommendations/{id}?limit=.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := movieIDParam(r)
	if err != nil {
		rw.BadRequest("movie id must be a positive integer")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
	}

	result, err := h.ranker.Recommend(r.Context(), id, limit)
	switch {
	case err == nil:
		rw.Success(result)
	case errors.Is(err, recommend.ErrNotReady):
		rw.ServiceUnavailable("similarity index not loaded, run the indexer first")
	case errors.Is(err, recommend.ErrNotFound):
		rw.NotFound("movie not in the similarity index")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Int64("movie_id", id).Msg("recommendation failed")
		rw.InternalError("recommendation failed")
	}
}

// Health handles GET /api/v1/health with index and upstream status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := "ok"
	if !h.ranker.Ready() {
		status = "degraded"
	}
	body := map[string]interface{}{
		"status":       status,
		"index_loaded": h.ranker.Ready(),
		"index_items":  h.ranker.IndexSize(),
	}
	if h.ranker.Ready() {
		body["algorithm"] = h.ranker.Algorithm()
	}
	if h.breaker != nil {
		body["tmdb_circuit_breaker"] = h.breaker.State()
	}
	rw.Success(body)
}

// HealthLive handles GET /api/v1/health/live. The process is alive if it
// can answer at all.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready. Readiness requires the
// index to be loaded; until then the service cannot recommend.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.ranker.Ready() {
		rw.ServiceUnavailable("similarity index not loaded")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

func movieIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid movie id")
	}
	return id, nil
}
