// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

/*
client.go - Core TMDB API Client

This file provides the core Client struct and HTTP communication layer for
the TMDB REST API.

Client Features:
  - HTTP client with configurable per-request timeout
  - API key authentication via query parameter
  - Optional outbound admission gating (rolling-window limiter during
    crawls, token-bucket pacing on the serving path)
  - Bounded retry with exponential backoff for transient failures
    (transport errors, HTTP 429/502/503/504); Retry-After is honored
  - JSON response parsing via goccy/go-json

Endpoints:
  - DiscoverByYear: paginated listing filtered by primary release year
  - GetMovie: one movie's full record
  - SearchMovies: paginated text search

Related Files:
  - circuit_breaker.go: gobreaker wrapper for the serving path
  - models.go: response structures
*/

//nolint:staticcheck // File documentation, not package doc
package tmdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/metrics"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// Admitter gates outbound requests. The crawler supplies the
// rolling-window limiter; the serving path supplies a token-bucket pacer.
// A nil Admitter disables gating.
type Admitter interface {
	Acquire(ctx context.Context) error
}

// pacer adapts golang.org/x/time/rate to the Admitter interface for
// serving-path request smoothing.
type pacer struct {
	l *rate.Limiter
}

func (p pacer) Acquire(ctx context.Context) error {
	return p.l.Wait(ctx)
}

// NewPacer returns an Admitter that smooths requests to r per second with
// the given burst.
func NewPacer(r float64, burst int) Admitter {
	return pacer{l: rate.NewLimiter(rate.Limit(r), burst)}
}

// API is the TMDB surface consumed by the serving path. Implemented by
// Client and by CircuitBreakerClient.
type API interface {
	GetMovie(ctx context.Context, id int64) (*Movie, error)
	SearchMovies(ctx context.Context, query string, page int) (*Page, error)
}

// Client is the TMDB API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client

	retryAttempts int
	retryDelay    time.Duration

	admitter Admitter
}

// Option configures a Client.
type Option func(*Client)

// WithAdmitter gates every outbound request through a.
func WithAdmitter(a Admitter) Option {
	return func(c *Client) { c.admitter = a }
}

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a TMDB client from configuration.
func NewClient(cfg *config.TMDBConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		language:      cfg.Language,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DiscoverByYear fetches one page of the discover listing for a primary
// release year, sorted by descending popularity.
func (c *Client) DiscoverByYear(ctx context.Context, year, page int) (*Page, error) {
	query := url.Values{
		"sort_by":              {"popularity.desc"},
		"include_adult":        {"false"},
		"include_video":        {"false"},
		"primary_release_year": {strconv.Itoa(year)},
		"page":                 {strconv.Itoa(page)},
	}

	var result Page
	if err := c.get(ctx, "/discover/movie", query, &result); err != nil {
		return nil, fmt.Errorf("discover year %d page %d: %w", year, page, err)
	}
	return &result, nil
}

// GetMovie fetches one movie's full record.
func (c *Client) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	var result Movie
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &result); err != nil {
		return nil, fmt.Errorf("movie %d: %w", id, err)
	}
	return &result, nil
}

// SearchMovies fetches one page of title search results.
func (c *Client) SearchMovies(ctx context.Context, query string, page int) (*Page, error) {
	q := url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
	}

	var result Page
	if err := c.get(ctx, "/search/movie", q, &result); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return &result, nil
}

// get executes an authenticated GET with admission gating and bounded
// retry, decoding the JSON response into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	if c.language != "" {
		query.Set("language", c.language)
	}

	reqURL := c.baseURL + path + "?" + query.Encode()
	endpoint := endpointLabel(path)

	if c.admitter != nil {
		if err := c.admitter.Acquire(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.doWithRetry(ctx, reqURL)
	if err != nil {
		metrics.RecordTMDBRequest(endpoint, "error", time.Since(start))
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // response body close in defer

	if resp.StatusCode != http.StatusOK {
		metrics.RecordTMDBRequest(endpoint, "error", time.Since(start))
		body := readBodyForError(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		metrics.RecordTMDBRequest(endpoint, "error", time.Since(start))
		return fmt.Errorf("decode response: %w", err)
	}

	metrics.RecordTMDBRequest(endpoint, "success", time.Since(start))
	return nil
}

// doWithRetry executes the request with bounded retry on transient
// failures: transport errors, HTTP 429 (honoring Retry-After), and
// gateway errors (502/503/504). Backoff doubles per attempt.
func (c *Client) doWithRetry(ctx context.Context, reqURL string) (*http.Response, error) {
	delay := c.retryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("execute request: %w", err)
			logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt+1).Msg("tmdb request failed, retrying")
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		// Honor Retry-After on 429 (RFC 6585).
		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.TMDBRequestsTotal.WithLabelValues(endpointLabel(req.URL.Path), "rate_limited").Inc()
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, perr := strconv.Atoi(retryAfter); perr == nil && seconds > 0 {
					delay = time.Duration(seconds) * time.Second
				}
			}
		}

		lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
		resp.Body.Close() //nolint:errcheck,gosec // draining before retry
		logging.Ctx(ctx).Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("tmdb transient status, retrying")
	}

	return nil, fmt.Errorf("exhausted %d retry attempts: %w", c.retryAttempts, lastErr)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// endpointLabel collapses request paths into low-cardinality metric labels.
func endpointLabel(path string) string {
	switch {
	case strings.Contains(path, "/discover/"):
		return "discover"
	case strings.Contains(path, "/search/"):
		return "search"
	default:
		return "movie"
	}
}

// readBodyForError reads at most maxErrorBodySize bytes of a response body
// for error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
