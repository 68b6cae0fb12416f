// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Package metrics provides Prometheus instrumentation for Kinograph:
// API endpoint latency and throughput, crawler progress, TMDB client
// behavior, cache efficiency, and recommendation serving.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Crawler Metrics
	CrawlerPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_fetched_total",
			Help: "Total number of catalog pages fetched, by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	CrawlerBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_batches_total",
			Help: "Total number of page batches processed, by outcome",
		},
		[]string{"outcome"}, // "success", "partial", "error"
	)

	CrawlerItemsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_items_discovered_total",
			Help: "Total number of unique items discovered across partitions",
		},
	)

	CrawlerPartitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_partition_duration_seconds",
			Help:    "Time spent crawling one partition (release year)",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// TMDB Client Metrics
	TMDBRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmdb_requests_total",
			Help: "Total number of TMDB API requests, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "success", "error", "rate_limited"
	)

	TMDBRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmdb_request_duration_seconds",
			Help:    "Duration of TMDB API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through circuit breakers, by result",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movie_cache_hits_total",
			Help: "Total number of movie cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movie_cache_misses_total",
			Help: "Total number of movie cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "movie_cache_entries",
			Help: "Current number of cached movie records",
		},
	)

	// Recommendation Metrics
	RecommendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_requests_total",
			Help: "Total recommendation requests, by outcome",
		},
		[]string{"outcome"}, // "success", "not_found", "not_ready", "error"
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_duration_seconds",
			Help:    "End-to-end duration of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecommendFilterApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_rating_filter_total",
			Help: "Recommendation requests by rating-filter state",
		},
		[]string{"active"}, // "true", "false"
	)

	// Index Metrics
	IndexItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "index_items",
			Help: "Number of items in the loaded similarity index",
		},
	)

	IndexLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "index_loaded",
			Help: "Whether the similarity index is loaded (1) or not (0)",
		},
	)
)

// RecordAPIRequest records metrics for a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordTMDBRequest records a TMDB API call outcome.
func RecordTMDBRequest(endpoint, outcome string, duration time.Duration) {
	TMDBRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	TMDBRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
