// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package metrics provides Prometheus instrumentation for Feedrank:
// feed request latency and throughput, cache tier efficiency, pool
// assembly strategy yield, batch processing, and store query performance.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed request metrics
	FeedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Total number of feed requests",
		},
		[]string{"content_type", "refresh", "status"},
	)

	FeedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_request_duration_seconds",
			Help:    "Feed request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"content_type"},
	)

	FeedItemsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_items_returned",
			Help:    "Number of items returned per feed response",
			Buckets: []float64{1, 5, 10, 20, 30, 50},
		},
	)

	// Cache tier metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses across all tiers",
		},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total cache evictions by tier and reason",
		},
		[]string{"tier", "reason"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries by tier",
		},
		[]string{"tier"},
	)

	CachePressureLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_pressure_level",
			Help: "Last measured memory pressure level (0=none 1=low 2=medium 3=high)",
		},
	)

	// Pool assembly metrics
	PoolStrategyResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_strategy_results_total",
			Help: "Candidates contributed per assembly strategy before deduplication",
		},
		[]string{"strategy"},
	)

	PoolAssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pool_assembly_duration_seconds",
			Help:    "Candidate pool assembly duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Batch processing metrics
	BatchItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_processed_total",
			Help: "Items processed by the batch processor",
		},
		[]string{"outcome"}, // "ok", "dropped"
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Per-batch processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Store query metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Collaborator store query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total collaborator store query errors",
		},
		[]string{"store", "operation"},
	)

	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_state_changes_total",
			Help: "Content-store circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// ObserveFeedRequest records a completed feed request.
func ObserveFeedRequest(contentType string, refresh bool, statusCode int, duration time.Duration, items int) {
	FeedRequestsTotal.WithLabelValues(contentType, strconv.FormatBool(refresh), strconv.Itoa(statusCode)).Inc()
	FeedRequestDuration.WithLabelValues(contentType).Observe(duration.Seconds())
	if statusCode < 400 {
		FeedItemsReturned.Observe(float64(items))
	}
}

// ObserveStoreQuery records a collaborator store query.
func ObserveStoreQuery(store, operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(store, operation).Inc()
	}
}
