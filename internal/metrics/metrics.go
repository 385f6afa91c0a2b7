// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Partition query performance (DuckDB over parquet)
// - API endpoint latency and throughput
// - Event ingest buffering and flushes
// - Cache efficiency
// - Insight generation (LLM calls and circuit breaker)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "error_type"},
	)

	DBPartitionsScanned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duckdb_partitions_scanned",
			Help:    "Number of parquet partitions scanned per analytics query",
			Buckets: []float64{1, 2, 5, 10, 20, 31, 62, 90},
		},
	)

	DBPartitionsMissing = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duckdb_partitions_missing_total",
			Help: "Total number of requested partitions that were absent on disk",
		},
	)

	// API Endpoint Metrics
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

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Ingest Metrics
	IngestEventsBuffered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_buffered_total",
			Help: "Total number of tracked events accepted into the buffer",
		},
	)

	IngestBufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_buffer_depth",
			Help: "Current number of events buffered across all projects",
		},
	)

	IngestFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_duration_seconds",
			Help:    "Duration of event buffer flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestFlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_batch_size",
			Help:    "Number of events written per flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	IngestFlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_flush_errors_total",
			Help: "Total number of failed buffer flushes",
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "analytics", "insights"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Insight Generation Metrics
	InsightRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insight_request_duration_seconds",
			Help:    "Duration of LLM insight generation calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	InsightRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_request_errors_total",
			Help: "Total number of failed insight generation calls",
		},
		[]string{"error_type"}, // "api", "parse", "breaker"
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
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordIngestFlush records an event buffer flush and its outcome
func RecordIngestFlush(duration time.Duration, batchSize int, err error) {
	IngestFlushDuration.Observe(duration.Seconds())
	IngestFlushBatchSize.Observe(float64(batchSize))
	if err != nil {
		IngestFlushErrors.Inc()
	}
}

// RecordCacheAccess records a cache hit or miss for the given cache type
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
	} else {
		CacheMisses.WithLabelValues(cacheType).Inc()
	}
}

// RecordInsightRequest records an LLM insight generation call
func RecordInsightRequest(duration time.Duration, errorType string) {
	InsightRequestDuration.Observe(duration.Seconds())
	if errorType != "" {
		InsightRequestErrors.WithLabelValues(errorType).Inc()
	}
}
