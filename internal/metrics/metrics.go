// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileOutcomesTotal counts reconciliation requests by outcome
	ReconcileOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malsync_reconcile_outcomes_total",
			Help: "Reconciliation requests by outcome",
		},
		[]string{"outcome"},
	)

	// CacheRequestsTotal counts memoization cache lookups by cache and result (hit, miss)
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malsync_cache_requests_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	// CacheEvictionsTotal counts capacity evictions per cache
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malsync_cache_evictions_total",
			Help: "Entries evicted because a cache reached capacity",
		},
		[]string{"cache"},
	)

	// CacheEntries reports the current number of entries per cache
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "malsync_cache_entries",
			Help: "Current number of entries per cache",
		},
		[]string{"cache"},
	)

	// UpstreamRequestsTotal counts outgoing calls by upstream and result
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malsync_upstream_requests_total",
			Help: "Outgoing upstream requests by upstream and result",
		},
		[]string{"upstream", "result"},
	)

	// HTTPRequestDuration tracks handler latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "malsync_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route", "status"},
	)

	// MappingImportsTotal counts mapping dataset imports by result
	MappingImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malsync_mapping_imports_total",
			Help: "Mapping dataset imports by result",
		},
		[]string{"result"},
	)

	// MappingRecords reports the number of stored id mappings after the last import
	MappingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "malsync_mapping_records",
			Help: "Number of stored id mappings",
		},
	)
)
