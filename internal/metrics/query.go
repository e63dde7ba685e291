// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_upstream_queries_total",
		Help: "Upstream JSON queries by operation and result",
	}, []string{"operation", "result"})

	upstreamQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "immich_gate_upstream_query_duration_seconds",
		Help:    "Latency of upstream JSON queries by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// RecordUpstreamQuery records an upstream JSON query. result is "success"
// or a short error class such as "not_found" or "timeout".
func RecordUpstreamQuery(operation, result string, d time.Duration) {
	upstreamQueries.WithLabelValues(operation, result).Inc()
	upstreamQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}
