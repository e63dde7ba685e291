// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_proxy_attempts_total",
		Help: "Upstream candidate attempts by resource class and outcome",
	}, []string{"class", "outcome"})

	proxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_proxy_requests_total",
		Help: "Proxied asset requests by resource class and terminal status",
	}, []string{"class", "status"})

	proxyBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_proxy_bytes_total",
		Help: "Asset bytes streamed to clients by resource class",
	}, []string{"class"})

	proxyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "immich_gate_proxy_request_duration_seconds",
		Help:    "Time from request to last byte streamed, by resource class",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"class"})

	proxyAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_proxy_aborted_total",
		Help: "Streams truncated by an upstream read error",
	}, []string{"class"})
)

// RecordProxyAttempt counts one candidate attempt.
func RecordProxyAttempt(class, outcome string) {
	proxyAttempts.WithLabelValues(class, outcome).Inc()
}

// RecordProxyResult records the terminal outcome of one proxied request.
func RecordProxyResult(class string, status int, bytes int64, aborted bool, d time.Duration) {
	proxyRequests.WithLabelValues(class, strconv.Itoa(status)).Inc()
	if bytes > 0 {
		proxyBytes.WithLabelValues(class).Add(float64(bytes))
	}
	if aborted {
		proxyAborted.WithLabelValues(class).Inc()
	}
	proxyDuration.WithLabelValues(class).Observe(d.Seconds())
}
