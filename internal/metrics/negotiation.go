// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	negotiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_negotiations_total",
		Help: "Dialect negotiations by result (success, failed)",
	}, []string{"result"})

	negotiationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "immich_gate_negotiation_duration_seconds",
		Help:    "Wall time of a full dialect negotiation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	versionProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "immich_gate_version_probes_total",
		Help: "Version-info probes by dialect and result",
	}, []string{"dialect", "result"})

	dialectInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "immich_gate_dialect_info",
		Help: "Currently pinned dialect (value 1) and reported server version",
	}, []string{"dialect", "server_version"})
)

// RecordNegotiation records one completed negotiation.
func RecordNegotiation(success bool, d time.Duration) {
	result := "failed"
	if success {
		result = "success"
	}
	negotiations.WithLabelValues(result).Inc()
	negotiationDuration.Observe(d.Seconds())
}

// RecordVersionProbe counts one version-info probe.
func RecordVersionProbe(dialect string, success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	versionProbes.WithLabelValues(dialect, result).Inc()
}

// SetDialect publishes the pinned dialect, replacing any previous one.
func SetDialect(dialect, serverVersion string) {
	dialectInfo.Reset()
	dialectInfo.WithLabelValues(dialect, serverVersion).Set(1)
}
