package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initOracleMetrics initializes embedding and text oracle metrics.
func (m *Manager) initOracleMetrics(cfg Config) {
	m.oracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrain_oracle_calls_total",
			Help: "Total number of oracle calls by oracle, operation and outcome",
		},
		[]string{"oracle", "operation", "status"},
	)

	m.oracleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aibrain_oracle_duration_seconds",
			Help:    "Oracle call duration in seconds",
			Buckets: cfg.OracleDurationBuckets,
		},
		[]string{"oracle", "operation"},
	)

	m.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrain_embedding_cache_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.oracleCalls)
	m.registry.MustRegister(m.oracleDuration)
	m.registry.MustRegister(m.cacheHits)
}

// RecordOracleCall records one oracle call and its outcome (ok, degraded,
// failure).
func (m *Manager) RecordOracleCall(oracle, operation, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.oracleCalls.WithLabelValues(oracle, operation, status).Inc()
	m.oracleDuration.WithLabelValues(oracle, operation).Observe(duration.Seconds())
}

// RecordCacheLookup records an embedding cache hit or miss.
func (m *Manager) RecordCacheLookup(hit bool) {
	if !m.Enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheHits.WithLabelValues(result).Inc()
}
