// Package metrics provides Prometheus metrics instrumentation for the brain.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics of the brain. A disabled manager
// accepts every call and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Oracle metrics
	oracleCalls    *prometheus.CounterVec
	oracleDuration *prometheus.HistogramVec
	cacheHits      *prometheus.CounterVec

	// Memory metrics
	memoriesStored *prometheus.CounterVec
	retrievals     *prometheus.CounterVec
	retrievedCount prometheus.Histogram

	// Job metrics
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobUserFailures *prometheus.CounterVec

	// Queue metrics
	queueDepth   prometheus.Gauge
	queueDropped prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `koanf:"enabled"`
	Port    int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `koanf:"path"`

	OracleDurationBuckets []float64 `koanf:"oracle_duration_buckets"`
	JobDurationBuckets    []float64 `koanf:"job_duration_buckets"`
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               false,
		Port:                  9091,
		Path:                  "/metrics",
		OracleDurationBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		JobDurationBuckets:    []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}
	if len(cfg.OracleDurationBuckets) == 0 {
		cfg.OracleDurationBuckets = DefaultConfig().OracleDurationBuckets
	}
	if len(cfg.JobDurationBuckets) == 0 {
		cfg.JobDurationBuckets = DefaultConfig().JobDurationBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.initOracleMetrics(cfg)
	m.initMemoryMetrics()
	m.initJobMetrics(cfg)

	return m
}

// NoOpManager returns a no-op metrics manager.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m != nil && m.enabled
}

// Registry exposes the underlying registry, nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	if !m.Enabled() {
		return nil
	}
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the metrics endpoint until ctx is done.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.Enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
