package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initJobMetrics initializes maintenance job metrics.
func (m *Manager) initJobMetrics(cfg Config) {
	m.jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrain_job_runs_total",
			Help: "Total number of maintenance job runs by job and status",
		},
		[]string{"job", "status"},
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aibrain_job_duration_seconds",
			Help:    "Maintenance job duration in seconds",
			Buckets: cfg.JobDurationBuckets,
		},
		[]string{"job"},
	)

	m.jobUserFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrain_job_user_failures_total",
			Help: "Per-user failures isolated inside maintenance jobs",
		},
		[]string{"job"},
	)

	m.registry.MustRegister(m.jobRuns)
	m.registry.MustRegister(m.jobDuration)
	m.registry.MustRegister(m.jobUserFailures)
}

// RecordJobRun records a finished job run (status ok, error, skipped).
func (m *Manager) RecordJobRun(job, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordJobUserFailures adds n isolated per-user failures to a job.
func (m *Manager) RecordJobUserFailures(job string, n int) {
	if !m.Enabled() || n == 0 {
		return
	}
	m.jobUserFailures.WithLabelValues(job).Add(float64(n))
}
