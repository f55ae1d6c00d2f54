package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initMemoryMetrics initializes write path, retrieval and queue metrics.
func (m *Manager) initMemoryMetrics() {
	m.memoriesStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrain_memories_stored_total",
			Help: "Total number of stored memories by embedding availability",
		},
		[]string{"embedding"},
	)

	m.retrievals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibrain_retrievals_total",
			Help: "Total number of retrievals by ranking mode",
		},
		[]string{"ranking"},
	)

	m.retrievedCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aibrain_retrieved_memories",
			Help:    "Number of memories returned per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	m.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aibrain_task_queue_depth",
			Help: "Pending post-turn tasks",
		},
	)

	m.queueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aibrain_task_queue_dropped_total",
			Help: "Post-turn tasks dropped because the queue was full",
		},
	)

	m.registry.MustRegister(m.memoriesStored)
	m.registry.MustRegister(m.retrievals)
	m.registry.MustRegister(m.retrievedCount)
	m.registry.MustRegister(m.queueDepth)
	m.registry.MustRegister(m.queueDropped)
}

// RecordMemoryStored records a write; withEmbedding reports whether the
// embedding oracle succeeded.
func (m *Manager) RecordMemoryStored(withEmbedding bool) {
	if !m.Enabled() {
		return
	}
	label := "missing"
	if withEmbedding {
		label = "present"
	}
	m.memoriesStored.WithLabelValues(label).Inc()
}

// RecordRetrieval records a retrieval with its ranking mode (semantic or
// recency) and result size.
func (m *Manager) RecordRetrieval(ranking string, returned int) {
	if !m.Enabled() {
		return
	}
	m.retrievals.WithLabelValues(ranking).Inc()
	m.retrievedCount.Observe(float64(returned))
}

// SetQueueDepth sets the current task queue depth.
func (m *Manager) SetQueueDepth(depth int) {
	if !m.Enabled() {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordQueueDrop records a dropped post-turn task.
func (m *Manager) RecordQueueDrop() {
	if !m.Enabled() {
		return
	}
	m.queueDropped.Inc()
}
