package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics for the generation pipeline.
// All observe methods are nil-safe so components can run without metrics in
// tests.
type Metrics struct {
	Submissions   *prometheus.CounterVec
	Polls         prometheus.Counter
	Persists      *prometheus.CounterVec
	TasksFinished *prometheus.CounterVec
	TaskDuration  prometheus.Histogram
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mindgraph_graph_submissions_total",
			Help: "Total graph generation submissions by result",
		}, []string{"result"}), // "accepted", "conflict", "error"

		Polls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mindgraph_engine_polls_total",
			Help: "Total status polls issued to the analysis engine",
		}),

		Persists: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mindgraph_snapshot_persists_total",
			Help: "Total snapshot persist attempts by result",
		}, []string{"result"}), // "ok", "error"

		TasksFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mindgraph_tasks_finished_total",
			Help: "Total generation tasks reaching a terminal state, by state",
		}, []string{"status"}),

		TaskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mindgraph_task_duration_seconds",
			Help:    "Wall-clock duration from submission to terminal state",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil before InitMetrics)
func GetMetrics() *Metrics {
	return globalMetrics
}

// ObserveSubmission records a submission outcome
func (m *Metrics) ObserveSubmission(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

// ObservePoll records one engine status poll
func (m *Metrics) ObservePoll() {
	if m == nil {
		return
	}
	m.Polls.Inc()
}

// ObservePersist records a snapshot persist outcome
func (m *Metrics) ObservePersist(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Persists.WithLabelValues(result).Inc()
}

// ObserveTaskFinished records a terminal task transition and its duration
func (m *Metrics) ObserveTaskFinished(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TasksFinished.WithLabelValues(status).Inc()
	m.TaskDuration.Observe(duration.Seconds())
}
