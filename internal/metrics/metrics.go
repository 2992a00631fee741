// Package metrics exposes Prometheus counters for the ingestion and
// chat pipelines. It implements the dispatcher's Observer so every tool
// call is measured at the single wrapper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors. One instance lives for the process.
type Metrics struct {
	JobsProcessed *prometheus.CounterVec
	ToolCalls     *prometheus.CounterVec
	ToolLatency   *prometheus.HistogramVec
	Ingests       *prometheus.CounterVec
	ChatTurns     *prometheus.CounterVec
	CapturesTotal prometheus.Counter
}

// New registers the collectors with the given registerer. Pass
// prometheus.DefaultRegisterer in the daemon, a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "jobs_processed_total",
			Help:      "Queue jobs completed, by terminal status.",
		}, []string{"status"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "tool_calls_total",
			Help:      "Tool dispatches, by tool and status.",
		}, []string{"tool", "status"}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "engram",
			Name:      "tool_latency_seconds",
			Help:      "Tool dispatch wall time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"tool"}),
		Ingests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "ingests_total",
			Help:      "Ingest pipeline runs, by pipeline and status.",
		}, []string{"pipeline", "status"}),
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "chat_turns_total",
			Help:      "Chat turns, by verifier verdict.",
		}, []string{"verdict"}),
		CapturesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "captures_total",
			Help:      "Browser captures accepted.",
		}),
	}
}

// ObserveToolCall implements tool.Observer.
func (m *Metrics) ObserveToolCall(toolName, status string, elapsed time.Duration) {
	m.ToolCalls.WithLabelValues(toolName, status).Inc()
	m.ToolLatency.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// ObserveJob records one completed queue job.
func (m *Metrics) ObserveJob(status string) {
	m.JobsProcessed.WithLabelValues(status).Inc()
}

// ObserveIngest records one pipeline run.
func (m *Metrics) ObserveIngest(pipeline, status string) {
	m.Ingests.WithLabelValues(pipeline, status).Inc()
}

// ObserveChat records one chat turn verdict.
func (m *Metrics) ObserveChat(verdict string) {
	m.ChatTurns.WithLabelValues(verdict).Inc()
}
