// Package telemetry exposes prometheus metrics for the workflow engine and
// its collaborators.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instruments registered for one process.
type Metrics struct {
	Executions       *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	ProviderFailures *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New registers workflow metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Workflow executions that reached a terminal outcome",
		}, []string{"outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_failures_total",
			Help: "Workflow executions that ended in a fatal error",
		}, []string{"kind"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_step_duration_seconds",
			Help:    "Wall time spent inside each agent node",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_provider_failures_total",
			Help: "Collaborator call failures, including degraded ones",
		}, []string{"provider"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Open chat sessions",
		}),
	}
	reg.MustRegister(m.Executions, m.Failures, m.StepDuration, m.ProviderFailures, m.ActiveSessions)
	return m
}
