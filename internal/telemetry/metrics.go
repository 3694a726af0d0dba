// Package telemetry holds the pipeline's Prometheus metrics registry (C10)
// and the zap hot-path logger used for per-request/per-agent-invocation
// events too frequent for the logrus-based structured phase log.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the pipeline emits through,
// grouped by the component that owns them (C1, C3, C6, C8, C9).
type Metrics struct {
	// HTTP Core (C1)
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrorsTotal *prometheus.CounterVec

	// Policy Middleware (C3)
	PolicyViolationsTotal *prometheus.CounterVec

	// Agent Executor (C6)
	AgentInvocationsTotal *prometheus.CounterVec
	AgentDuration *prometheus.HistogramVec

	// Orchestrator / Phase Engine (C8)
	PhaseDuration *prometheus.HistogramVec

	// Dead-Letter Sink (C9)
	DeadLetterAppendsTotal prometheus.Counter
}

// New creates a Metrics instance registered against prometheus.DefaultRegisterer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance against a custom registry,
// keeping test suites isolated from the global default registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total outbound HTTP requests made by the HTTP core.",
			},
			[]string{"host", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "Outbound HTTP request duration in seconds.",
				Buckets: []float64{.01,.025,.05,.1,.25,.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"host", "method"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_errors_total",
				Help: "Total classified HTTP errors by host and error kind.",
			},
			[]string{"host", "kind"},
		),
		PolicyViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_violations_total",
				Help: "Total Policy Middleware violations by predicate.",
			},
			[]string{"predicate", "agent"},
		),
		AgentInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_invocations_total",
				Help: "Total agent invocations by agent and outcome.",
			},
			[]string{"agent", "outcome"},
		),
		AgentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "agent_invocation_duration_seconds",
				Help: "Agent invocation duration in seconds.",
				Buckets: []float64{.01,.05,.1,.5, 1, 5, 10, 30, 60},
			},
			[]string{"agent"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "phase_duration_seconds",
				Help: "Phase wall-clock duration in seconds.",
				Buckets: []float64{.1, 1, 5, 30, 60, 300, 900, 3600},
			},
			[]string{"phase"},
		),
		DeadLetterAppendsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dead_letter_appends_total",
				Help: "Total tasks appended to the Dead-Letter Sink.",
			},
		),
	}

	registerer.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPErrorsTotal,
		m.PolicyViolationsTotal,
		m.AgentInvocationsTotal,
		m.AgentDuration,
		m.PhaseDuration,
		m.DeadLetterAppendsTotal,
	)

	return m
}
