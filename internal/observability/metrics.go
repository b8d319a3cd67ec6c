package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the engine's Prometheus metrics.
//
// Tracked concerns:
//   - Turn throughput and latency per bot type
//   - Handler executions by kind and outcome
//   - External webhook / API-call latency and failures
//   - Live session count
//   - HTTP surface latency
type Metrics struct {
	// TurnCounter counts executed turns.
	// Labels: bot_type, status (ok|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures turn latency in seconds.
	// Labels: bot_type
	TurnDuration *prometheus.HistogramVec

	// HandlerExecutions counts handler runs.
	// Labels: handler_type, result (no_transition|state|plan|end_scenario)
	HandlerExecutions *prometheus.CounterVec

	// ExternalCallDuration measures webhook/apicall latency in seconds.
	// Labels: kind (WEBHOOK|APICALL), name
	ExternalCallDuration *prometheus.HistogramVec

	// ExternalCallCounter counts webhook/apicall outcomes.
	// Labels: kind, name, status (success|error)
	ExternalCallCounter *prometheus.CounterVec

	// ActiveSessions gauges live session snapshots.
	ActiveSessions prometheus.Gauge

	// HTTPRequestDuration measures HTTP API latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all engine metrics on a fresh registry and returns
// both. Using a dedicated registry keeps tests free of duplicate
// registration panics.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stateflow_turns_total",
				Help: "Total executed dialog turns by bot type and status",
			},
			[]string{"bot_type", "status"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stateflow_turn_duration_seconds",
				Help:    "Dialog turn execution latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"bot_type"},
		),
		HandlerExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stateflow_handler_executions_total",
				Help: "Handler executions by type and outcome",
			},
			[]string{"handler_type", "result"},
		),
		ExternalCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stateflow_external_call_duration_seconds",
				Help:    "Webhook and API-call latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind", "name"},
		),
		ExternalCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stateflow_external_calls_total",
				Help: "Webhook and API-call outcomes",
			},
			[]string{"kind", "name", "status"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stateflow_active_sessions",
				Help: "Number of live session snapshots",
			},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stateflow_http_request_duration_seconds",
				Help:    "HTTP API request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}, registry
}
