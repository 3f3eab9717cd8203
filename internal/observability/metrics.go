package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the agent core and daemon.
type Metrics struct {
	registry       *prometheus.Registry
	AgentRuns      *prometheus.CounterVec
	AgentDuration  *prometheus.HistogramVec
	AgentIterSpent *prometheus.HistogramVec
	ToolCalls      *prometheus.CounterVec
	TokensUsed     *prometheus.CounterVec
	APIRetries     prometheus.Counter
	ActiveSession  *prometheus.GaugeVec
	TransportErrs  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with agent collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bluehawks_agent_runs_total",
		Help: "Total agent turns by finish reason",
	}, []string{"finish_reason"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bluehawks_agent_duration_seconds",
		Help:    "Agent turn duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"finish_reason"})

	iters := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bluehawks_agent_iterations",
		Help:    "Model-call iterations spent per agent turn",
		Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
	}, []string{"finish_reason"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bluehawks_tool_calls_total",
		Help: "Tool dispatches by tool name and outcome",
	}, []string{"tool", "outcome"})

	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bluehawks_tokens_total",
		Help: "Tokens consumed by model",
	}, []string{"model"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluehawks_api_retries_total",
		Help: "Completion endpoint retries",
	})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bluehawks_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bluehawks_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(runs, durs, iters, toolCalls, tokens, retries, active, trErrors)

	return &Metrics{
		registry:       reg,
		AgentRuns:      runs,
		AgentDuration:  durs,
		AgentIterSpent: iters,
		ToolCalls:      toolCalls,
		TokensUsed:     tokens,
		APIRetries:     retries,
		ActiveSession:  active,
		TransportErrs:  trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAgentRun records counts, duration, and iterations for a turn.
func (m *Metrics) RecordAgentRun(finishReason string, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	if finishReason == "" {
		finishReason = "unknown"
	}
	m.AgentRuns.WithLabelValues(finishReason).Inc()
	m.AgentDuration.WithLabelValues(finishReason).Observe(duration.Seconds())
	m.AgentIterSpent.WithLabelValues(finishReason).Observe(float64(iterations))
}

// RecordToolCall counts a tool dispatch outcome.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordTokens counts tokens for a model.
func (m *Metrics) RecordTokens(model string, tokens int) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.TokensUsed.WithLabelValues(model).Add(float64(tokens))
}

// RecordAPIRetry counts one completion retry.
func (m *Metrics) RecordAPIRetry() {
	if m == nil {
		return
	}
	m.APIRetries.Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
