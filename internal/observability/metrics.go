package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Agent lifecycle transitions (spawn, complete, fail, cancel, destroy)
//   - Tool execution patterns and latencies
//   - LLM request performance and token usage
//   - Error rates categorized by type and component
//   - Active agent counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.AgentSpawned("mini_agent")
//	defer metrics.LLMRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// AgentSpawnedCounter counts agents spawned by type.
	// Labels: agent_type (mini_agent|main)
	AgentSpawnedCounter *prometheus.CounterVec

	// AgentOutcomeCounter counts agents reaching a terminal state.
	// Labels: outcome (completed|failed|cancelled)
	AgentOutcomeCounter *prometheus.CounterVec

	// ActiveAgents is a gauge tracking currently running agents.
	ActiveAgents prometheus.Gauge

	// AgentLifetime measures the duration from spawn to a terminal state.
	// Buckets: 1s, 5s, 15s, 30s, 60s, 120s, 300s, 600s
	AgentLifetime prometheus.Histogram

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (agent|tool|session|approval), error_type
	ErrorCounter *prometheus.CounterVec

	// ApprovalCounter counts approval decisions.
	// Labels: decision (approved|denied)
	ApprovalCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	ActiveSessions prometheus.Gauge

	// SessionDuration measures session lifetime in seconds.
	// Buckets: 60s, 300s, 600s, 1800s, 3600s
	SessionDuration prometheus.Histogram

	// CleanupDuration measures time spent in CLEANUP_INITIATED before an
	// agent is destroyed.
	// Buckets: 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	CleanupDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		AgentSpawnedCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_agents_spawned_total",
				Help: "Total number of agents spawned by type",
			},
			[]string{"agent_type"},
		),

		AgentOutcomeCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_agent_outcomes_total",
				Help: "Total number of agents reaching a terminal state",
			},
			[]string{"outcome"},
		),

		ActiveAgents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trio_active_agents",
				Help: "Current number of running agents",
			},
		),

		AgentLifetime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trio_agent_lifetime_seconds",
				Help:    "Duration from agent spawn to terminal state",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trio_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trio_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ApprovalCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trio_approvals_total",
				Help: "Total number of approval decisions by outcome",
			},
			[]string{"decision"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trio_active_sessions",
				Help: "Current number of active sessions",
			},
		),

		SessionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trio_session_duration_seconds",
				Help:    "Duration of sessions in seconds",
				Buckets: []float64{60, 300, 600, 1800, 3600},
			},
		),

		CleanupDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trio_agent_cleanup_duration_seconds",
				Help:    "Time between CLEANUP_INITIATED and AGENT_DESTROYED",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// AgentSpawned records an agent spawn of the given type and increments the
// active-agent gauge.
func (m *Metrics) AgentSpawned(agentType string) {
	m.AgentSpawnedCounter.WithLabelValues(agentType).Inc()
	m.ActiveAgents.Inc()
}

// AgentTerminated records an agent reaching a terminal state and decrements
// the active-agent gauge.
func (m *Metrics) AgentTerminated(outcome string, lifetimeSeconds float64) {
	m.AgentOutcomeCounter.WithLabelValues(outcome).Inc()
	m.AgentLifetime.Observe(lifetimeSeconds)
	m.ActiveAgents.Dec()
}

// RecordApproval records an approval decision.
func (m *Metrics) RecordApproval(approved bool) {
	decision := "denied"
	if approved {
		decision = "approved"
	}
	m.ApprovalCounter.WithLabelValues(decision).Inc()
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active sessions gauge and records session duration.
func (m *Metrics) SessionEnded(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordCleanup records the time between CLEANUP_INITIATED and AGENT_DESTROYED.
func (m *Metrics) RecordCleanup(durationSeconds float64) {
	m.CleanupDuration.Observe(durationSeconds)
}
