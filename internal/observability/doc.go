// Package observability provides monitoring and debugging capabilities for
// the Trio agent runtime through metrics, structured logging, distributed
// tracing, and a per-turn event timeline.
//
// # Overview
//
// The package implements four pillars:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//  4. Timeline - Per-turn event recording for post-hoc replay
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Agent spawn/outcome/lifetime (C6 Agent Spawner, C5 Lifecycle Manager)
//   - Tool execution counts and latencies (C1 Tool Registry)
//   - LLM request latency and token usage (C7 Planner's Drafter)
//   - Approval decisions (C2 Approval Gate)
//   - Error rates by component and type
//   - Active agent and session counts
//
// Metrics are not called directly from collaborator packages; instead,
// MetricsSubscriber bridges Event Bus (C3) traffic onto a Metrics instance
// so the Registry, Spawner, Lifecycle Manager, and Approval Gate never
// import Prometheus themselves:
//
//	metrics := observability.NewMetrics()
//	bus.SubscribeAll(observability.NewMetricsSubscriber(metrics).Handle)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic run/session/agent ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx = observability.AddSessionID(ctx, sessionID)
//	logger.Info(ctx, "executing turn", "prompt_length", len(prompt))
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a turn across the
// Coordinator (C9), Executor (C8), and Tool Registry (C1):
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:  "trio",
//	    Endpoint:     "localhost:4317",
//	    SamplingRate: 0.1,
//	})
//	defer shutdown(context.Background())
//
// # Timeline
//
// EventBridge subscribes to the Event Bus and records every tool-call and
// agent-lifecycle transition for the currently in-flight turn through an
// EventRecorder into an EventStore, so a `--debug` run can print a replay
// of the turn with FormatTimeline(BuildTimeline(events)).
//
// # Context Propagation
//
// All four components integrate with Go's context for automatic
// correlation:
//
//	ctx = observability.AddRunID(ctx, runID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//	ctx = observability.AddAgentID(ctx, agentID)
//
//	logger.Info(ctx, "processing") // includes run_id, session_id, agent_id
//
// # Security Considerations
//
// The logging component automatically redacts API keys (Anthropic,
// OpenAI, generic), passwords/secrets, JWT tokens, and Bearer tokens, plus
// custom patterns supplied via LogConfig.RedactPatterns.
package observability
