package observability

import (
	"sync"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

// MetricsSubscriber adapts Event Bus events onto a Metrics instance, so
// Prometheus counters/histograms stay in sync with the Registry, Lifecycle
// Manager, and Approval Gate without those components importing Prometheus
// directly. Construct one and pass its Handle method to bus.SubscribeAll.
//
// The bus invokes handlers inline on the publisher's goroutine, and
// multiple goroutines may publish concurrently, so Handle serializes its
// own bookkeeping with a mutex.
type MetricsSubscriber struct {
	mu sync.Mutex

	metrics *Metrics

	spawned map[string]time.Time
	cleanup map[string]time.Time
}

// NewMetricsSubscriber builds a subscriber bound to the given Metrics.
func NewMetricsSubscriber(metrics *Metrics) *MetricsSubscriber {
	return &MetricsSubscriber{
		metrics: metrics,
		spawned: make(map[string]time.Time),
		cleanup: make(map[string]time.Time),
	}
}

// Handle is a Handler suitable for bus.SubscribeAll(sub.Handle).
func (s *MetricsSubscriber) Handle(e models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case models.EventAgentSpawned:
		s.spawned[e.AgentID] = e.Timestamp
		agentType, _ := e.Payload["type"].(string)
		if agentType == "" {
			agentType = "mini_agent"
		}
		s.metrics.AgentSpawned(agentType)

	case models.EventAgentCompleted:
		s.terminate(e, "completed")
	case models.EventAgentFailed:
		s.terminate(e, "failed")
		s.metrics.RecordError("agent", "agent_failed")
	case models.EventAgentCancelled:
		s.terminate(e, "cancelled")

	case models.EventCleanupInitiated:
		s.cleanup[e.AgentID] = e.Timestamp

	case models.EventAgentDestroyed:
		if started, ok := s.cleanup[e.AgentID]; ok {
			delete(s.cleanup, e.AgentID)
			if !e.Timestamp.IsZero() && !started.IsZero() {
				s.metrics.RecordCleanup(e.Timestamp.Sub(started).Seconds())
			}
		}

	case models.EventToolStart:
		// Duration and status are only known at TOOL_COMPLETE/TOOL_ERROR;
		// the registry already measures DurationMs on the ToolResult, so
		// this subscriber records on completion rather than tracking its
		// own start times per call.

	case models.EventToolComplete:
		s.recordTool(e, "success")
	case models.EventToolError:
		s.recordTool(e, "error")
		s.metrics.RecordError("tool", "tool_error")

	case models.EventApprovalComplete:
		approved, _ := e.Payload["approved"].(bool)
		s.metrics.RecordApproval(approved)
	}
}

func (s *MetricsSubscriber) terminate(e models.Event, outcome string) {
	lifetime := 0.0
	if started, ok := s.spawned[e.AgentID]; ok {
		delete(s.spawned, e.AgentID)
		if !e.Timestamp.IsZero() && !started.IsZero() {
			lifetime = e.Timestamp.Sub(started).Seconds()
		}
	}
	s.metrics.AgentTerminated(outcome, lifetime)
}

func (s *MetricsSubscriber) recordTool(e models.Event, status string) {
	toolName, _ := e.Payload["tool"].(string)
	s.metrics.RecordToolExecution(toolName, status, 0)
}
