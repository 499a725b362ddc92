package observability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/trioctl/trio/pkg/models"
)

// EventBridge adapts Event Bus events onto the turn-timeline EventStore,
// tagging each with whatever turn (RunID) is currently in flight. The CLI
// runs one turn at a time per session, so a single current-run pointer is
// enough; SetRunID is called once per executeTurn before the Coordinator
// runs and cleared after.
type EventBridge struct {
	recorder *EventRecorder

	mu  sync.Mutex
	run atomic.Value // string
}

// NewEventBridge constructs a bridge writing through recorder.
func NewEventBridge(recorder *EventRecorder) *EventBridge {
	b := &EventBridge{recorder: recorder}
	b.run.Store("")
	return b
}

// SetRunID tags subsequent bus events with runID until the next call.
func (b *EventBridge) SetRunID(runID string) {
	b.run.Store(runID)
}

// Handle is a Handler suitable for bus.SubscribeAll(bridge.Handle).
func (b *EventBridge) Handle(e models.Event) {
	runID, _ := b.run.Load().(string)
	if runID == "" {
		return
	}

	data := make(map[string]interface{}, len(e.Payload))
	for k, v := range e.Payload {
		data[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ctx := AddRunID(context.Background(), runID)
	if e.AgentID != "" {
		ctx = AddAgentID(ctx, e.AgentID)
	}

	toolName, _ := e.Payload["tool"].(string)

	switch e.Type {
	case models.EventToolStart:
		_ = b.recorder.RecordToolStart(ctx, toolName, data)
	case models.EventToolComplete:
		_ = b.recorder.RecordToolEnd(ctx, toolName, 0, data, nil)
	case models.EventToolError:
		errKind, _ := e.Payload["errorKind"].(string)
		if errKind == "" {
			errKind = "tool execution failed"
		}
		_ = b.recorder.RecordToolEnd(ctx, toolName, 0, data, errors.New(errKind))
	case models.EventAgentSpawned:
		_ = b.recorder.RecordAgentEvent(ctx, EventTypeAgentSpawned, e.AgentID, data)
	case models.EventAgentCompleted, models.EventAgentFailed, models.EventAgentCancelled:
		_ = b.recorder.RecordAgentEvent(ctx, EventTypeAgentEnded, e.AgentID, data)
	}
}
