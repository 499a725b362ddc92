// Package spawner implements the Agent Spawner (C6): it admits a
// MiniAgentTask under a concurrency cap, registers its permissions and
// lifecycle instance, and drives its inner step loop via the scoped
// Executor (C1/C2) until the loop signals done, exhausts its iteration
// budget, fails, or is cancelled.
package spawner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trioctl/trio/internal/permissions"
	"github.com/trioctl/trio/pkg/models"
)

// Publisher is the narrow view of the Event Bus (C3) the spawner needs.
type Publisher interface {
	Publish(event models.Event)
}

// Registrar is the narrow view of the Lifecycle Manager (C5) the spawner
// needs to register and transition an agent instance.
type Registrar interface {
	Register(agentID string, task models.MiniAgentTask) (context.Context, context.CancelFunc)
	Transition(agentID string, state models.AgentState, lastError string)
	UpdateCounters(agentID string, counters models.AgentCounters)
}

// StepAction is one unit of work the step loop asked the LLM for and then
// executed via the caller-supplied Executor.
type StepAction struct {
	ToolCall models.ToolCall // zero value (empty Name) means "no tool, just thinking"
	Done     bool            // the LLM signalled the task is complete
}

// StepSource abstracts "ask the LLM for the next step" so this package has
// no dependency on any concrete model client. history is the ordered
// sequence of prior ToolResults in this agent's run.
type StepSource interface {
	NextStep(ctx context.Context, task models.MiniAgentTask, history []models.ToolResult) (StepAction, error)
}

// Executor abstracts "run one tool call" — satisfied by internal/registry.
type Executor interface {
	Execute(ctx context.Context, call models.ToolCall) models.ToolResult
}

// Spawner is the Agent Spawner.
type Spawner struct {
	maxConcurrent int64
	active        int64

	perms    *permissions.Manager
	lifecyc  Registrar
	bus      Publisher
	steps    StepSource
	executor Executor
}

// Config wires the Spawner's collaborators.
type Config struct {
	MaxConcurrentAgents int64
	Permissions         *permissions.Manager
	Lifecycle           Registrar
	Bus                 Publisher
	Steps               StepSource
	Executor            Executor
}

// New constructs a Spawner.
func New(cfg Config) *Spawner {
	max := cfg.MaxConcurrentAgents
	if max <= 0 {
		max = 1
	}
	return &Spawner{
		maxConcurrent: max,
		perms:         cfg.Permissions,
		lifecyc:       cfg.Lifecycle,
		bus:           cfg.Bus,
		steps:         cfg.Steps,
		executor:      cfg.Executor,
	}
}

// Spawn admits task under the concurrency cap and, on success, starts its
// inner loop on a new goroutine. It returns the agent id immediately; the
// result arrives later via lifecycle events. Spawn itself never queues —
// rejection with ErrCapacity is immediate.
func (s *Spawner) Spawn(parentCtx context.Context, task models.MiniAgentTask, perms models.Permissions) (string, error) {
	for {
		current := atomic.LoadInt64(&s.active)
		if current >= s.maxConcurrent {
			return "", models.NewError(models.ErrCapacity, "agent spawner at capacity")
		}
		if atomic.CompareAndSwapInt64(&s.active, current, current+1) {
			break
		}
	}

	agentID := task.ID
	if agentID == "" {
		agentID = uuid.NewString()
		task.ID = agentID
	}

	if s.perms != nil {
		s.perms.Register(agentID, perms)
	}
	ctx, cancel := s.lifecyc.Register(agentID, task)
	s.publish(models.EventAgentSpawned, agentID)
	s.lifecyc.Transition(agentID, models.AgentRunning, "")

	go func() {
		defer atomic.AddInt64(&s.active, -1)
		defer cancel()
		if s.perms != nil {
			defer s.perms.Forget(agentID)
		}
		s.run(ctx, agentID, task)
	}()

	return agentID, nil
}

// run executes the bounded inner loop: ask for the next step, execute it,
// publish progress, repeat until done, iterations exhausted, failure, or
// cancellation.
func (s *Spawner) run(ctx context.Context, agentID string, task models.MiniAgentTask) {
	maxIter := task.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	var history []models.ToolResult
	counters := models.AgentCounters{}

	for i := 0; i < maxIter; i++ {
		select {
		case <-ctx.Done():
			s.lifecyc.Transition(agentID, models.AgentCancelled, "cancelled")
			return
		default:
		}

		action, err := s.steps.NextStep(ctx, task, history)
		if err != nil {
			s.lifecyc.Transition(agentID, models.AgentFailed, err.Error())
			return
		}
		if action.Done {
			s.lifecyc.Transition(agentID, models.AgentCompleted, "")
			return
		}
		if action.ToolCall.Name == "" {
			continue
		}

		if denied, reason := s.checkPermission(agentID, action.ToolCall); denied {
			result := models.Failure(models.ErrDenied, "denied: "+reason, 0)
			history = append(history, result)
			counters.ToolCalls++
			s.lifecyc.UpdateCounters(agentID, counters)
			s.lifecyc.Transition(agentID, models.AgentFailed, result.Error)
			return
		}

		result := s.executor.Execute(ctx, action.ToolCall)
		history = append(history, result)
		counters.ToolCalls++
		counters.Tokens += models.CharsToTokens(len(result.Output) + len(action.ToolCall.Name))
		s.lifecyc.UpdateCounters(agentID, counters)

		s.publish(models.EventProgressUpdate, agentID)

		// A failed tool call is fed back as history for the next NextStep
		// call to react to, not an automatic loop-abort — only approval
		// denial and cancellation are terminal for the whole agent.
		if result.ErrorKind == models.ErrDenied || result.ErrorKind == models.ErrCancelled {
			s.lifecyc.Transition(agentID, models.AgentFailed, result.Error)
			return
		}
	}

	s.lifecyc.Transition(agentID, models.AgentFailed, "iteration budget exhausted")
}

// checkPermission consults the Permission Manager for the agent's
// registered bundle before a tool call is allowed to run. A nil Manager
// (no permissions wired in) always allows, matching the zero-value
// behavior the rest of this package assumes.
func (s *Spawner) checkPermission(agentID string, call models.ToolCall) (denied bool, reason string) {
	if s.perms == nil {
		return false, ""
	}
	class := permissions.ClassifyAction(call.Name)
	ok, reason := s.perms.Check(agentID, call.Name, class)
	return !ok, reason
}

func (s *Spawner) publish(evtType models.EventType, agentID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(models.NewEvent(evtType, agentID).WithPayload("at", time.Now()))
}
