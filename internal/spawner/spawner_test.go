package spawner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trioctl/trio/internal/lifecycle"
	"github.com/trioctl/trio/internal/permissions"
	"github.com/trioctl/trio/pkg/models"
)

type fakeSteps struct {
	mu    sync.Mutex
	calls int
	plan  []StepAction
}

func (f *fakeSteps) NextStep(ctx context.Context, task models.MiniAgentTask, history []models.ToolResult) (StepAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.plan) {
		return StepAction{Done: true}, nil
	}
	a := f.plan[f.calls]
	f.calls++
	return a, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	return models.Ok("ok", 1)
}

func waitForTerminal(t *testing.T, lc *lifecycle.Manager, agentID string) models.AgentInstance {
	t.Helper()
	for i := 0; i < 100; i++ {
		inst, ok := lc.Get(agentID)
		if ok && inst.State.IsTerminal() {
			return inst
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("agent never reached a terminal state")
	return models.AgentInstance{}
}

func TestSpawnRejectsOverCapacity(t *testing.T) {
	lc := lifecycle.New(lifecycle.DefaultConfig(), nil)
	perms := permissions.New(models.SecurityDefault)
	steps := &fakeSteps{plan: []StepAction{{Done: true}}}
	sp := New(Config{MaxConcurrentAgents: 1, Permissions: perms, Lifecycle: lc, Steps: steps, Executor: fakeExecutor{}})

	sp.active = 1 // simulate one already running
	_, err := sp.Spawn(context.Background(), models.MiniAgentTask{ID: "blocked"}, models.Permissions{})
	if err == nil {
		t.Fatal("expected capacity error")
	}
	var rerr *models.RuntimeError
	if ok := asRuntimeError(err, &rerr); !ok || rerr.Kind != models.ErrCapacity {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func asRuntimeError(err error, target **models.RuntimeError) bool {
	if re, ok := err.(*models.RuntimeError); ok {
		*target = re
		return true
	}
	return false
}

func TestSpawnRunsStepsToCompletion(t *testing.T) {
	lc := lifecycle.New(lifecycle.DefaultConfig(), nil)
	perms := permissions.New(models.SecurityDefault)
	steps := &fakeSteps{plan: []StepAction{
		{ToolCall: models.ToolCall{Name: "exec"}},
		{ToolCall: models.ToolCall{Name: "exec"}},
	}}
	sp := New(Config{MaxConcurrentAgents: 4, Permissions: perms, Lifecycle: lc, Steps: steps, Executor: fakeExecutor{}})

	id, err := sp.Spawn(context.Background(), models.MiniAgentTask{ID: "a1", MaxIterations: 5}, models.Permissions{})
	if err != nil {
		t.Fatal(err)
	}

	inst := waitForTerminal(t, lc, id)
	if inst.State != models.AgentCompleted {
		t.Fatalf("expected completed, got %s (lastErr=%s)", inst.State, inst.LastError)
	}
	if inst.Counters.ToolCalls != 2 {
		t.Fatalf("expected 2 tool calls counted, got %d", inst.Counters.ToolCalls)
	}
}

func TestSpawnFailsWhenIterationBudgetExhausted(t *testing.T) {
	lc := lifecycle.New(lifecycle.DefaultConfig(), nil)
	perms := permissions.New(models.SecurityDefault)
	steps := &fakeSteps{plan: []StepAction{
		{ToolCall: models.ToolCall{Name: "exec"}},
		{ToolCall: models.ToolCall{Name: "exec"}},
		{ToolCall: models.ToolCall{Name: "exec"}},
	}}
	sp := New(Config{MaxConcurrentAgents: 4, Permissions: perms, Lifecycle: lc, Steps: steps, Executor: fakeExecutor{}})

	id, err := sp.Spawn(context.Background(), models.MiniAgentTask{ID: "a1", MaxIterations: 2}, models.Permissions{})
	if err != nil {
		t.Fatal(err)
	}

	inst := waitForTerminal(t, lc, id)
	if inst.State != models.AgentFailed {
		t.Fatalf("expected failed on exhausted budget, got %s", inst.State)
	}
}
