package lifecycle

import (
	"testing"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

type recordingBus struct {
	events []models.Event
}

func (b *recordingBus) Publish(e models.Event) {
	b.events = append(b.events, e)
}

func TestRegisterStartsInSpawningState(t *testing.T) {
	m := New(DefaultConfig(), nil)
	_, cancel := m.Register("a1", models.MiniAgentTask{ID: "a1"})
	defer cancel()

	inst, ok := m.Get("a1")
	if !ok || inst.State != models.AgentSpawning {
		t.Fatalf("expected spawning state, got %+v ok=%v", inst, ok)
	}
}

func TestTransitionToTerminalSetsEndedAt(t *testing.T) {
	m := New(DefaultConfig(), nil)
	_, cancel := m.Register("a1", models.MiniAgentTask{ID: "a1"})
	defer cancel()

	m.Transition("a1", models.AgentRunning, "")
	m.Transition("a1", models.AgentCompleted, "")

	inst, _ := m.Get("a1")
	if inst.State != models.AgentCompleted || inst.EndedAt == nil {
		t.Fatalf("expected completed with EndedAt set, got %+v", inst)
	}
}

func TestSweepCancelsOnDeadlineExpiry(t *testing.T) {
	bus := &recordingBus{}
	m := New(DefaultConfig(), bus)
	ctx, cancel := m.Register("a1", models.MiniAgentTask{ID: "a1", TimeoutMs: 1})
	defer cancel()
	m.Transition("a1", models.AgentRunning, "")

	time.Sleep(5 * time.Millisecond)
	m.sweep()

	inst, ok := m.Get("a1")
	if !ok || inst.State != models.AgentCancelled {
		t.Fatalf("expected cancelled after deadline, got %+v ok=%v", inst, ok)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected the agent's context to be cancelled")
	}
}

func TestSweepReapsTerminalAgentsAfterGraceWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraceWindow = 10 * time.Millisecond
	m := New(cfg, nil)
	_, cancel := m.Register("a1", models.MiniAgentTask{ID: "a1"})
	defer cancel()
	m.Transition("a1", models.AgentCompleted, "")

	time.Sleep(20 * time.Millisecond)
	m.sweep()

	if _, ok := m.Get("a1"); ok {
		t.Fatal("expected agent to be reaped from the live table")
	}
}

func TestShutdownForcesDestroyOnStragglers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShutdownGrace = 20 * time.Millisecond
	m := New(cfg, nil)
	_, cancel := m.Register("a1", models.MiniAgentTask{ID: "a1"})
	defer cancel()

	m.Shutdown()

	if _, ok := m.Get("a1"); ok {
		t.Fatal("expected straggler to be force-destroyed by Shutdown")
	}
}
