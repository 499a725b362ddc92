package approval

import (
	"context"
	"testing"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

func TestClassifyRiskEscalatesOnDangerousArgs(t *testing.T) {
	call := models.ToolCall{Name: "exec", Args: map[string]any{"command": "rm -rf /tmp/x"}}
	risk := ClassifyRisk(call)
	if risk != models.RiskHigh {
		t.Fatalf("expected high risk for rm -rf, got %s", risk)
	}
}

func TestClassifyRiskNoneForReads(t *testing.T) {
	call := models.ToolCall{Name: "read_file", Args: map[string]any{"path": "a.go"}}
	if risk := ClassifyRisk(call); risk != models.RiskNone {
		t.Fatalf("expected none risk for read_file, got %s", risk)
	}
}

func TestGateAutoApprovesNoneRisk(t *testing.T) {
	g := New(DefaultPolicy(), nil)
	approved, _, err := g.RequestApproval(context.Background(), models.ToolCall{Name: "read_file"})
	if err != nil || !approved {
		t.Fatalf("expected auto-approval, got approved=%v err=%v", approved, err)
	}
}

func TestGateYoloApprovesEverythingButCritical(t *testing.T) {
	policy := DefaultPolicy()
	policy.Mode = models.PolicyYolo
	g := New(policy, nil)
	approved, _, err := g.RequestApproval(context.Background(), models.ToolCall{Name: "exec", Args: map[string]any{"command": "echo hi"}})
	if err != nil || !approved {
		t.Fatalf("expected yolo auto-approval, got approved=%v err=%v", approved, err)
	}
}

func TestGateSuspendsThenResolvesOnExternalDecision(t *testing.T) {
	policy := DefaultPolicy()
	policy.DecisionWindow = time.Second
	g := New(policy, nil)

	done := make(chan struct{})
	var approved bool
	go func() {
		defer close(done)
		var err error
		approved, _, err = g.RequestApproval(context.Background(), models.ToolCall{Name: "exec", Args: map[string]any{"command": "echo hi"}})
		if err != nil {
			t.Error(err)
		}
	}()

	var id string
	for i := 0; i < 50; i++ {
		pending := g.ListPending()
		if len(pending) == 1 {
			id = pending[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("expected a pending request to appear")
	}
	if !g.Approve(id, "looks fine") {
		t.Fatal("expected Approve to resolve the pending request")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not return after Approve")
	}
	if !approved {
		t.Fatal("expected approved result")
	}
}

func TestGateTimesOutToDenied(t *testing.T) {
	policy := DefaultPolicy()
	policy.DecisionWindow = 30 * time.Millisecond
	g := New(policy, nil)

	approved, reason, err := g.RequestApproval(context.Background(), models.ToolCall{Name: "exec", Args: map[string]any{"command": "echo hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if approved {
		t.Fatal("expected denial on timeout")
	}
	if reason != "approval timed out" {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestGateSessionCounterCapsAutoApproval(t *testing.T) {
	policy := DefaultPolicy()
	policy.Mode = models.PolicyAutoEdit
	policy.AutoApproveLimit = map[models.RiskLevel]int{models.RiskLow: 1}
	policy.DecisionWindow = 20 * time.Millisecond
	g := New(policy, nil)

	ctx := WithSession(context.Background(), "sess-1")
	call := models.ToolCall{Name: "write_file", Args: map[string]any{"path": "a.txt"}}

	approved, _, err := g.RequestApproval(ctx, call)
	if err != nil || !approved {
		t.Fatalf("expected first call auto-approved, got approved=%v err=%v", approved, err)
	}

	approved, _, err = g.RequestApproval(ctx, call)
	if err != nil {
		t.Fatal(err)
	}
	if approved {
		t.Fatal("expected second call to exceed the session cap and fall through to the wait path, denying on timeout")
	}
}
