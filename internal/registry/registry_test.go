package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

type testTool struct {
	name     string
	schema   json.RawMessage
	execFunc func(ctx context.Context, args map[string]any) (models.ToolResult, error)
}

func (t *testTool) Name() string                      { return t.name }
func (t *testTool) Description() string                { return "test tool" }
func (t *testTool) ParameterSchema() json.RawMessage    { return t.schema }
func (t *testTool) Validate(args map[string]any) error { return nil }
func (t *testTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	return t.execFunc(ctx, args)
}

type recordingBus struct {
	events []models.Event
}

func (b *recordingBus) Publish(e models.Event) {
	b.events = append(b.events, e)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New(nil, nil)
	tool := &testTool{name: "echo", execFunc: func(ctx context.Context, args map[string]any) (models.ToolResult, error) {
		return models.Ok("hi", 0), nil
	}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&testTool{name: "echo"}); err != nil {
		t.Fatalf("unexpected error on duplicate register: %v", err)
	}
	if len(r.List()) != 1 {
		t.Fatalf("expected registry to hold exactly one tool, got %d", len(r.List()))
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := New(nil, nil)
	result := r.Execute(context.Background(), models.ToolCall{Name: "missing"})
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if result.ErrorKind != models.ErrNotFound {
		t.Fatalf("expected not_found kind, got %s", result.ErrorKind)
	}
}

func TestExecuteEmitsStartAndCompleteEvents(t *testing.T) {
	bus := &recordingBus{}
	r := New(nil, bus)
	tool := &testTool{name: "ok", execFunc: func(ctx context.Context, args map[string]any) (models.ToolResult, error) {
		return models.Ok("done", 0), nil
	}}
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}

	result := r.Execute(context.Background(), models.ToolCall{Name: "ok"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(bus.events) != 2 {
		t.Fatalf("expected TOOL_START and TOOL_COMPLETE, got %d events", len(bus.events))
	}
	if bus.events[0].Type != models.EventToolStart || bus.events[1].Type != models.EventToolComplete {
		t.Fatalf("unexpected event sequence: %+v", bus.events)
	}
}

func TestExecuteDeniedByApprover(t *testing.T) {
	denier := approverFunc(func(ctx context.Context, call models.ToolCall) (bool, string, error) {
		return false, "too risky", nil
	})
	r := New(denier, nil)
	tool := &testTool{name: "danger", execFunc: func(ctx context.Context, args map[string]any) (models.ToolResult, error) {
		t.Fatal("execute should not run when approval is denied")
		return models.ToolResult{}, nil
	}}
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}
	result := r.Execute(context.Background(), models.ToolCall{Name: "danger"})
	if result.Success || result.ErrorKind != models.ErrDenied {
		t.Fatalf("expected denied result, got %+v", result)
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := New(nil, nil)
	tool := &testTool{name: "slow", execFunc: func(ctx context.Context, args map[string]any) (models.ToolResult, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return models.Ok("too late", 0), nil
		case <-ctx.Done():
			return models.ToolResult{}, ctx.Err()
		}
	}}
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}
	result := r.Execute(context.Background(), models.ToolCall{Name: "slow", TimeoutMs: 20})
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if result.ErrorKind != models.ErrTimeout {
		t.Fatalf("expected timeout kind, got %s", result.ErrorKind)
	}
}

func TestExecuteSchemaValidation(t *testing.T) {
	r := New(nil, nil)
	tool := &testTool{
		name:   "typed",
		schema: json.RawMessage(`{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`),
		execFunc: func(ctx context.Context, args map[string]any) (models.ToolResult, error) {
			return models.Ok("ok", 0), nil
		},
	}
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}
	result := r.Execute(context.Background(), models.ToolCall{Name: "typed", Args: map[string]any{}})
	if result.Success || result.ErrorKind != models.ErrInvalidArgument {
		t.Fatalf("expected invalid_argument for missing required field, got %+v", result)
	}

	ok := r.Execute(context.Background(), models.ToolCall{Name: "typed", Args: map[string]any{"path": "a.txt"}})
	if !ok.Success {
		t.Fatalf("expected success with valid args, got %+v", ok)
	}
}

type approverFunc func(ctx context.Context, call models.ToolCall) (bool, string, error)

func (f approverFunc) RequestApproval(ctx context.Context, call models.ToolCall) (bool, string, error) {
	return f(ctx, call)
}
