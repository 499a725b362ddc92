package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExecToolRunsCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr)
	args := map[string]any{"command": "echo hello"}
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: %s", result.Error)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Fatalf("expected stdout in result: %s", result.Output)
	}
}

func TestProcessToolLifecycle(t *testing.T) {
	mgr := NewManager(t.TempDir())
	execTool := NewExecTool("exec", mgr)
	procTool := NewProcessTool(mgr)

	args := map[string]any{
		"command":    "echo background",
		"background": true,
	}
	result, err := execTool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success: %s", result.Error)
	}

	var payload struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if payload.ProcessID == "" {
		t.Fatalf("expected process_id")
	}

	time.Sleep(50 * time.Millisecond)
	statusArgs := map[string]any{
		"action":     "status",
		"process_id": payload.ProcessID,
	}
	statusResult, err := procTool.Execute(context.Background(), statusArgs)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !statusResult.Success {
		t.Fatalf("expected status success: %s", statusResult.Error)
	}

	removeArgs := map[string]any{
		"action":     "remove",
		"process_id": payload.ProcessID,
	}
	removeResult, err := procTool.Execute(context.Background(), removeArgs)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removeResult.Success {
		t.Fatalf("expected remove success: %s", removeResult.Error)
	}
}

func TestExecToolRejectsUnsafeEnv(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr)

	cases := []map[string]any{
		{"command": "echo hi", "env": map[string]any{"FOO;BAR": "1"}},
		{"command": "echo hi", "env": map[string]any{"FOO": "bar\nbaz"}},
		{"command": "echo hi", "cwd": "some\x00dir"},
	}
	for _, args := range cases {
		if err := tool.Validate(args); err == nil {
			t.Fatalf("expected validation error for %v", args)
		}
	}
}

func TestExecToolRejectsEmptyCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr)
	if err := tool.Validate(map[string]any{"command": ""}); err == nil {
		t.Fatal("expected validation error for empty command")
	}
}
