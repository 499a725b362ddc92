package models

import "testing"

func TestEventWithPayload(t *testing.T) {
	e := NewEvent(EventToolStart, "agent-1").WithPayload("tool", "exec")
	if e.Payload["tool"] != "exec" {
		t.Fatalf("expected payload to carry tool name, got %v", e.Payload)
	}
	if e.AgentID != "agent-1" {
		t.Fatalf("expected agent id to be set")
	}
}

func TestEventIsLifecycle(t *testing.T) {
	if !EventAgentSpawned.IsLifecycle() {
		t.Fatal("AGENT_SPAWNED must be a lifecycle event")
	}
	if !EventAgentCancelled.IsLifecycle() {
		t.Fatal("AGENT_CANCELLED must be a lifecycle event")
	}
	if EventProgressUpdate.IsLifecycle() {
		t.Fatal("PROGRESS_UPDATE must not be treated as a lifecycle event")
	}
}
