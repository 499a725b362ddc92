package models

import "time"

// Priority orders mini-agent work relative to siblings at the spawner.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// MiniAgentTask describes a scoped subtask handed to the Agent Spawner.
// It has exactly one parent; mini-agents never nest beyond one level.
type MiniAgentTask struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	Prompt           string         `json:"prompt"`
	ScopedContext    ScopedContext  `json:"scopedContext"`
	AllowedTools     []string       `json:"allowedTools,omitempty"`
	RestrictedTools  []string       `json:"restrictedTools,omitempty"`
	MaxIterations    int            `json:"maxIterations"`
	TimeoutMs        int64          `json:"timeoutMs"`
	Priority         Priority       `json:"priority"`
	ParentID         string         `json:"parentId"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ScopedContext is the immutable context view handed to a mini-agent. The
// child cannot widen it; internal/memory constructs it as a value copy, not
// a live view onto the parent's memory.
type ScopedContext struct {
	RelevantFiles   []string       `json:"relevantFiles,omitempty"`
	SearchPatterns  []string       `json:"searchPatterns,omitempty"`
	DomainKnowledge []string       `json:"domainKnowledge,omitempty"`
	ExcludedContext []string       `json:"excludedContext,omitempty"`
	MaxTokens       int            `json:"maxTokens"`
	SessionID       string         `json:"sessionId"`
	ParentContext   string         `json:"parentContext,omitempty"`
}

// AgentState is a node in the Lifecycle Manager's state machine. Transitions
// out of Running are monotone: once an AgentInstance leaves Running it never
// returns to it.
type AgentState string

const (
	AgentSpawning   AgentState = "spawning"
	AgentRunning    AgentState = "running"
	AgentCompleting AgentState = "completing"
	AgentCompleted  AgentState = "completed"
	AgentFailed     AgentState = "failed"
	AgentCancelled  AgentState = "cancelled"
	AgentDestroyed  AgentState = "destroyed"
)

// AgentCounters tracks per-agent resource consumption enforced by the
// Permission Manager.
type AgentCounters struct {
	FileReads  int `json:"fileReads"`
	FileWrites int `json:"fileWrites"`
	ToolCalls  int `json:"toolCalls"`
	Tokens     int `json:"tokens"`
}

// AgentInstance is the Lifecycle Manager's live record of a spawned
// mini-agent.
type AgentInstance struct {
	ID        string         `json:"id"`
	Task      MiniAgentTask  `json:"task"`
	State     AgentState     `json:"state"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
	Counters  AgentCounters  `json:"counters"`
	LastError string         `json:"lastError,omitempty"`
}

// IsTerminal reports whether s is one of the three terminal states that
// must be followed by exactly one AgentDestroyed transition.
func (s AgentState) IsTerminal() bool {
	return s == AgentCompleted || s == AgentFailed || s == AgentCancelled
}
