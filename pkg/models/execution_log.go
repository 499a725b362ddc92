package models

import (
	"encoding/json"
	"time"
)

// ExecutionLog is a single tool-invocation record: what ran, what it was
// given, what it returned, and how long it took. The Executor appends one
// per tool call; the CLI's sessions/agents subcommands read them back.
type ExecutionLog struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId"`
	SessionID    string          `json:"sessionId,omitempty"`
	Type         string          `json:"type"`
	Tool         string          `json:"tool"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       string          `json:"output"`
	Success      bool            `json:"success"`
	DurationMs   int64           `json:"durationMs"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
