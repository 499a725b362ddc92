package models

import "time"

// ToolCall is a request to invoke a single named tool with arguments,
// a per-call timeout, and a cancellation token correlating it to the
// caller's cancellation handle.
type ToolCall struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Args        map[string]any `json:"args,omitempty"`
	TimeoutMs   int64          `json:"timeoutMs,omitempty"`
	CancelToken string         `json:"cancelToken,omitempty"`
}

// ToolResult is the uniform outcome of a ToolCall. Exactly one of Output or
// Error is meaningful depending on Success.
type ToolResult struct {
	Success    bool           `json:"success"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  ErrorKind      `json:"errorKind,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Failure builds a failed ToolResult tagged with an error taxonomy kind.
func Failure(kind ErrorKind, message string, duration time.Duration) ToolResult {
	return ToolResult{
		Success:    false,
		Error:      message,
		ErrorKind:  kind,
		DurationMs: duration.Milliseconds(),
	}
}

// Ok builds a successful ToolResult.
func Ok(output string, duration time.Duration) ToolResult {
	return ToolResult{
		Success:    true,
		Output:     output,
		DurationMs: duration.Milliseconds(),
	}
}
