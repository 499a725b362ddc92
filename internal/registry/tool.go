// Package registry implements the Tool Registry (C1): it holds named tool
// handles, validates arguments against a declared JSON Schema, and runs
// tools under a composite cancellation source while reporting outcomes to
// the Approval Gate and Event Bus it is constructed with.
package registry

import (
	"context"
	"encoding/json"

	"github.com/trioctl/trio/pkg/models"
)

// Tool parameter limits, carried forward from the teacher's
// resource-exhaustion guards.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)

// Tool is the contract any tool implementation must satisfy: a name, a
// description, a JSON Schema describing its parameters, a pure Validate
// that rejects malformed calls before Execute ever runs, and a cancellable
// Execute.
type Tool interface {
	Name() string
	Description() string
	// ParameterSchema returns a JSON Schema document (draft 2020-12 subset)
	// describing the shape of Args accepted by Execute.
	ParameterSchema() json.RawMessage
	// Validate performs tool-specific checks beyond what the JSON Schema
	// can express (e.g. "path must be relative"). It must be pure: no I/O,
	// no side effects.
	Validate(args map[string]any) error
	// Execute runs the tool. It must be cancellable at its suspension
	// points and must never panic on malformed input — Validate is always
	// called first by the Registry.
	Execute(ctx context.Context, args map[string]any) (models.ToolResult, error)
}

// Approver is the narrow view of the Approval Gate (C2) the Registry needs.
// Defined here rather than imported from internal/approval so the two
// packages do not need to know about each other's concrete types.
type Approver interface {
	RequestApproval(ctx context.Context, call models.ToolCall) (approved bool, reason string, err error)
}

// Publisher is the narrow view of the Event Bus (C3) the Registry needs.
type Publisher interface {
	Publish(event models.Event)
}
