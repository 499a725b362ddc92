package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trioctl/trio/internal/retry"
	"github.com/trioctl/trio/pkg/models"
)

var tracer = otel.Tracer("trioctl/trio/registry")

// DefaultTimeout is the per-call deadline used when a tool does not declare
// its own (shell tools default to 30s per §4.1; this is the registry-wide
// fallback for tools that omit a call-level timeout).
const DefaultTimeout = 30 * time.Second

// MaxTimeout caps any per-call deadline regardless of what the caller asks
// for.
const MaxTimeout = 300 * time.Second

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is the Tool Registry (C1). It is constructed once with its
// Approver and Publisher collaborators — per SPEC_FULL.md §9's
// anti-singleton design note, there is no process-wide instance.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*registered
	approver Approver
	bus      Publisher
	retry    retry.Config
}

// New constructs an empty Registry. approver and bus may be nil, in which
// case approval is always granted and events are dropped — useful for unit
// tests of tools in isolation.
func New(approver Approver, bus Publisher) *Registry {
	return &Registry{
		tools:    make(map[string]*registered),
		approver: approver,
		bus:      bus,
		retry:    retry.Config{MaxAttempts: 1},
	}
}

// WithRetry returns a copy of the Registry configured to retry transient
// tool failures per internal/retry's policy (C16). Retries happen entirely
// inside step 5 of the execution protocol and are invisible to callers.
func (r *Registry) WithRetry(cfg retry.Config) *Registry {
	clone := *r
	clone.retry = cfg
	return &clone
}

// Register adds a tool to the registry. It is idempotent by name: a second
// Register call for a name already present is rejected rather than
// replacing the existing handle, per §8's round-trip property.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return models.NewError(models.ErrInvalidArgument, "nil tool")
	}
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return models.NewError(models.ErrInvalidArgument, "invalid tool name")
	}

	var compiled *jsonschema.Schema
	if raw := tool.ParameterSchema(); len(raw) > 0 {
		c := jsonschema.NewCompiler()
		url := "mem://" + name + ".json"
		if err := c.AddResource(url, bytesReader(raw)); err != nil {
			return models.WrapError(models.ErrInvalidArgument, "invalid parameter schema for "+name, err)
		}
		schema, err := c.Compile(url)
		if err != nil {
			return models.WrapError(models.ErrInvalidArgument, "invalid parameter schema for "+name, err)
		}
		compiled = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return nil // idempotent: registry still holds exactly one entry
	}
	r.tools[name] = &registered{tool: tool, schema: compiled}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// List returns every registered tool.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg.tool)
	}
	return out
}

// Execute runs the full execution protocol of §4.1 for a single ToolCall:
// resolve, validate, approve, emit TOOL_START, run under a composite
// cancellation source, emit TOOL_COMPLETE/TOOL_ERROR.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	ctx, span := tracer.Start(ctx, "registry.Execute",
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		))
	defer span.End()

	if len(call.Name) > MaxToolNameLength {
		return models.Failure(models.ErrInvalidArgument, "tool name exceeds maximum length", 0)
	}

	r.mu.RLock()
	reg, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		span.RecordError(fmt.Errorf("unknown tool: %s", call.Name))
		return models.Failure(models.ErrNotFound, "unknown tool: "+call.Name, 0)
	}

	if reg.schema != nil {
		if err := validateAgainstSchema(reg.schema, call.Args); err != nil {
			return models.Failure(models.ErrInvalidArgument, "invalid arguments: "+err.Error(), 0)
		}
	}
	if err := reg.tool.Validate(call.Args); err != nil {
		return models.Failure(models.ErrInvalidArgument, "invalid arguments: "+err.Error(), 0)
	}

	if r.approver != nil {
		approved, reason, err := r.approver.RequestApproval(ctx, call)
		if err != nil {
			return models.Failure(models.ErrInternal, "approval error: "+err.Error(), 0)
		}
		if !approved {
			return models.Failure(models.ErrDenied, "denied: "+reason, 0)
		}
	}

	r.publish(models.NewEvent(models.EventToolStart, "").WithPayload("tool", call.Name).WithPayload("callId", call.ID))

	start := time.Now()
	result := r.runWithRetry(ctx, reg.tool, call)
	result.DurationMs = time.Since(start).Milliseconds()

	evtType := models.EventToolComplete
	if !result.Success {
		evtType = models.EventToolError
		span.RecordError(fmt.Errorf("%s", result.Error))
	}
	span.SetAttributes(attribute.Bool("tool.success", result.Success))
	r.publish(models.NewEvent(evtType, "").
		WithPayload("tool", call.Name).
		WithPayload("callId", call.ID).
		WithPayload("success", result.Success).
		WithPayload("errorKind", string(result.ErrorKind)))

	return result
}

// runWithRetry runs the tool under the composite cancellation source
// (ctx.cancel ∨ deadline timer) described in §4.1 step 5, retrying
// transient failures per the configured retry.Config. Timeout is always
// reported as models.ErrTimeout, distinct from every other failure kind.
func (r *Registry) runWithRetry(ctx context.Context, tool Tool, call models.ToolCall) models.ToolResult {
	deadline := DefaultTimeout
	if call.TimeoutMs > 0 {
		deadline = time.Duration(call.TimeoutMs) * time.Millisecond
	}
	if deadline > MaxTimeout {
		deadline = MaxTimeout
	}

	cfg := r.retry
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var last models.ToolResult
	value, res := retry.DoWithValue(ctx, cfg, func() (models.ToolResult, error) {
		result := r.runOnce(ctx, tool, call, deadline)
		last = result
		if result.Success {
			return result, nil
		}
		if result.ErrorKind == models.ErrTimeout || result.ErrorKind == models.ErrCancelled {
			return result, retry.Permanent(fmt.Errorf("%s", result.Error))
		}
		return result, fmt.Errorf("%s", result.Error)
	})
	if res.Err == nil {
		return value
	}
	return last
}

func (r *Registry) runOnce(ctx context.Context, tool Tool, call models.ToolCall, deadline time.Duration) models.ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		result models.ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		result, err := tool.Execute(callCtx, call.Args)
		select {
		case done <- outcome{result, err}:
		default:
		}
	}()

	select {
	case <-callCtx.Done():
		if callCtx.Err() == context.DeadlineExceeded {
			return models.Failure(models.ErrTimeout, fmt.Sprintf("tool execution timed out after %v", deadline), time.Since(start))
		}
		return models.Failure(models.ErrCancelled, "tool execution cancelled", time.Since(start))
	case o := <-done:
		if o.err != nil {
			return models.Failure(models.ErrToolFailure, o.err.Error(), time.Since(start))
		}
		if o.result.DurationMs == 0 {
			o.result.DurationMs = time.Since(start).Milliseconds()
		}
		return o.result
	}
}

func (r *Registry) publish(e models.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(e)
}

func validateAgainstSchema(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	// jsonschema validates against any-typed data produced by json.Unmarshal;
	// round-trip through JSON to normalize Go-native map values (e.g. ints).
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
