package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	execsafety "github.com/trioctl/trio/internal/exec"
	"github.com/trioctl/trio/pkg/models"
)

func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func jsonPayload(v any) models.ToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.Failure(models.ErrInternal, "encode result: "+err.Error(), 0)
	}
	return models.Ok(string(payload), 0)
}

func invalidArg(message string) models.ToolResult {
	return models.Failure(models.ErrInvalidArgument, message, 0)
}

func toolFailed(message string) models.ToolResult {
	return models.Failure(models.ErrToolFailure, message, 0)
}

// ExecTool runs shell commands.
type ExecTool struct {
	name    string
	manager *Manager
}

// NewExecTool creates an exec tool with the given name.
func NewExecTool(name string, manager *Manager) *ExecTool {
	if strings.TrimSpace(name) == "" {
		name = "exec"
	}
	return &ExecTool{name: name, manager: manager}
}

func (t *ExecTool) Name() string { return t.name }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace (supports optional background execution)."
}

func (t *ExecTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute."},
			"cwd": {"type": "string", "description": "Working directory (relative to workspace)."},
			"env": {"type": "object", "description": "Environment overrides (string values)."},
			"input": {"type": "string", "description": "Stdin content to pass to the command."},
			"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (0 = no timeout).", "minimum": 0},
			"background": {"type": "boolean", "description": "Run in background and return a process id."}
		},
		"required": ["command"]
	}`)
}

type execArgs struct {
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	Input          string            `json:"input"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Background     bool              `json:"background"`
}

func (t *ExecTool) Validate(args map[string]any) error {
	var in execArgs
	if err := decodeArgs(args, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Command) == "" {
		return models.NewError(models.ErrInvalidArgument, "command is required")
	}
	// The command itself runs through /bin/sh -c and is expected to carry
	// shell syntax, but cwd and env values are spliced in as plain strings —
	// reject control characters and null bytes there the same way the
	// process tool's own argv would.
	if in.Cwd != "" && !execsafety.IsSafeArgument(in.Cwd) {
		return models.NewError(models.ErrInvalidArgument, "cwd contains unsafe characters")
	}
	for k, v := range in.Env {
		if !execsafety.BareNamePattern.MatchString(k) {
			return models.NewError(models.ErrInvalidArgument, "env variable name is invalid: "+k)
		}
		if v != "" && !execsafety.IsSafeArgument(v) {
			return models.NewError(models.ErrInvalidArgument, "env value for "+k+" contains unsafe characters")
		}
	}
	return nil
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	if t.manager == nil {
		return toolFailed("exec manager unavailable"), nil
	}
	var in execArgs
	if err := decodeArgs(args, &in); err != nil {
		return invalidArg(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(in.Command)
	if command == "" {
		return invalidArg("command is required"), nil
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second

	if in.Background {
		proc, err := t.manager.startBackground(ctx, command, in.Cwd, in.Env, in.Input, timeout)
		if err != nil {
			return toolFailed(err.Error()), nil
		}
		return jsonPayload(map[string]any{
			"status":     "running",
			"process_id": proc.id,
		}), nil
	}

	result, err := t.manager.runSync(ctx, command, in.Cwd, in.Env, in.Input, timeout)
	if err != nil {
		return toolFailed(err.Error()), nil
	}
	return jsonPayload(result), nil
}

// ProcessTool inspects and manages background exec processes.
type ProcessTool struct {
	manager *Manager
}

// NewProcessTool creates a process tool.
func NewProcessTool(manager *Manager) *ProcessTool {
	return &ProcessTool{manager: manager}
}

func (t *ProcessTool) Name() string { return "process" }

func (t *ProcessTool) Description() string {
	return "Manage background exec processes (list, status, log, write, kill, remove)."
}

func (t *ProcessTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "description": "Action: list, status, log, write, kill, remove."},
			"process_id": {"type": "string", "description": "Process id for actions that target a process."},
			"input": {"type": "string", "description": "Input for write action."}
		},
		"required": ["action"]
	}`)
}

type processArgs struct {
	Action    string `json:"action"`
	ProcessID string `json:"process_id"`
	Input     string `json:"input"`
}

func (t *ProcessTool) Validate(args map[string]any) error {
	var in processArgs
	if err := decodeArgs(args, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return models.NewError(models.ErrInvalidArgument, "action is required")
	}
	return nil
}

func (t *ProcessTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	_ = ctx
	if t.manager == nil {
		return toolFailed("process manager unavailable"), nil
	}
	var in processArgs
	if err := decodeArgs(args, &in); err != nil {
		return invalidArg(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(in.Action))
	if action == "" {
		return invalidArg("action is required"), nil
	}

	switch action {
	case "list":
		return jsonPayload(map[string]any{"processes": t.manager.list()}), nil
	case "status", "log", "write", "kill", "remove":
		if strings.TrimSpace(in.ProcessID) == "" {
			return invalidArg("process_id is required"), nil
		}
		proc, ok := t.manager.get(strings.TrimSpace(in.ProcessID))
		if !ok {
			return invalidArg("process not found"), nil
		}
		switch action {
		case "status":
			return jsonPayload(proc.info()), nil
		case "log":
			return jsonPayload(map[string]any{
				"stdout": proc.stdout.String(),
				"stderr": proc.stderr.String(),
				"status": proc.status(),
			}), nil
		case "write":
			if proc.stdin == nil {
				return toolFailed("process stdin unavailable"), nil
			}
			if in.Input == "" {
				return invalidArg("input is required"), nil
			}
			if _, err := proc.stdin.Write([]byte(in.Input)); err != nil {
				return toolFailed(fmt.Sprintf("write stdin: %v", err)), nil
			}
			return jsonPayload(map[string]any{"status": "written"}), nil
		case "kill":
			if proc.cmd.Process == nil {
				return toolFailed("process not running"), nil
			}
			if err := proc.cmd.Process.Kill(); err != nil {
				return toolFailed(fmt.Sprintf("kill process: %v", err)), nil
			}
			return jsonPayload(map[string]any{"status": "killed"}), nil
		case "remove":
			if proc.status() == "running" {
				return toolFailed("process still running"), nil
			}
			if !t.manager.remove(proc.id) {
				return toolFailed("remove failed"), nil
			}
			return jsonPayload(map[string]any{"status": "removed"}), nil
		}
	}
	return invalidArg("unsupported action"), nil
}
