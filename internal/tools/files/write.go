package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trioctl/trio/pkg/models"
)

// WriteTool implements file writes within the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string { return "write_file" }
func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

func (t *WriteTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to write (relative to workspace)."},
			"content": {"type": "string", "description": "File contents to write."},
			"append": {"type": "boolean", "description": "Append instead of overwrite."}
		},
		"required": ["path", "content"]
	}`)
}

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

func (t *WriteTool) Validate(args map[string]any) error {
	var in writeArgs
	if err := decodeArgs(args, &in); err != nil {
		return err
	}
	if in.Path == "" {
		return models.NewError(models.ErrInvalidArgument, "path is required")
	}
	return nil
}

// Execute writes file contents.
func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	var in writeArgs
	if err := decodeArgs(args, &in); err != nil {
		return invalidArg(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return invalidArg(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolFailed(fmt.Sprintf("create directory: %v", err)), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if in.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return toolFailed(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	n, err := file.WriteString(in.Content)
	if err != nil {
		return toolFailed(fmt.Sprintf("write file: %v", err)), nil
	}

	return jsonPayload(map[string]any{
		"path":          in.Path,
		"bytes_written": n,
		"append":        in.Append,
	}), nil
}
