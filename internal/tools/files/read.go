package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/trioctl/trio/pkg/models"
)

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

// ReadTool implements a safe file reader, satisfying registry.Tool.
type ReadTool struct {
	resolver   Resolver
	maxReadLen int
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	return &ReadTool{
		resolver:   Resolver{Root: cfg.Workspace},
		maxReadLen: limit,
	}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read a file from the workspace with optional offset and byte limit." }

func (t *ReadTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file (relative to workspace)."},
			"offset": {"type": "integer", "description": "Byte offset to start reading from.", "minimum": 0},
			"max_bytes": {"type": "integer", "description": "Maximum bytes to read.", "minimum": 0}
		},
		"required": ["path"]
	}`)
}

type readArgs struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"max_bytes"`
}

func (t *ReadTool) Validate(args map[string]any) error {
	var in readArgs
	if err := decodeArgs(args, &in); err != nil {
		return err
	}
	if in.Path == "" {
		return models.NewError(models.ErrInvalidArgument, "path is required")
	}
	if in.Offset < 0 {
		return models.NewError(models.ErrInvalidArgument, "offset must be >= 0")
	}
	return nil
}

// Execute reads a file with safety limits.
func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	var in readArgs
	if err := decodeArgs(args, &in); err != nil {
		return invalidArg(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return invalidArg(err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return toolFailed(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return toolFailed(fmt.Sprintf("stat file: %v", err)), nil
	}

	if in.Offset > 0 {
		if _, err := file.Seek(in.Offset, io.SeekStart); err != nil {
			return toolFailed(fmt.Sprintf("seek file: %v", err)), nil
		}
	}

	limit := t.maxReadLen
	if in.MaxBytes > 0 && in.MaxBytes < limit {
		limit = in.MaxBytes
	}

	remaining := int64(limit)
	if size := info.Size(); size > 0 {
		remaining = size - in.Offset
		if remaining < 0 {
			remaining = 0
		}
		if remaining > int64(limit) {
			remaining = int64(limit)
		}
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return toolFailed(fmt.Sprintf("read file: %v", err)), nil
	}

	truncated := info.Size() > 0 && in.Offset+int64(len(buf)) < info.Size()

	return jsonPayload(map[string]any{
		"path":      in.Path,
		"content":   string(buf),
		"offset":    in.Offset,
		"bytes":     len(buf),
		"truncated": truncated,
	}), nil
}
