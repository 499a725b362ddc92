package memorysearch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/trioctl/trio/pkg/models"
)

// MemoryGetTool reads snippets from memory files.
type MemoryGetTool struct {
	config *Config
}

// NewMemoryGetTool creates a new memory_get tool.
func NewMemoryGetTool(config *Config) *MemoryGetTool {
	return &MemoryGetTool{config: config}
}

func (t *MemoryGetTool) Name() string { return "memory_get" }

func (t *MemoryGetTool) Description() string {
	return "Read a snippet from MEMORY.md or memory/*.md by line range."
}

func (t *MemoryGetTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Memory file path (relative to workspace)."},
			"from": {"type": "integer", "description": "1-based start line (default: 1).", "minimum": 1},
			"lines": {"type": "integer", "description": "Number of lines to return (default: 50).", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

type memoryGetArgs struct {
	Path  string `json:"path"`
	From  int    `json:"from"`
	Lines int    `json:"lines"`
}

func decodeMemoryArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (t *MemoryGetTool) Validate(args map[string]any) error {
	var in memoryGetArgs
	if err := decodeMemoryArgs(args, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Path) == "" {
		return models.NewError(models.ErrInvalidArgument, "path is required")
	}
	return nil
}

// Execute reads the requested memory snippet.
func (t *MemoryGetTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	_ = ctx
	var in memoryGetArgs
	if err := decodeMemoryArgs(args, &in); err != nil {
		return models.Failure(models.ErrInvalidArgument, fmt.Sprintf("invalid parameters: %v", err), 0), nil
	}
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return models.Failure(models.ErrInvalidArgument, "path is required", 0), nil
	}
	from := in.From
	if from <= 0 {
		from = 1
	}
	lines := in.Lines
	if lines <= 0 {
		lines = 50
	}

	resolved, err := t.resolveMemoryPath(path)
	if err != nil {
		return models.Failure(models.ErrInvalidArgument, err.Error(), 0), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return models.Failure(models.ErrToolFailure, fmt.Sprintf("read file: %v", err), 0), nil
	}

	all := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	start := from - 1
	if start >= len(all) {
		return models.Ok("", 0), nil
	}
	end := start + lines
	if end > len(all) {
		end = len(all)
	}

	result := map[string]any{
		"path":  path,
		"from":  from,
		"lines": lines,
		"text":  strings.Join(all[start:end], "\n"),
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return models.Failure(models.ErrInternal, fmt.Sprintf("encode result: %v", err), 0), nil
	}

	return models.Ok(string(payload), 0), nil
}

func (t *MemoryGetTool) resolveMemoryPath(path string) (string, error) {
	if t.config == nil {
		return "", fmt.Errorf("memory search config not available")
	}
	root := strings.TrimSpace(t.config.WorkspacePath)
	if root == "" {
		root = "."
	}
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Join(root, path)
	}
	resolved, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	allowed := []string{}
	if t.config.MemoryFile != "" {
		allowed = append(allowed, filepath.Join(root, t.config.MemoryFile))
	}
	if t.config.Directory != "" {
		allowed = append(allowed, filepath.Join(root, t.config.Directory))
	}
	for _, base := range allowed {
		baseAbs, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(baseAbs, resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("path is outside memory directories")
}
