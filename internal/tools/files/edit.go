package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/trioctl/trio/pkg/models"
)

// EditTool implements in-place text edits on files.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Name() string { return "edit_file" }
func (t *EditTool) Description() string {
	return "Apply one or more find/replace edits to a file in the workspace."
}

func (t *EditTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to edit (relative to workspace)."},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"old_text": {"type": "string"},
						"new_text": {"type": "string"},
						"replace_all": {"type": "boolean"}
					},
					"required": ["old_text", "new_text"]
				}
			}
		},
		"required": ["path", "edits"]
	}`)
}

type editArgs struct {
	Path  string `json:"path"`
	Edits []struct {
		OldText    string `json:"old_text"`
		NewText    string `json:"new_text"`
		ReplaceAll bool   `json:"replace_all"`
	} `json:"edits"`
}

func (t *EditTool) Validate(args map[string]any) error {
	var in editArgs
	if err := decodeArgs(args, &in); err != nil {
		return err
	}
	if in.Path == "" {
		return models.NewError(models.ErrInvalidArgument, "path is required")
	}
	if len(in.Edits) == 0 {
		return models.NewError(models.ErrInvalidArgument, "edits are required")
	}
	for _, e := range in.Edits {
		if e.OldText == "" {
			return models.NewError(models.ErrInvalidArgument, "old_text is required")
		}
	}
	return nil
}

// Execute applies edits to the file.
func (t *EditTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	var in editArgs
	if err := decodeArgs(args, &in); err != nil {
		return invalidArg(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return invalidArg(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolFailed(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	replacements := 0
	for _, edit := range in.Edits {
		if !strings.Contains(content, edit.OldText) {
			return toolFailed("old_text not found: " + edit.OldText), nil
		}
		if edit.ReplaceAll {
			count := strings.Count(content, edit.OldText)
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
			replacements += count
		} else {
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolFailed(fmt.Sprintf("write file: %v", err)), nil
	}

	return jsonPayload(map[string]any{
		"path":         in.Path,
		"replacements": replacements,
	}), nil
}
