package files

import (
	"encoding/json"

	"github.com/trioctl/trio/pkg/models"
)

// decodeArgs round-trips a tool call's loosely-typed args map into a typed
// struct via JSON, the same normalization the registry itself uses when
// validating against a declared schema.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// jsonPayload marshals v into a successful ToolResult's Output.
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
