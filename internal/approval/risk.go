package approval

import (
	"strings"

	"github.com/trioctl/trio/pkg/models"
)

// commandRisk maps normalized tool names to their baseline risk before any
// escalation hints are applied.
var commandRisk = map[string]models.RiskLevel{
	"read_file":    models.RiskNone,
	"search":       models.RiskNone,
	"web_search":   models.RiskNone,
	"list_files":   models.RiskNone,
	"write_file":   models.RiskLow,
	"edit_file":    models.RiskLow,
	"apply_patch":  models.RiskLow,
	"exec":         models.RiskMedium,
	"shell":        models.RiskMedium,
	"run_command":  models.RiskMedium,
	"network_call": models.RiskMedium,
}

// escalationHints are substrings which, when found in the call's arguments
// (command lines, file paths), bump the baseline risk up by one level
// regardless of which tool carried them.
var escalationHints = []string{
	"rm -rf", "rm -r", " rm ", "git push", "--force", "sudo ",
	"drop table", "drop database", "chmod 777",
	".env", "secrets", "credentials", "id_rsa", "package.json", "go.mod", "go.sum",
}

// ClassifyRisk derives a RiskLevel for a tool call from its normalized name
// and a shallow scan of its arguments for known-dangerous patterns. It has
// no side effects and no memory of prior calls — the Gate layers
// per-session bookkeeping on top.
func ClassifyRisk(call models.ToolCall) models.RiskLevel {
	name := normalizeToolName(call.Name)
	risk, ok := commandRisk[name]
	if !ok {
		risk = models.RiskLow
	}

	haystack := argString(call.Args)
	lower := strings.ToLower(haystack)
	for _, hint := range escalationHints {
		if strings.Contains(lower, hint) {
			risk = risk.Escalate()
			break
		}
	}
	return risk
}

// normalizeToolName folds known aliases onto a canonical name so risk
// classification and permission matching agree on the same vocabulary.
func normalizeToolName(name string) string {
	switch name {
	case "shell", "bash", "sh":
		return "exec"
	case "write", "file_write":
		return "write_file"
	case "read", "file_read":
		return "read_file"
	case "edit", "file_edit":
		return "edit_file"
	}
	return name
}

// argString flattens a tool call's argument map into a single string for
// substring scanning. Only string-valued leaves are considered.
func argString(args map[string]any) string {
	var b strings.Builder
	for k, v := range args {
		b.WriteString(k)
		b.WriteByte(' ')
		if s, ok := v.(string); ok {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	return b.String()
}
