package config

import "time"

// SessionConfig controls session-level defaults: the verbosity mode and
// approval policy a new session starts with (overridable per-invocation by
// the `--mode`/`--approval` CLI flags), and the context pruning behavior
// applied to its turn history.
type SessionConfig struct {
	// DefaultMode is "concise" or "default".
	DefaultMode string `yaml:"default_mode"`

	// DefaultApproval is "default", "autoEdit", or "yolo".
	DefaultApproval string `yaml:"default_approval"`

	ContextPruning ContextPruningConfig `yaml:"context_pruning"`
}

// ContextPruningConfig controls in-memory tool-result pruning for a
// session's turn history between compaction passes.
type ContextPruningConfig struct {
	Enabled              bool                    `yaml:"enabled"`
	TTL                  *time.Duration          `yaml:"ttl"`
	KeepLastAssistants   *int                    `yaml:"keep_last_assistants"`
	SoftTrimRatio        *float64                `yaml:"soft_trim_ratio"`
	HardClearRatio       *float64                `yaml:"hard_clear_ratio"`
	MinPrunableToolChars *int                    `yaml:"min_prunable_tool_chars"`
	Tools                ContextPruningToolMatch `yaml:"tools"`
	SoftTrim             ContextPruningSoftTrim  `yaml:"soft_trim"`
	HardClear            ContextPruningHardClear `yaml:"hard_clear"`
}

// ContextPruningToolMatch selects which tool results can be trimmed.
type ContextPruningToolMatch struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// ContextPruningSoftTrim configures soft trimming of tool result content.
type ContextPruningSoftTrim struct {
	MaxChars  *int `yaml:"max_chars"`
	HeadChars *int `yaml:"head_chars"`
	TailChars *int `yaml:"tail_chars"`
}

// ContextPruningHardClear configures hard clearing of tool result content.
type ContextPruningHardClear struct {
	Enabled     *bool  `yaml:"enabled"`
	Placeholder string `yaml:"placeholder"`
}
