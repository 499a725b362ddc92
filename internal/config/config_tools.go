package config

import "time"

// ToolsConfig configures the tool invocation layer (C12): execution
// behavior, the approval policy gating risky calls, and the two
// network-backed tools (web search, memory search).
type ToolsConfig struct {
	Execution    ToolExecutionConfig `yaml:"execution"`
	WebSearch    WebSearchConfig     `yaml:"websearch"`
	MemorySearch MemorySearchConfig  `yaml:"memory_search"`
	Jobs         ToolJobsConfig      `yaml:"jobs"`
}

// ToolExecutionConfig controls runtime tool execution behavior: how many
// tool calls an Executor step may issue, how many run concurrently, and
// the retry/backoff applied to a failed call.
type ToolExecutionConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Parallelism   int           `yaml:"parallelism"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	MaxToolCalls  int           `yaml:"max_tool_calls"`

	Approval    ApprovalConfig        `yaml:"approval"`
	ResultGuard ToolResultGuardConfig `yaml:"result_guard"`
}

// ApprovalConfig controls tool approval behavior (C2/C4): the allow/deny
// lists and fallback decision consulted before an elevated tool call is
// surfaced to the Planner's approval gate.
type ApprovalConfig struct {
	// Profile is a pre-configured tool access level.
	// Valid profiles: "coding", "readonly", "full", "minimal".
	Profile string `yaml:"profile"`

	// Allowlist contains tools that are always allowed (no approval needed).
	// Supports patterns like "read_*", "*", and group references like "group:fs".
	Allowlist []string `yaml:"allowlist"`

	// Denylist contains tools that are always denied.
	Denylist []string `yaml:"denylist"`

	// SafeBins are stdin-only tools that are safe to auto-allow.
	SafeBins []string `yaml:"safe_bins"`

	// SkillAllowlist auto-allows tools defined by enabled skills.
	SkillAllowlist *bool `yaml:"skill_allowlist"`

	// AskFallback queues approval when no approver is attached instead of denying.
	AskFallback *bool `yaml:"ask_fallback"`

	// DefaultDecision when no rule matches: "allowed", "denied", or "pending".
	DefaultDecision string `yaml:"default_decision"`

	// RequestTTL is how long a pending approval request remains valid.
	RequestTTL time.Duration `yaml:"request_ttl"`
}

// ToolResultGuardConfig controls redaction of tool results before they are
// persisted to an execution log or included in a context snapshot.
type ToolResultGuardConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxChars        int      `yaml:"max_chars"`
	Denylist        []string `yaml:"denylist"`
	RedactPatterns  []string `yaml:"redact_patterns"`
	RedactionText   string   `yaml:"redaction_text"`
	TruncateSuffix  string   `yaml:"truncate_suffix"`
	SanitizeSecrets bool     `yaml:"sanitize_secrets"`
}

// ToolJobsConfig controls retention of async tool job state.
type ToolJobsConfig struct {
	// Retention is how long to keep completed jobs. Default: 24h.
	Retention time.Duration `yaml:"retention"`
	// PruneInterval is how often to prune old jobs. Default: 1h.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// WebSearchConfig is translated into the internal/tools/websearch package's
// own Config at wiring time.
type WebSearchConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider"`
	URL         string `yaml:"url"`
	BraveAPIKey string `yaml:"brave_api_key"`
}

// MemorySearchConfig is translated into the internal/tools/memorysearch
// package's own Config at wiring time.
type MemorySearchConfig struct {
	Enabled       bool                         `yaml:"enabled"`
	Directory     string                       `yaml:"directory"`
	MemoryFile    string                       `yaml:"memory_file"`
	MaxResults    int                          `yaml:"max_results"`
	MaxSnippetLen int                          `yaml:"max_snippet_len"`
	Mode          string                       `yaml:"mode"`
	Embeddings    MemorySearchEmbeddingsConfig `yaml:"embeddings"`
}

type MemorySearchEmbeddingsConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}
