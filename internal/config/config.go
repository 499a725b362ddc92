package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trioctl/trio/internal/memory"
	"github.com/trioctl/trio/pkg/models"
)

// Config is the root of a trio configuration file: the union of the
// ambient stack (server, database, logging, observability, security) and
// the domain stack (LLM providers, session defaults, the runtime
// concurrency caps consumed by C4/C5/C6/C8, the tool layer, and vector
// memory).
type Config struct {
	Version int `yaml:"version"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Runtime  RuntimeConfig  `yaml:"runtime"`

	LLM     LLMConfig     `yaml:"llm"`
	Session SessionConfig `yaml:"session"`
	Tools   ToolsConfig   `yaml:"tools"`

	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Security      SecurityConfig      `yaml:"security"`

	VectorMemory memory.Config `yaml:"vector_memory"`
}

// RuntimeConfig supplies the concurrency caps, sweep/grace timeouts, and
// security mode consumed by the Agent Spawner (C6), Executor (C8),
// Lifecycle Manager (C5), and Permission Manager (C4).
type RuntimeConfig struct {
	// MaxConcurrentAgents bounds how many Mini-agents the spawner runs at
	// once. Zero defers to the spawner's own default (1).
	MaxConcurrentAgents int64 `yaml:"max_concurrent_agents"`

	// MaxConcurrentSteps bounds the Executor's step worker pool. Zero
	// defers to the executor's own default (4).
	MaxConcurrentSteps int `yaml:"max_concurrent_steps"`

	// SweepInterval is how often the Lifecycle Manager scans for timed-out
	// or orphaned agents.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// GraceWindow is how long a spawned agent is given to report its first
	// heartbeat before the sweep considers it orphaned.
	GraceWindow time.Duration `yaml:"grace_window"`

	// ShutdownGrace is how long in-flight steps are given to wind down
	// when the runtime is asked to shut down.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// SecurityMode selects the global permission preset: "strict",
	// "default", "permissive", or "development".
	SecurityMode string `yaml:"security_mode"`
}

// EffectiveSecurityMode parses RuntimeConfig.SecurityMode into a
// models.SecurityMode, defaulting to SecurityDefault when unset.
func (c RuntimeConfig) EffectiveSecurityMode() models.SecurityMode {
	switch models.SecurityMode(strings.ToLower(strings.TrimSpace(c.SecurityMode))) {
	case models.SecurityStrict:
		return models.SecurityStrict
	case models.SecurityPermissive:
		return models.SecurityPermissive
	case models.SecurityDevelopment:
		return models.SecurityDevelopment
	default:
		return models.SecurityDefault
	}
}

var validProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"bedrock":   true,
	"ollama":    true,
}

var validApprovalProfiles = map[string]bool{
	"coding":   true,
	"readonly": true,
	"full":     true,
	"minimal":  true,
}

// Load reads a configuration file (YAML or JSON5, with $include support),
// applies defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 50051
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	if cfg.Runtime.MaxConcurrentAgents == 0 {
		cfg.Runtime.MaxConcurrentAgents = 4
	}
	if cfg.Runtime.MaxConcurrentSteps == 0 {
		cfg.Runtime.MaxConcurrentSteps = 4
	}
	if cfg.Runtime.SweepInterval == 0 {
		cfg.Runtime.SweepInterval = time.Second
	}
	if cfg.Runtime.GraceWindow == 0 {
		cfg.Runtime.GraceWindow = 30 * time.Second
	}
	if cfg.Runtime.ShutdownGrace == 0 {
		cfg.Runtime.ShutdownGrace = 10 * time.Second
	}
	if cfg.Runtime.SecurityMode == "" {
		cfg.Runtime.SecurityMode = string(models.SecurityDefault)
	}

	if cfg.Session.DefaultMode == "" {
		cfg.Session.DefaultMode = "default"
	}
	if cfg.Session.DefaultApproval == "" {
		cfg.Session.DefaultApproval = string(models.PolicyDefault)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tools.Execution.MaxIterations == 0 {
		cfg.Tools.Execution.MaxIterations = 25
	}
	if cfg.Tools.Execution.Parallelism == 0 {
		cfg.Tools.Execution.Parallelism = 4
	}
	if cfg.Tools.Execution.Timeout == 0 {
		cfg.Tools.Execution.Timeout = 2 * time.Minute
	}
	if cfg.Tools.Execution.MaxAttempts == 0 {
		cfg.Tools.Execution.MaxAttempts = 3
	}
	if cfg.Tools.Execution.RetryBackoff == 0 {
		cfg.Tools.Execution.RetryBackoff = time.Second
	}
	if cfg.Tools.Execution.Approval.DefaultDecision == "" {
		cfg.Tools.Execution.Approval.DefaultDecision = "pending"
	}
	if cfg.Tools.Execution.Approval.RequestTTL == 0 {
		cfg.Tools.Execution.Approval.RequestTTL = 2 * time.Minute
	}
	if cfg.Tools.Jobs.Retention == 0 {
		cfg.Tools.Jobs.Retention = 24 * time.Hour
	}
	if cfg.Tools.Jobs.PruneInterval == 0 {
		cfg.Tools.Jobs.PruneInterval = time.Hour
	}
	if cfg.Tools.MemorySearch.MaxResults == 0 {
		cfg.Tools.MemorySearch.MaxResults = 10
	}
	if cfg.Tools.MemorySearch.Mode == "" {
		cfg.Tools.MemorySearch.Mode = "lexical"
	}
}

// applyEnvOverrides applies a small set of high-priority environment
// variable overrides above the config file, below CLI flags, matching the
// layered precedence: CLI flag > env var > config file > built-in default.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("TRIO_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("TRIO_GRPC_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.GRPCPort = parsed
		}
	}
	if port := os.Getenv("TRIO_HTTP_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if mode := os.Getenv("TRIO_SECURITY_MODE"); mode != "" {
		cfg.Runtime.SecurityMode = mode
	}
}

func validateConfig(cfg *Config) error {
	if err := ValidateVersion(cfg.Version); err != nil {
		return err
	}

	if cfg.LLM.DefaultProvider != "" && !validProviders[strings.ToLower(cfg.LLM.DefaultProvider)] {
		return fmt.Errorf("llm.default_provider %q is not a recognized provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.DefaultProvider != "" {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("llm.default_provider %q has no matching entry under llm.providers", cfg.LLM.DefaultProvider)
		}
	}

	switch cfg.Session.DefaultMode {
	case "", "concise", "default":
	default:
		return fmt.Errorf("session.default_mode must be \"concise\" or \"default\", got %q", cfg.Session.DefaultMode)
	}

	switch models.PolicyMode(cfg.Session.DefaultApproval) {
	case models.PolicyDefault, models.PolicyAutoEdit, models.PolicyYolo:
	default:
		return fmt.Errorf("session.default_approval must be \"default\", \"autoEdit\", or \"yolo\", got %q", cfg.Session.DefaultApproval)
	}

	switch models.SecurityMode(strings.ToLower(cfg.Runtime.SecurityMode)) {
	case models.SecurityStrict, models.SecurityDefault, models.SecurityPermissive, models.SecurityDevelopment:
	default:
		return fmt.Errorf("runtime.security_mode %q is not a recognized security mode", cfg.Runtime.SecurityMode)
	}

	if cfg.Runtime.MaxConcurrentAgents < 0 {
		return fmt.Errorf("runtime.max_concurrent_agents must be >= 0")
	}
	if cfg.Runtime.MaxConcurrentSteps < 0 {
		return fmt.Errorf("runtime.max_concurrent_steps must be >= 0")
	}

	if cfg.Tools.MemorySearch.MaxResults < 0 {
		return fmt.Errorf("tools.memory_search.max_results must be >= 0")
	}
	switch cfg.Tools.MemorySearch.Mode {
	case "", "lexical", "semantic", "hybrid":
	default:
		return fmt.Errorf("tools.memory_search.mode must be \"lexical\", \"semantic\", or \"hybrid\", got %q", cfg.Tools.MemorySearch.Mode)
	}
	if cfg.Tools.MemorySearch.Embeddings.CacheTTL < 0 {
		return fmt.Errorf("tools.memory_search.embeddings.cache_ttl must be >= 0")
	}
	if cfg.Tools.MemorySearch.Embeddings.Timeout < 0 {
		return fmt.Errorf("tools.memory_search.embeddings.timeout must be >= 0")
	}

	if profile := cfg.Tools.Execution.Approval.Profile; profile != "" && !validApprovalProfiles[profile] {
		return fmt.Errorf("tools.execution.approval.profile %q is not a recognized profile", profile)
	}

	return nil
}
