package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
session:
  default_mode: concise
  default_approval: autoEdit
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Session.DefaultMode != "concise" {
		t.Fatalf("expected concise mode, got %q", cfg.Session.DefaultMode)
	}
}

func TestLoadValidatesSessionDefaultMode(t *testing.T) {
	path := writeConfig(t, `
session:
  default_mode: nope
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_mode") {
		t.Fatalf("expected default_mode error, got %v", err)
	}
}

func TestLoadValidatesSessionDefaultApproval(t *testing.T) {
	path := writeConfig(t, `
session:
  default_approval: nope
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_approval") {
		t.Fatalf("expected default_approval error, got %v", err)
	}
}

func TestLoadValidatesSecurityMode(t *testing.T) {
	path := writeConfig(t, `
runtime:
  security_mode: nope
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "security_mode") {
		t.Fatalf("expected security_mode error, got %v", err)
	}
}

func TestLoadDefaultsRuntimeConcurrency(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runtime.MaxConcurrentAgents != 4 {
		t.Fatalf("expected default max_concurrent_agents=4, got %d", cfg.Runtime.MaxConcurrentAgents)
	}
	if cfg.Runtime.MaxConcurrentSteps != 4 {
		t.Fatalf("expected default max_concurrent_steps=4, got %d", cfg.Runtime.MaxConcurrentSteps)
	}
	if cfg.Runtime.EffectiveSecurityMode() != "default" {
		t.Fatalf("expected default security mode, got %q", cfg.Runtime.EffectiveSecurityMode())
	}
}

func TestLoadValidatesMemorySearchMaxResults(t *testing.T) {
	path := writeConfig(t, `
tools:
  memory_search:
    enabled: true
    max_results: -5
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "memory_search.max_results") {
		t.Fatalf("expected memory_search.max_results error, got %v", err)
	}
}

func TestLoadValidatesMemorySearchMode(t *testing.T) {
	path := writeConfig(t, `
tools:
  memory_search:
    enabled: true
    mode: nope
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "memory_search.mode") {
		t.Fatalf("expected memory_search.mode error, got %v", err)
	}
}

func TestLoadValidatesMemorySearchEmbeddingsCacheTTL(t *testing.T) {
	path := writeConfig(t, `
tools:
  memory_search:
    enabled: true
    embeddings:
      cache_ttl: -5s
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "memory_search.embeddings.cache_ttl") {
		t.Fatalf("expected memory_search.embeddings.cache_ttl error, got %v", err)
	}
}

func TestLoadValidatesMemorySearchEmbeddingsTimeout(t *testing.T) {
	path := writeConfig(t, `
tools:
  memory_search:
    enabled: true
    embeddings:
      timeout: -5s
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "memory_search.embeddings.timeout") {
		t.Fatalf("expected memory_search.embeddings.timeout error, got %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TRIO_HOST", "127.0.0.1")
	t.Setenv("TRIO_GRPC_PORT", "55051")
	t.Setenv("DATABASE_URL", "postgres://override@localhost:26257/trio?sslmode=disable")

	path := writeConfig(t, `
server:
  host: 0.0.0.0
  grpc_port: 50051
database:
  url: postgres://default@localhost:26257/trio?sslmode=disable
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected host override, got %q", cfg.Server.Host)
	}
	if cfg.Server.GRPCPort != 55051 {
		t.Fatalf("expected grpc port override, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Database.URL != "postgres://override@localhost:26257/trio?sslmode=disable" {
		t.Fatalf("expected database url override, got %q", cfg.Database.URL)
	}
}

func TestLoadValidatesApprovalProfile(t *testing.T) {
	path := writeConfig(t, `
tools:
  execution:
    approval:
      profile: invalid
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "approval.profile") {
		t.Fatalf("expected approval.profile error, got %v", err)
	}
}

func TestLoadValidApprovalProfile(t *testing.T) {
	profiles := []string{"coding", "readonly", "full", "minimal"}
	for _, profile := range profiles {
		t.Run(profile, func(t *testing.T) {
			path := writeConfig(t, `
tools:
  execution:
    approval:
      profile: `+profile+`
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

			if _, err := Load(path); err != nil {
				t.Fatalf("expected config to load with profile %q, got %v", profile, err)
			}
		})
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trio.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
