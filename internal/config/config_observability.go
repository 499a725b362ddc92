package config

import (
	"time"

	"github.com/trioctl/trio/internal/observability"
)

type LoggingConfig struct {
	Level     string   `yaml:"level"`
	Format    string   `yaml:"format"`
	AddSource bool     `yaml:"add_source"`
	Redact    []string `yaml:"redact"`
}

// EffectiveLogConfig converts the YAML-facing LoggingConfig into the
// concrete observability.LogConfig the logger is constructed with.
func EffectiveLogConfig(cfg LoggingConfig) observability.LogConfig {
	return observability.LogConfig{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactPatterns: append([]string(nil), cfg.Redact...),
	}
}

// ObservabilityConfig configures tracing and other observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`

	// TimelineEventCap bounds the in-memory turn-timeline event store
	// (observability.MemoryEventStore) backing the `trio timeline` command.
	// Zero falls back to the store's own default.
	TimelineEventCap int `yaml:"timeline_event_cap"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// EffectiveTraceConfig converts the YAML-facing TracingConfig into the
// concrete observability.TraceConfig the tracer is constructed with.
// Returns a config with an empty Endpoint (no-op tracer) when disabled.
func EffectiveTraceConfig(cfg TracingConfig) observability.TraceConfig {
	trace := observability.TraceConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		SamplingRate:   cfg.SamplingRate,
		Attributes:     cfg.Attributes,
		EnableInsecure: cfg.Insecure,
	}
	if cfg.Enabled {
		trace.Endpoint = cfg.Endpoint
	}
	return trace
}

// SecurityConfig configures security features.
type SecurityConfig struct {
	Posture SecurityPostureConfig `yaml:"posture"`
}

// SecurityPostureConfig controls continuous security posture auditing:
// periodic checks that the permission mode (C4), approval allowlists (C2),
// and filesystem access granted to tools (C12) have not drifted from what
// the configured security mode (§4.13) expects.
type SecurityPostureConfig struct {
	Enabled            bool                   `yaml:"enabled"`
	Interval           time.Duration          `yaml:"interval"`
	IncludeFilesystem  *bool                  `yaml:"include_filesystem"`
	IncludeConfig      *bool                  `yaml:"include_config"`
	CheckSymlinks      *bool                  `yaml:"check_symlinks"`
	AllowGroupReadable bool                   `yaml:"allow_group_readable"`
	EmitEvents         *bool                  `yaml:"emit_events"`
	AutoRemediation    SecurityRemediationCfg `yaml:"auto_remediation"`
}

// SecurityRemediationCfg configures posture remediation behavior.
type SecurityRemediationCfg struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // lockdown | warn_only
}
