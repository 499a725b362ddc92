package config

import "github.com/trioctl/trio/internal/compaction"

// EffectiveSummarizationConfig converts the YAML-facing ContextPruningConfig
// into the concrete compaction.SummarizationConfig a session's compactor is
// constructed with. contextWindow is the active model's context window in
// tokens, supplied by the LLM provider profile in use; zero keeps the
// package default.
func EffectiveSummarizationConfig(cfg ContextPruningConfig, contextWindow int) *compaction.SummarizationConfig {
	settings := compaction.DefaultSummarizationConfig()
	if contextWindow > 0 {
		settings.ContextWindow = contextWindow
	}
	return settings
}

// EffectiveHistoryShare returns the fraction of the context window the
// pruned turn history is allowed to occupy before a soft trim kicks in.
func EffectiveHistoryShare(cfg ContextPruningConfig) float64 {
	if cfg.SoftTrimRatio != nil {
		return clampFloat(*cfg.SoftTrimRatio, 0, 1)
	}
	return 0.5
}

// EffectiveHardClearRatio returns the fraction of the context window above
// which prunable tool results are replaced with a placeholder rather than
// merely trimmed.
func EffectiveHardClearRatio(cfg ContextPruningConfig) float64 {
	if cfg.HardClearRatio != nil {
		return clampFloat(*cfg.HardClearRatio, 0, 1)
	}
	return 0.8
}

// EffectiveKeepLastAssistants returns the number of trailing assistant
// turns that are never pruned, regardless of token pressure.
func EffectiveKeepLastAssistants(cfg ContextPruningConfig) int {
	if cfg.KeepLastAssistants != nil {
		return clampInt(*cfg.KeepLastAssistants, 0)
	}
	return 2
}

// PruneHistory applies the configured pruning policy to a turn history,
// keeping the most recent messages within the configured share of the
// model's context window. Returns the input untouched when pruning is
// disabled.
func PruneHistory(cfg ContextPruningConfig, messages []*compaction.Message, contextWindow int) *compaction.PruneResult {
	if !cfg.Enabled {
		return &compaction.PruneResult{Messages: messages}
	}
	if contextWindow <= 0 {
		contextWindow = compaction.DefaultContextWindow
	}
	return compaction.PruneHistoryForContextShare(messages, contextWindow, EffectiveHistoryShare(cfg), compaction.DefaultParts)
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value int, min int) int {
	if value < min {
		return min
	}
	return value
}
