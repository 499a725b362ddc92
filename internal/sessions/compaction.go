package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

// CompactionStrategy defines how a session's ephemeral state is reduced
// when it outgrows its share of the turn's token budget.
type CompactionStrategy string

const (
	// StrategyTruncate drops the oldest turns, keeping only the tail.
	StrategyTruncate CompactionStrategy = "truncate"

	// StrategySummarize replaces the oldest turns with a generated summary.
	StrategySummarize CompactionStrategy = "summarize"

	// StrategyHybrid summarizes the oldest turns and keeps the most recent
	// ones verbatim.
	StrategyHybrid CompactionStrategy = "hybrid"
)

// turnSeparator delimits turns within Snapshot.EphemeralState. The Memory /
// Context Scoper (C10) writes ephemeral state in this format so compaction
// can reason about whole turns rather than raw characters.
const turnSeparator = "\n---\n"

// CompactionConfig configures session compaction behavior.
type CompactionConfig struct {
	Enabled       bool               `json:"enabled" yaml:"enabled"`
	Strategy      CompactionStrategy `json:"strategy" yaml:"strategy"`
	KeepLastTurns int                `json:"keep_last_turns" yaml:"keep_last_turns"`
	SummaryPrompt string             `json:"summary_prompt" yaml:"summary_prompt"`
}

// DefaultCompactionConfig returns a sensible default compaction configuration.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Enabled:       true,
		Strategy:      StrategyHybrid,
		KeepLastTurns: 6,
		SummaryPrompt: `Summarize the following turns concisely, preserving key decisions, facts, and pending work:

{{turns}}

Summary:`,
	}
}

// Summarizer generates a summary of the turns being evicted from ephemeral
// state.
type Summarizer interface {
	Summarize(ctx context.Context, turns []string, prompt string) (string, error)
}

// Compactor keeps a session's Snapshot.EphemeralState within its token
// budget share, per §4.11: when ephemeral turn history exceeds budget,
// older turns are summarized (or truncated) before the next Snapshot is
// written, so EphemeralState itself never exceeds the budget it reports.
type Compactor struct {
	config     CompactionConfig
	summarizer Summarizer
}

// NewCompactor creates a new session compactor.
func NewCompactor(config CompactionConfig, summarizer Summarizer) *Compactor {
	return &Compactor{config: config, summarizer: summarizer}
}

// CompactionResult reports what a Compact call did.
type CompactionResult struct {
	SessionID        string
	TurnsBefore       int
	TurnsAfter        int
	TokensBefore      int
	TokensAfter       int
	Summary          string
	CompactedAt      time.Time
	Strategy         CompactionStrategy
}

// ShouldCompact reports whether the ephemeral state's approximate token
// count exceeds the input budget's ephemeral share.
func (c *Compactor) ShouldCompact(ephemeralState string, budget models.InputBudget) bool {
	if !c.config.Enabled {
		return false
	}
	if budget.Ephemeral <= 0 {
		return false
	}
	return models.CharsToTokens(len(ephemeralState)) > budget.Ephemeral
}

// Compact reduces ephemeralState to fit within budget.Ephemeral, returning
// the new state and a report of what changed. The returned state is never
// larger (in approximate tokens) than budget.Ephemeral once summarization
// or truncation has run, satisfying the §4.11 invariant.
func (c *Compactor) Compact(ctx context.Context, sessionID string, ephemeralState string, budget models.InputBudget) (string, *CompactionResult, error) {
	turns := splitTurns(ephemeralState)
	result := &CompactionResult{
		SessionID:    sessionID,
		TurnsBefore:  len(turns),
		TokensBefore: models.CharsToTokens(len(ephemeralState)),
		CompactedAt:  time.Now(),
		Strategy:     c.config.Strategy,
	}

	var compacted []string
	var err error

	switch c.config.Strategy {
	case StrategyTruncate:
		compacted = c.truncate(turns)
	case StrategySummarize:
		compacted, result.Summary, err = c.summarize(ctx, turns, len(turns))
	case StrategyHybrid:
		compacted, result.Summary, err = c.hybrid(ctx, turns)
	default:
		return ephemeralState, nil, fmt.Errorf("unknown compaction strategy: %s", c.config.Strategy)
	}
	if err != nil {
		return ephemeralState, nil, err
	}

	newState := strings.Join(compacted, turnSeparator)
	// Fall back to a hard truncation if summarization still overshoots the
	// budget (e.g. the summarizer itself produced verbose output).
	if budget.Ephemeral > 0 && models.CharsToTokens(len(newState)) > budget.Ephemeral {
		maxChars := budget.Ephemeral * 4
		if maxChars < len(newState) {
			newState = newState[len(newState)-maxChars:]
		}
	}

	result.TurnsAfter = len(compacted)
	result.TokensAfter = models.CharsToTokens(len(newState))
	return newState, result, nil
}

func (c *Compactor) truncate(turns []string) []string {
	keep := c.config.KeepLastTurns
	if keep <= 0 || keep >= len(turns) {
		return turns
	}
	return turns[len(turns)-keep:]
}

func (c *Compactor) summarize(ctx context.Context, turns []string, evictCount int) ([]string, string, error) {
	if c.summarizer == nil || evictCount == 0 {
		return turns, "", nil
	}
	if evictCount > len(turns) {
		evictCount = len(turns)
	}
	toSummarize := turns[:evictCount]
	kept := turns[evictCount:]

	summary, err := c.summarizer.Summarize(ctx, toSummarize, c.config.SummaryPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("summarization failed: %w", err)
	}

	out := make([]string, 0, len(kept)+1)
	if summary != "" {
		out = append(out, "[summary] "+summary)
	}
	out = append(out, kept...)
	return out, summary, nil
}

func (c *Compactor) hybrid(ctx context.Context, turns []string) ([]string, string, error) {
	keep := c.config.KeepLastTurns
	if keep <= 0 {
		keep = 1
	}
	if keep >= len(turns) {
		return turns, "", nil
	}
	return c.summarize(ctx, turns, len(turns)-keep)
}

func splitTurns(ephemeralState string) []string {
	if strings.TrimSpace(ephemeralState) == "" {
		return nil
	}
	return strings.Split(ephemeralState, turnSeparator)
}

// AppendTurn appends a new turn to ephemeral state in the format the
// Compactor expects.
func AppendTurn(ephemeralState, turn string) string {
	if ephemeralState == "" {
		return turn
	}
	return ephemeralState + turnSeparator + turn
}
