package memory

import (
	"context"
	"fmt"

	"github.com/trioctl/trio/pkg/models"
)

// ScopeRequest describes the inputs for building a turn's ScopedContext.
type ScopeRequest struct {
	ProjectID string
	SessionID string
	Query     string

	// EphemeralTurns are prior turns for this session, oldest first. The
	// most recent ones are kept, subject to budget.
	EphemeralTurns []string

	// TopK bounds how many retrieved chunks may be considered.
	TopK int

	// Limit is the hard input-token ceiling for the merged context.
	Limit int
}

// BuildScopedContext merges the last N ephemeral turns (capped by budget),
// similarity-retrieved chunks (top K, combined under budget), pinned
// knowledge facts, and the raw query into a single ScopedContext, and
// reports the per-layer token totals used to build it.
func (m *Manager) BuildScopedContext(ctx context.Context, req *ScopeRequest) (*models.ScopedContext, error) {
	if m == nil || m.backend == nil {
		return nil, fmt.Errorf("memory manager not initialized")
	}
	if req == nil {
		return nil, fmt.Errorf("scope request is required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = m.config.Search.DefaultLimit * 200 // rough fallback; callers should pass a real budget
	}

	queryTokens := models.CharsToTokens(len(req.Query))
	remaining := limit - queryTokens
	if remaining < 0 {
		remaining = 0
	}

	ephemeral, ephemeralTokens := m.capEphemeralTurns(req.EphemeralTurns, remaining)
	remaining -= ephemeralTokens

	pinned, knowledgeTokens, err := m.pinnedFacts(ctx, req.ProjectID, req.SessionID, remaining)
	if err != nil {
		return nil, err
	}
	remaining -= knowledgeTokens

	topK := req.TopK
	if topK <= 0 {
		topK = m.config.Search.DefaultLimit
	}
	retrieved, retrievedTokens, err := m.retrieveChunks(ctx, req.SessionID, req.Query, topK, remaining)
	if err != nil {
		return nil, err
	}

	return &models.ScopedContext{
		EphemeralTurns:  ephemeral,
		RetrievedChunks: retrieved,
		PinnedFacts:     pinned,
		Query:           req.Query,
		TokenUsage: models.InputBudget{
			Ephemeral: ephemeralTokens,
			Retrieved: retrievedTokens,
			Knowledge: knowledgeTokens,
			Query:     queryTokens,
			Total:     ephemeralTokens + retrievedTokens + knowledgeTokens + queryTokens,
			Limit:     limit,
		},
	}, nil
}

// capEphemeralTurns keeps the most recent turns that fit within budget,
// preserving chronological order.
func (m *Manager) capEphemeralTurns(turns []string, budget int) ([]string, int) {
	if budget <= 0 || len(turns) == 0 {
		return nil, 0
	}

	var kept []string
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := models.CharsToTokens(len(turns[i]))
		if used+cost > budget {
			break
		}
		kept = append([]string{turns[i]}, kept...)
		used += cost
	}
	return kept, used
}

// retrieveChunks fetches similarity-scored chunks for the query and keeps
// as many top results as fit under budget.
func (m *Manager) retrieveChunks(ctx context.Context, sessionID, query string, topK, budget int) ([]*models.MemoryEntry, int, error) {
	if budget <= 0 || query == "" {
		return nil, 0, nil
	}

	results, err := m.Retrieve(ctx, models.ScopeSession, sessionID, query, topK)
	if err != nil {
		return nil, 0, fmt.Errorf("retrieve chunks: %w", err)
	}

	var chunks []*models.MemoryEntry
	used := 0
	for _, r := range results {
		if r == nil || r.Entry == nil {
			continue
		}
		cost := models.CharsToTokens(len(r.Entry.Content))
		if used+cost > budget {
			continue
		}
		chunks = append(chunks, r.Entry)
		used += cost
	}
	return chunks, used, nil
}

// MiniAgentScopeRequest describes how a child agent's view should be
// narrowed from its parent's ScopedContext.
type MiniAgentScopeRequest struct {
	SessionID       string
	RelevantFiles   []string
	SearchPatterns  []string
	DomainKnowledge []string
	ExcludedContext []string
	MaxTokens       int
}

// NarrowForMiniAgent builds an immutable MiniAgentScope from a parent
// ScopedContext. The child's MaxTokens is clamped to the parent's total
// budget: a mini-agent can only narrow the inherited context, never widen
// it beyond what the parent itself was allotted.
func NarrowForMiniAgent(parent *models.ScopedContext, req *MiniAgentScopeRequest) (*models.MiniAgentScope, error) {
	if parent == nil {
		return nil, fmt.Errorf("parent scoped context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("mini-agent scope request is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > parent.TokenUsage.Total {
		maxTokens = parent.TokenUsage.Total
	}

	return &models.MiniAgentScope{
		RelevantFiles:   append([]string{}, req.RelevantFiles...),
		SearchPatterns:  append([]string{}, req.SearchPatterns...),
		DomainKnowledge: append([]string{}, req.DomainKnowledge...),
		ExcludedContext: append([]string{}, req.ExcludedContext...),
		MaxTokens:       maxTokens,
		SessionID:       req.SessionID,
		ParentContext:   parent,
	}, nil
}
