package models

import "time"

// MemoryScope identifies which layer of the global → project → session
// hierarchy a memory entry or search belongs to.
type MemoryScope string

const (
	ScopeGlobal  MemoryScope = "global"
	ScopeProject MemoryScope = "project"
	ScopeSession MemoryScope = "session"
)

// ChunkKind distinguishes the semantic cache a MemoryEntry was drawn from.
// §6 names three caches read by the Memory/Context Scoper: retrieved text
// chunks, pinned knowledge facts, and git commit summaries.
type ChunkKind string

const (
	ChunkKindText      ChunkKind = "chunk"
	ChunkKindKnowledge ChunkKind = "knowledge"
	ChunkKindGitCommit ChunkKind = "git_commit"
)

// MemoryEntry is a single indexed unit of semantic memory: a chunk, a
// knowledge fact, or a git commit summary, keyed by project and scope.
type MemoryEntry struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Scope      MemoryScope `json:"scope"`
	ScopeID    string    `json:"scopeId"`
	Kind       ChunkKind `json:"kind"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SearchResult pairs a MemoryEntry with its similarity score against a query.
type SearchResult struct {
	Entry *MemoryEntry `json:"entry"`
	Score float32      `json:"score"`
}

// SearchRequest is a single similarity search against a Retriever.
type SearchRequest struct {
	Query     string         `json:"query"`
	Scope     MemoryScope    `json:"scope"`
	ScopeID   string         `json:"scopeId"`
	Limit     int            `json:"limit"`
	Threshold float32        `json:"threshold"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// SearchResponse is the outcome of a SearchRequest.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"totalCount"`
	QueryTime  time.Duration   `json:"queryTime"`
}

// ScopedContext is the immutable, per-turn context merge the Memory/Context
// Scoper hands to the Planner: ephemeral turn history, retrieved chunks,
// pinned facts, and the raw query, with per-layer token accounting. Once
// built it is never mutated; a mini-agent's view is always derived from one
// via MiniAgentScope, never a shared mutable reference to it.
type ScopedContext struct {
	EphemeralTurns  []string       `json:"ephemeralTurns"`
	RetrievedChunks []*MemoryEntry `json:"retrievedChunks"`
	PinnedFacts     []*MemoryEntry `json:"pinnedFacts"`
	Query           string         `json:"query"`
	TokenUsage      InputBudget    `json:"tokenUsage"`
}

// MiniAgentScope is the narrowed, immutable context view a mini-agent
// receives from the Spawner/Orchestrator. A child can only act within the
// boundaries it declares — it cannot widen RelevantFiles, SearchPatterns, or
// DomainKnowledge, and must honor ExcludedContext and MaxTokens.
type MiniAgentScope struct {
	RelevantFiles   []string       `json:"relevantFiles"`
	SearchPatterns  []string       `json:"searchPatterns"`
	DomainKnowledge []string       `json:"domainKnowledge"`
	ExcludedContext []string       `json:"excludedContext"`
	MaxTokens       int            `json:"maxTokens"`
	SessionID       string         `json:"sessionId"`
	ParentContext   *ScopedContext `json:"parentContext,omitempty"`
}
