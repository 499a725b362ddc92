// Package memory provides the Context Scoper: it merges ephemeral turn
// history, similarity-retrieved chunks, and pinned knowledge facts into a
// single token-budgeted context for a turn, and narrows that context into
// an immutable scope for a mini-agent.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/trioctl/trio/internal/memory/backend"
	"github.com/trioctl/trio/internal/memory/backend/pgvector"
	"github.com/trioctl/trio/internal/memory/backend/sqlitevec"
	"github.com/trioctl/trio/internal/memory/embeddings"
	"github.com/trioctl/trio/pkg/models"
)

// Retriever is the narrow interface the Scoper depends on for
// similarity-scored chunk retrieval, keeping the concrete vector backend
// out of the Orchestrator and Planner.
type Retriever interface {
	Retrieve(ctx context.Context, scope models.MemoryScope, scopeID, query string, topK int) ([]*models.SearchResult, error)
}

// Manager coordinates memory storage and retrieval.
type Manager struct {
	backend  backend.Backend
	embedder embeddings.Provider
	config   *Config
	cache    *embeddingCache
	mu       sync.RWMutex
}

// Config contains configuration for the memory manager.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Backend   string `yaml:"backend"`   // sqlite-vec, pgvector
	Dimension int    `yaml:"dimension"` // Must match embedding model

	// Backend-specific config
	SQLiteVec SQLiteVecConfig `yaml:"sqlite_vec"`
	Pgvector  PgvectorConfig  `yaml:"pgvector"`

	// Embedding provider config, descriptive only: the Provider itself is
	// constructed by the caller and passed to NewManager, since this
	// package owns coordination, not provider selection.
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Indexing behavior
	Indexing IndexingConfig `yaml:"indexing"`

	// Search defaults
	Search SearchConfig `yaml:"search"`
}

// SQLiteVecConfig contains sqlite-vec specific configuration.
type SQLiteVecConfig struct {
	Path string `yaml:"path"` // Path to database file
}

// PgvectorConfig contains pgvector specific configuration.
type PgvectorConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// DB is an existing database connection to reuse (set programmatically, not via config).
	DB *sql.DB `yaml:"-"`

	// RunMigrations controls whether to run migrations on startup.
	RunMigrations bool `yaml:"run_migrations"`
}

// EmbeddingsConfig contains embedding provider configuration, kept here for
// Stats reporting; the provider itself is injected into NewManager.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// IndexingConfig contains configuration for automatic indexing.
type IndexingConfig struct {
	MinContentLength int `yaml:"min_content_length"`
	BatchSize        int `yaml:"batch_size"`
}

// SearchConfig contains default search parameters.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	DefaultThreshold float32 `yaml:"default_threshold"`
	DefaultScope     string  `yaml:"default_scope"`
}

// NewManager creates a new memory manager with the given configuration and
// a pre-constructed embedding provider. The provider is accepted rather
// than built from a hardcoded set of vendors, so adding a provider never
// requires touching this package.
func NewManager(cfg *Config, emb embeddings.Provider) (*Manager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if emb == nil {
		return nil, fmt.Errorf("embeddings provider is required")
	}

	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 100
	}
	if cfg.Indexing.MinContentLength == 0 {
		cfg.Indexing.MinContentLength = 10
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.7
	}
	if cfg.Search.DefaultScope == "" {
		cfg.Search.DefaultScope = "session"
	}

	var b backend.Backend
	var err error
	switch cfg.Backend {
	case "sqlite-vec", "sqlite", "":
		b, err = sqlitevec.New(sqlitevec.Config{
			Path:      cfg.SQLiteVec.Path,
			Dimension: cfg.Dimension,
		})
	case "pgvector", "postgres", "postgresql":
		b, err = pgvector.New(pgvector.Config{
			DSN:           cfg.Pgvector.DSN,
			DB:            cfg.Pgvector.DB,
			Dimension:     cfg.Dimension,
			RunMigrations: cfg.Pgvector.RunMigrations,
		})
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	if emb.Dimension() != cfg.Dimension {
		b.Close()
		return nil, fmt.Errorf("dimension mismatch: config=%d, embedder=%d", cfg.Dimension, emb.Dimension())
	}

	return &Manager{
		backend:  b,
		embedder: emb,
		config:   cfg,
		cache:    newEmbeddingCache(1000),
	}, nil
}

// Index stores memory entries, generating embeddings as needed.
func (m *Manager) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var needsEmbedding []*models.MemoryEntry
	for _, entry := range entries {
		if len(entry.Embedding) == 0 && len(entry.Content) >= m.config.Indexing.MinContentLength {
			needsEmbedding = append(needsEmbedding, entry)
		}
	}

	batchSize := m.embedder.MaxBatchSize()
	if m.config.Indexing.BatchSize > 0 && m.config.Indexing.BatchSize < batchSize {
		batchSize = m.config.Indexing.BatchSize
	}
	if batchSize <= 0 {
		batchSize = len(needsEmbedding)
	}

	for i := 0; i < len(needsEmbedding); i += batchSize {
		end := i + batchSize
		if end > len(needsEmbedding) {
			end = len(needsEmbedding)
		}
		batch := needsEmbedding[i:end]

		texts := make([]string, len(batch))
		for j, entry := range batch {
			texts[j] = entry.Content
		}

		embeds, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}

		for j, entry := range batch {
			entry.Embedding = embeds[j]
		}
	}

	return m.backend.Index(ctx, entries)
}

// Search finds relevant memories using semantic similarity.
func (m *Manager) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	if req.Limit == 0 {
		req.Limit = m.config.Search.DefaultLimit
	}
	if req.Threshold == 0 {
		req.Threshold = m.config.Search.DefaultThreshold
	}
	if req.Scope == "" {
		req.Scope = models.MemoryScope(m.config.Search.DefaultScope)
	}

	queryEmbed, err := m.embed(ctx, string(req.Scope), req.Query)
	if err != nil {
		return nil, err
	}

	results, err := m.backend.Search(ctx, queryEmbed, &backend.SearchOptions{
		Scope:     req.Scope,
		ScopeID:   req.ScopeID,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Filters:   req.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return &models.SearchResponse{
		Results:    results,
		TotalCount: len(results),
		QueryTime:  time.Since(start),
	}, nil
}

// Retrieve implements Retriever: the top-K chunks for a query within a
// scope, scored by similarity.
func (m *Manager) Retrieve(ctx context.Context, scope models.MemoryScope, scopeID, query string, topK int) ([]*models.SearchResult, error) {
	resp, err := m.Search(ctx, &models.SearchRequest{
		Query:   query,
		Scope:   scope,
		ScopeID: scopeID,
		Limit:   topK,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// embed resolves an embedding for cacheKeyPrefix:text, consulting the
// query-embedding cache first.
func (m *Manager) embed(ctx context.Context, cacheKeyPrefix, text string) ([]float32, error) {
	cacheKey := fmt.Sprintf("%s:%s", cacheKeyPrefix, text)
	if cached, ok := m.cache.get(cacheKey); ok {
		return cached, nil
	}
	embed, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	m.cache.set(cacheKey, embed)
	return embed, nil
}

// Delete removes memory entries by ID.
func (m *Manager) Delete(ctx context.Context, ids []string) error {
	return m.backend.Delete(ctx, ids)
}

// Count returns the number of memories in the given scope.
func (m *Manager) Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error) {
	return m.backend.Count(ctx, scope, scopeID)
}

// Compact optimizes the storage backend.
func (m *Manager) Compact(ctx context.Context) error {
	return m.backend.Compact(ctx)
}

// Stats returns statistics about the memory store.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	globalCount, err := m.backend.Count(ctx, models.ScopeGlobal, "")
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalEntries:      globalCount,
		Backend:           m.config.Backend,
		EmbeddingProvider: m.embedder.Name(),
		EmbeddingModel:    m.config.Embeddings.Model,
		Dimension:         m.config.Dimension,
	}, nil
}

// Close releases all resources.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// Stats contains memory store statistics.
type Stats struct {
	TotalEntries      int64  `json:"total_entries"`
	Backend           string `json:"backend"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	Dimension         int    `json:"dimension"`
}

// embeddingCache is a simple LRU cache for query embeddings.
type embeddingCache struct {
	mu       sync.RWMutex
	items    map[string][]float32
	order    []string
	capacity int
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{
		items:    make(map[string][]float32),
		capacity: capacity,
	}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
	c.items[key] = value
}
