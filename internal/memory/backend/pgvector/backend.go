// Package pgvector provides a vector storage backend using PostgreSQL with pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trioctl/trio/internal/memory/backend"
	"github.com/trioctl/trio/pkg/models"
	pq "github.com/lib/pq" // PostgreSQL driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Backend implements the backend.Backend interface using pgvector. It
// satisfies the Retriever SPEC_FULL.md §4.10 asks the Memory/Context Scoper
// to depend on, schema-compatible with the Session/Snapshot persistence
// layer (C15) via a shared *sql.DB.
type Backend struct {
	db        *sql.DB
	dimension int
	ownsDB    bool // whether this backend owns the db connection and should close it
}

// Config contains configuration for the pgvector backend.
type Config struct {
	// DSN is the PostgreSQL connection string.
	// If empty, DB must be provided.
	DSN string

	// DB is an existing database connection to reuse.
	// If provided, DSN is ignored and the backend will not close the connection.
	DB *sql.DB

	// Dimension is the embedding dimension (e.g., 1536 for text-embedding-3-small).
	Dimension int

	// RunMigrations controls whether to run migrations on startup.
	// Default is true.
	RunMigrations bool
}

// New creates a new pgvector backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536 // Default to OpenAI text-embedding-3-small
	}

	var db *sql.DB
	var ownsDB bool
	var err error

	if cfg.DB != nil {
		// Reuse existing connection
		db = cfg.DB
		ownsDB = false
	} else if cfg.DSN != "" {
		// Create new connection
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		ownsDB = true

		// Verify connection
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	} else {
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	b := &Backend{
		db:        db,
		dimension: cfg.Dimension,
		ownsDB:    ownsDB,
	}

	// Run migrations by default
	if cfg.RunMigrations {
		if err := b.runMigrations(context.Background()); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return b, nil
}

// runMigrations applies pending database migrations.
func (b *Backend) runMigrations(ctx context.Context) error {
	// Ensure schema_migrations table exists
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	// Load migrations
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	// Get applied migrations
	applied, err := b.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}

		if strings.TrimSpace(m.UpSQL) == "" {
			return fmt.Errorf("missing up migration for %s", m.ID)
		}

		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.ID, err)
		}

		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				_ = rbErr
			}
			return fmt.Errorf("apply migration %s: %w", m.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO memory_schema_migrations (id) VALUES ($1)`, m.ID); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				_ = rbErr
			}
			return fmt.Errorf("record migration %s: %w", m.ID, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.ID, err)
		}
	}

	return nil
}

func (b *Backend) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM memory_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query memory_schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan memory_schema_migrations: %w", err)
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory_schema_migrations: %w", err)
	}
	return applied, nil
}

// Index stores memory entries with their embeddings.
func (b *Backend) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, project_id, scope, scope_id, kind, content, importance, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			scope = EXCLUDED.scope,
			scope_id = EXCLUDED.scope_id,
			kind = EXCLUDED.kind,
			content = EXCLUDED.content,
			importance = EXCLUDED.importance,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}

		// Encode embedding as pgvector string format: [0.1,0.2,...]
		embeddingStr := encodeEmbedding(entry.Embedding)

		_, err = stmt.ExecContext(ctx,
			entry.ID,
			entry.ProjectID,
			string(entry.Scope),
			nullString(entry.ScopeID),
			string(entry.Kind),
			entry.Content,
			entry.Importance,
			embeddingStr,
			entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	return tx.Commit()
}

// Search finds similar entries using vector similarity.
func (b *Backend) Search(ctx context.Context, queryEmbedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts == nil {
		opts = &backend.SearchOptions{Limit: 10}
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	// Encode query embedding as pgvector string
	queryVec := encodeEmbedding(queryEmbedding)

	// Using 1 - cosine_distance to get similarity (0-1 range)
	query := `
		SELECT
			id, project_id, scope, scope_id, kind, content, importance,
			embedding, created_at,
			1 - (embedding <=> $1::vector) as similarity
		FROM memories
		WHERE embedding IS NOT NULL
	`
	args := []any{queryVec}
	argNum := 2

	query, args, argNum = b.addScopeFilter(query, args, argNum, opts)

	if opts.Threshold > 0 {
		query += fmt.Sprintf(" AND (1 - (embedding <=> $1::vector)) >= $%d", argNum)
		args = append(args, opts.Threshold)
		argNum++
	}

	query += " ORDER BY embedding <=> $1::vector ASC"

	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, opts.Limit)

	return b.executeSearch(ctx, query, args)
}

// addScopeFilter adds scope and kind filtering to a query.
func (b *Backend) addScopeFilter(query string, args []any, argNum int, opts *backend.SearchOptions) (string, []any, int) {
	switch opts.Scope {
	case models.ScopeSession, models.ScopeProject:
		query += fmt.Sprintf(" AND scope = $%d AND scope_id = $%d", argNum, argNum+1)
		args = append(args, string(opts.Scope), opts.ScopeID)
		argNum += 2
	case models.ScopeGlobal:
		query += " AND scope = 'global'"
	}
	if opts.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, string(opts.Kind))
		argNum++
	}
	return query, args, argNum
}

// executeSearch executes a search query and returns results.
func (b *Backend) executeSearch(ctx context.Context, query string, args []any) ([]*models.SearchResult, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		entry, similarity, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		results = append(results, &models.SearchResult{
			Entry: entry,
			Score: similarity,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return results, nil
}

// Delete removes entries by ID.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := b.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ANY($1::uuid[])", pq.Array(ids))
	return err
}

// List returns entries of the given kind within a scope, ordered by
// importance descending then recency descending.
func (b *Backend) List(ctx context.Context, scope models.MemoryScope, scopeID string, kind models.ChunkKind, limit int) ([]*models.MemoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, project_id, scope, scope_id, kind, content, importance, embedding, created_at, 0 as similarity
		FROM memories WHERE kind = $1
	`
	args := []any{string(kind)}
	argNum := 2

	switch scope {
	case models.ScopeSession, models.ScopeProject:
		query += fmt.Sprintf(" AND scope = $%d AND scope_id = $%d", argNum, argNum+1)
		args = append(args, string(scope), scopeID)
		argNum += 2
	case models.ScopeGlobal:
		query += " AND scope = 'global'"
	}

	query += fmt.Sprintf(" ORDER BY importance DESC, created_at DESC LIMIT $%d", argNum)
	args = append(args, limit)

	results, err := b.executeSearch(ctx, query, args)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.MemoryEntry, len(results))
	for i, r := range results {
		entries[i] = r.Entry
	}
	return entries, nil
}

// Count returns the number of entries matching the scope.
func (b *Backend) Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error) {
	query := "SELECT COUNT(*) FROM memories WHERE 1=1"
	args := []any{}

	switch scope {
	case models.ScopeSession, models.ScopeProject:
		query += " AND scope = $1 AND scope_id = $2"
		args = append(args, string(scope), scopeID)
	case models.ScopeGlobal:
		query += " AND scope = 'global'"
	}

	var count int64
	err := b.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Compact optimizes the database by running VACUUM ANALYZE.
func (b *Backend) Compact(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "VACUUM ANALYZE memories")
	return err
}

// Close releases resources.
func (b *Backend) Close() error {
	if b.ownsDB && b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, float32, error) {
	var entry models.MemoryEntry
	var scope, kind string
	var scopeID sql.NullString
	var embeddingStr sql.NullString
	var similarity float64

	err := rows.Scan(
		&entry.ID,
		&entry.ProjectID,
		&scope,
		&scopeID,
		&kind,
		&entry.Content,
		&entry.Importance,
		&embeddingStr,
		&entry.CreatedAt,
		&similarity,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan row: %w", err)
	}

	entry.Scope = models.MemoryScope(scope)
	entry.ScopeID = scopeID.String
	entry.Kind = models.ChunkKind(kind)

	if embeddingStr.Valid {
		entry.Embedding = decodeEmbedding(embeddingStr.String)
	}

	return &entry, float32(similarity), nil
}

// encodeEmbedding converts []float32 to pgvector string format: [0.1,0.2,...]
func encodeEmbedding(embedding []float32) sql.NullString {
	if len(embedding) == 0 {
		return sql.NullString{}
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')

	return sql.NullString{String: sb.String(), Valid: true}
}

// decodeEmbedding converts pgvector string format back to []float32
func decodeEmbedding(s string) []float32 {
	if s == "" {
		return nil
	}

	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	embedding := make([]float32, len(parts))
	for i, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%f", &f); err != nil {
			return nil
		}
		embedding[i] = float32(f)
	}

	return embedding
}

// Migration represents an embedded migration.
type Migration struct {
	ID      string
	UpSQL   string
	DownSQL string
}

func loadMigrations() ([]Migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	entries := map[string]*Migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, "migrations/")
		suffix := ""
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		id := strings.TrimSuffix(base, suffix)
		entry := entries[id]
		if entry == nil {
			entry = &Migration{ID: id}
			entries[id] = entry
		}
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.UpSQL = string(data)
		} else {
			entry.DownSQL = string(data)
		}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	migrations := make([]Migration, 0, len(ids))
	for _, id := range ids {
		migrations = append(migrations, *entries[id])
	}
	return migrations, nil
}
