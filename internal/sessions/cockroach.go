package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trioctl/trio/pkg/models"

	_ "github.com/lib/pq"
)

// CockroachStore implements the Store interface using CockroachDB.
type CockroachStore struct {
	db *sql.DB

	stmtCreateSession  *sql.Stmt
	stmtGetSession     *sql.Stmt
	stmtUpdateSession  *sql.Stmt
	stmtAppendSnapshot *sql.Stmt
	stmtLatestSnapshot *sql.Stmt
	stmtListSnapshots  *sql.Stmt
}

// DB exposes the underlying database connection for related stores.
func (s *CockroachStore) DB() *sql.DB {
	return s.db
}

// CockroachConfig holds configuration for CockroachDB connection.
type CockroachConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns default configuration.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		Host:            "localhost",
		Port:            26257,
		User:            "root",
		Password:        "",
		Database:        "trio",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewCockroachStore creates a new CockroachDB store.
func NewCockroachStore(config *CockroachConfig) (*CockroachStore, error) {
	if config == nil {
		config = DefaultCockroachConfig()
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)

	return newCockroachStoreWithDSN(dsn, config)
}

// NewCockroachStoreFromDSN creates a new CockroachDB store using a raw DSN/URL.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	return newCockroachStoreWithDSN(dsn, config)
}

func newCockroachStoreWithDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &CockroachStore{db: db}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

func (s *CockroachStore) prepareStatements() error {
	var err error

	s.stmtCreateSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create session: %w", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status
		FROM sessions WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get session: %w", err)
	}

	s.stmtUpdateSession, err = s.db.Prepare(`
		UPDATE sessions SET mode = $1, ended_at = $2, turn_count = $3, tokens_used = $4, status = $5
		WHERE id = $6
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update session: %w", err)
	}

	s.stmtAppendSnapshot, err = s.db.Prepare(`
		INSERT INTO session_snapshots (id, session_id, sequence_number, ephemeral_state, retrieval_ids, token_budget, last_command, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare append snapshot: %w", err)
	}

	s.stmtLatestSnapshot, err = s.db.Prepare(`
		SELECT id, session_id, sequence_number, ephemeral_state, retrieval_ids, token_budget, last_command, created_at
		FROM session_snapshots WHERE session_id = $1
		ORDER BY sequence_number DESC LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare latest snapshot: %w", err)
	}

	s.stmtListSnapshots, err = s.db.Prepare(`
		SELECT id, session_id, sequence_number, ephemeral_state, retrieval_ids, token_budget, last_command, created_at
		FROM session_snapshots WHERE session_id = $1
		ORDER BY sequence_number ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list snapshots: %w", err)
	}

	return nil
}

// Close closes the database connection and prepared statements.
func (s *CockroachStore) Close() error {
	var errs []error

	for _, stmt := range []*sql.Stmt{
		s.stmtCreateSession, s.stmtGetSession, s.stmtUpdateSession,
		s.stmtAppendSnapshot, s.stmtLatestSnapshot, s.stmtListSnapshots,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}

	return nil
}

func (s *CockroachStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if session.Status == "" {
		session.Status = models.SessionActive
	}

	_, err := s.stmtCreateSession.ExecContext(ctx,
		session.ID,
		projectIDFromContext(ctx),
		session.Mode,
		session.StartedAt,
		session.EndedAt,
		session.TurnCount,
		session.TokensUsed,
		session.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (s *CockroachStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	var projectID string
	var endedAt sql.NullTime

	err := s.stmtGetSession.QueryRowContext(ctx, id).Scan(
		&session.ID,
		&projectID,
		&session.Mode,
		&session.StartedAt,
		&endedAt,
		&session.TurnCount,
		&session.TokensUsed,
		&session.Status,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return session, nil
}

func (s *CockroachStore) UpdateSession(ctx context.Context, session *models.Session) error {
	result, err := s.stmtUpdateSession.ExecContext(ctx,
		session.Mode,
		session.EndedAt,
		session.TurnCount,
		session.TokensUsed,
		session.Status,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (s *CockroachStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `
		SELECT id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status
		FROM sessions
	`
	var args []interface{}
	argPos := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argPos)
		args = append(args, opts.Status)
		argPos++
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, opts.Limit)
		argPos++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session := &models.Session{}
		var projectID string
		var endedAt sql.NullTime

		if err := rows.Scan(
			&session.ID,
			&projectID,
			&session.Mode,
			&session.StartedAt,
			&endedAt,
			&session.TurnCount,
			&session.TokensUsed,
			&session.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}

		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// AppendSnapshot inserts a snapshot and bumps the session's turn/token
// counters in the same transaction, preserving the §8 contiguous-sequence
// invariant under the unique (session_id, sequence_number) constraint.
func (s *CockroachStore) AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}

	retrievalIDs, err := json.Marshal(snapshot.RetrievalIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieval ids: %w", err)
	}
	tokenBudget, err := json.Marshal(snapshot.TokenBudget)
	if err != nil {
		return fmt.Errorf("failed to marshal token budget: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.StmtContext(ctx, s.stmtAppendSnapshot).ExecContext(ctx,
		snapshot.ID,
		snapshot.SessionID,
		snapshot.SequenceNumber,
		snapshot.EphemeralState,
		retrievalIDs,
		tokenBudget,
		snapshot.LastCommand,
		snapshot.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET turn_count = turn_count + 1, tokens_used = tokens_used + $1 WHERE id = $2`,
		snapshot.TokenBudget.Input.Total+snapshot.TokenBudget.Output.Total, snapshot.SessionID,
	); err != nil {
		return fmt.Errorf("failed to update session counters: %w", err)
	}

	return tx.Commit()
}

func (s *CockroachStore) LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{}
	var retrievalIDs, tokenBudget []byte
	var lastCommand sql.NullString

	err := s.stmtLatestSnapshot.QueryRowContext(ctx, sessionID).Scan(
		&snapshot.ID,
		&snapshot.SessionID,
		&snapshot.SequenceNumber,
		&snapshot.EphemeralState,
		&retrievalIDs,
		&tokenBudget,
		&lastCommand,
		&snapshot.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if err := decodeSnapshotColumns(snapshot, retrievalIDs, tokenBudget, lastCommand); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *CockroachStore) ListSnapshots(ctx context.Context, sessionID string) ([]*models.Snapshot, error) {
	rows, err := s.stmtListSnapshots.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		snapshot := &models.Snapshot{}
		var retrievalIDs, tokenBudget []byte
		var lastCommand sql.NullString

		if err := rows.Scan(
			&snapshot.ID,
			&snapshot.SessionID,
			&snapshot.SequenceNumber,
			&snapshot.EphemeralState,
			&retrievalIDs,
			&tokenBudget,
			&lastCommand,
			&snapshot.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := decodeSnapshotColumns(snapshot, retrievalIDs, tokenBudget, lastCommand); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

func decodeSnapshotColumns(snapshot *models.Snapshot, retrievalIDs, tokenBudget []byte, lastCommand sql.NullString) error {
	if len(retrievalIDs) > 0 && string(retrievalIDs) != "null" {
		if err := json.Unmarshal(retrievalIDs, &snapshot.RetrievalIDs); err != nil {
			return fmt.Errorf("failed to unmarshal retrieval ids: %w", err)
		}
	}
	if len(tokenBudget) > 0 {
		if err := json.Unmarshal(tokenBudget, &snapshot.TokenBudget); err != nil {
			return fmt.Errorf("failed to unmarshal token budget: %w", err)
		}
	}
	if lastCommand.Valid {
		snapshot.LastCommand = lastCommand.String
	}
	return nil
}

type projectIDKey struct{}

// WithProjectID attaches the owning project id to a context for CreateSession
// to pick up, keeping the Store interface itself free of a ProjectID field
// (the core's in-memory models.Session has none; the SQL schema's foreign
// key is a persistence-layer concern only).
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey{}, projectID)
}

func projectIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(projectIDKey{}).(string); ok {
		return v
	}
	return ""
}
