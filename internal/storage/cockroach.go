package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trioctl/trio/pkg/models"
)

// NewCockroachStoreFromDSN creates a Postgres/CockroachDB-backed Store.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return Store{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return Store{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return Store{}, fmt.Errorf("ping database: %w", err)
	}

	return Store{
		Projects:      &cockroachProjectStore{db: db},
		ExecutionLogs: &cockroachExecutionLogStore{db: db},
		closer:        db.Close,
	}, nil
}

type cockroachProjectStore struct {
	db *sql.DB
}

func (s *cockroachProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, root_path, name, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		project.ID, project.RootPath, project.Name, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *cockroachProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, root_path, name, created_at, updated_at FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *cockroachProjectStore) GetByRootPath(ctx context.Context, rootPath string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, root_path, name, created_at, updated_at FROM projects WHERE root_path = $1`, rootPath)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.RootPath, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

func (s *cockroachProjectStore) List(ctx context.Context, limit, offset int) ([]*models.Project, int, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root_path, name, created_at, updated_at FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.RootPath, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	return projects, total, nil
}

func (s *cockroachProjectStore) Update(ctx context.Context, project *models.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET root_path = $1, name = $2, updated_at = $3 WHERE id = $4`,
		project.RootPath, project.Name, project.UpdatedAt, project.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachProjectStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type cockroachExecutionLogStore struct {
	db *sql.DB
}

func (s *cockroachExecutionLogStore) Append(ctx context.Context, entry *models.ExecutionLog) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_logs
			(id, project_id, session_id, type, tool, input, output, success, duration_ms, error_message, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		entry.ID,
		entry.ProjectID,
		nullableString(entry.SessionID),
		entry.Type,
		entry.Tool,
		[]byte(entry.Input),
		entry.Output,
		entry.Success,
		entry.DurationMs,
		nullableString(entry.ErrorMessage),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

func (s *cockroachExecutionLogStore) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.ExecutionLog, int, error) {
	return s.list(ctx, "session_id = $1", sessionID, limit, offset)
}

func (s *cockroachExecutionLogStore) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.ExecutionLog, int, error) {
	return s.list(ctx, "project_id = $1", projectID, limit, offset)
}

func (s *cockroachExecutionLogStore) list(ctx context.Context, whereClause, key string, limit, offset int) ([]*models.ExecutionLog, int, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, project_id, session_id, type, tool, input, output, success, duration_ms, error_message, created_at
			FROM execution_logs WHERE %s ORDER BY created_at DESC LIMIT $2 OFFSET $3`, whereClause),
		key, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.ExecutionLog
	for rows.Next() {
		entry, err := scanExecutionLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list execution logs: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM execution_logs WHERE %s`, whereClause), key).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count execution logs: %w", err)
	}

	return entries, total, nil
}

func scanExecutionLog(rows *sql.Rows) (*models.ExecutionLog, error) {
	var entry models.ExecutionLog
	var sessionID, errorMessage sql.NullString
	var input []byte

	if err := rows.Scan(
		&entry.ID,
		&entry.ProjectID,
		&sessionID,
		&entry.Type,
		&entry.Tool,
		&input,
		&entry.Output,
		&entry.Success,
		&entry.DurationMs,
		&errorMessage,
		&entry.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan execution log: %w", err)
	}

	entry.SessionID = sessionID.String
	entry.ErrorMessage = errorMessage.String
	entry.Input = input

	return &entry, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
