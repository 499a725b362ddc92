// Package storage implements the persistence adapters of SPEC_FULL.md §6
// for the two persisted entities not owned by the session lifecycle store
// (internal/sessions.Store, C11): Project and ExecutionLog. Postgres,
// embedded SQLite, and in-memory backends all satisfy the same Store
// interface so the core never depends on a concrete one.
package storage

import (
	"context"
	"errors"

	"github.com/trioctl/trio/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ProjectStore persists Project records, keyed by a unique RootPath.
type ProjectStore interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	GetByRootPath(ctx context.Context, rootPath string) (*models.Project, error)
	List(ctx context.Context, limit, offset int) ([]*models.Project, int, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
}

// ExecutionLogStore records tool-invocation history and answers the
// queries the CLI's sessions/agents subcommands need.
type ExecutionLogStore interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.ExecutionLog, int, error)
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.ExecutionLog, int, error)
}

// Store groups the persistence adapters this package provides.
type Store struct {
	Projects      ProjectStore
	ExecutionLogs ExecutionLogStore
	closer        func() error
}

// Close releases any underlying resources (e.g. a pooled DB connection).
func (s Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
