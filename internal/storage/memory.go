package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trioctl/trio/pkg/models"
)

// MemoryProjectStore provides an in-memory ProjectStore.
type MemoryProjectStore struct {
	mu         sync.RWMutex
	projects   map[string]*models.Project
	byRootPath map[string]string
}

// NewMemoryProjectStore creates an in-memory project store.
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{
		projects:   make(map[string]*models.Project),
		byRootPath: make(map[string]string),
	}
}

func (s *MemoryProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := s.byRootPath[project.RootPath]; exists {
		return ErrAlreadyExists
	}
	s.projects[project.ID] = project
	s.byRootPath[project.RootPath] = project.ID
	return nil
}

func (s *MemoryProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return project, nil
}

func (s *MemoryProjectStore) GetByRootPath(ctx context.Context, rootPath string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRootPath[rootPath]
	if !ok {
		return nil, ErrNotFound
	}
	return s.projects[id], nil
}

func (s *MemoryProjectStore) List(ctx context.Context, limit, offset int) ([]*models.Project, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projects := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return paginateProjects(projects, limit, offset), len(projects), nil
}

func paginateProjects(projects []*models.Project, limit, offset int) []*models.Project {
	if offset < 0 {
		offset = 0
	}
	if offset > len(projects) {
		offset = len(projects)
	}
	end := len(projects)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return projects[offset:end]
}

func (s *MemoryProjectStore) Update(ctx context.Context, project *models.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[project.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.RootPath != project.RootPath {
		delete(s.byRootPath, existing.RootPath)
		s.byRootPath[project.RootPath] = project.ID
	}
	s.projects[project.ID] = project
	return nil
}

func (s *MemoryProjectStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.projects, id)
	delete(s.byRootPath, project.RootPath)
	return nil
}

// MemoryExecutionLogStore provides an in-memory ExecutionLogStore.
type MemoryExecutionLogStore struct {
	mu      sync.RWMutex
	entries []*models.ExecutionLog
}

// NewMemoryExecutionLogStore creates an in-memory execution log store.
func NewMemoryExecutionLogStore() *MemoryExecutionLogStore {
	return &MemoryExecutionLogStore{}
}

func (s *MemoryExecutionLogStore) Append(ctx context.Context, entry *models.ExecutionLog) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryExecutionLogStore) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*models.ExecutionLog, int, error) {
	return s.list(func(e *models.ExecutionLog) bool { return e.SessionID == sessionID }, limit, offset)
}

func (s *MemoryExecutionLogStore) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.ExecutionLog, int, error) {
	return s.list(func(e *models.ExecutionLog) bool { return e.ProjectID == projectID }, limit, offset)
}

func (s *MemoryExecutionLogStore) list(match func(*models.ExecutionLog) bool, limit, offset int) ([]*models.ExecutionLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.ExecutionLog
	for _, e := range s.entries {
		if match(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// NewMemoryStore constructs a Store backed entirely by in-memory adapters.
// This is the default used when no persistence backend is configured, and
// in tests.
func NewMemoryStore() Store {
	return Store{
		Projects:      NewMemoryProjectStore(),
		ExecutionLogs: NewMemoryExecutionLogStore(),
	}
}
