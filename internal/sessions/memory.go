package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trioctl/trio/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// local, single-process runs where no persistence backend is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*models.Session
	snapshots map[string][]*models.Snapshot
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  map[string]*models.Session{},
		snapshots: map[string][]*models.Snapshot{},
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneSession(session)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.StartedAt.IsZero() {
		clone.StartedAt = time.Now()
	}
	if clone.Status == "" {
		clone.Status = models.SessionActive
	}
	session.ID = clone.ID
	session.StartedAt = clone.StartedAt
	session.Status = clone.Status
	m.sessions[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if opts.Status != "" && session.Status != opts.Status {
			continue
		}
		out = append(out, cloneSession(session))
	}
	sortSessionsByStart(out)

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	return out[start:end], nil
}

// AppendSnapshot enforces the contiguous-sequence invariant: a snapshot's
// SequenceNumber must be exactly one past the session's current latest.
func (m *MemoryStore) AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[snapshot.SessionID]; !ok {
		return ErrSessionNotFound
	}
	existing := m.snapshots[snapshot.SessionID]
	var latest *models.Snapshot
	if len(existing) > 0 {
		latest = existing[len(existing)-1]
	}
	if snapshot.SequenceNumber != NextSequenceNumber(latest) {
		return ErrSnapshotConflict
	}
	clone := cloneSnapshot(snapshot)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.snapshots[snapshot.SessionID] = append(existing, clone)
	return nil
}

func (m *MemoryStore) LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.snapshots[sessionID]
	if len(list) == 0 {
		return nil, nil
	}
	return cloneSnapshot(list[len(list)-1]), nil
}

func (m *MemoryStore) ListSnapshots(ctx context.Context, sessionID string) ([]*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.snapshots[sessionID]
	out := make([]*models.Snapshot, 0, len(list))
	for _, snap := range list {
		out = append(out, cloneSnapshot(snap))
	}
	return out, nil
}

func sortSessionsByStart(sessions []*models.Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].StartedAt.Before(sessions[j-1].StartedAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.EndedAt != nil {
		ended := *session.EndedAt
		clone.EndedAt = &ended
	}
	return &clone
}

func cloneSnapshot(snapshot *models.Snapshot) *models.Snapshot {
	if snapshot == nil {
		return nil
	}
	clone := *snapshot
	if snapshot.RetrievalIDs != nil {
		clone.RetrievalIDs = append([]string{}, snapshot.RetrievalIDs...)
	}
	return &clone
}
