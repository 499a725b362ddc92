package sessions

import (
	"context"

	"github.com/trioctl/trio/pkg/models"
)

// Store is the narrow persistence interface C11 uses so the core never
// imports a SQL driver directly. A Session is the top-level conversation
// scope for a process; Snapshots are the strictly sequenced, point-in-time
// dumps of that session's ephemeral state and token accounting.
type Store interface {
	// Session lifecycle
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error)

	// Snapshots are append-only and totally ordered by sequence number
	// within a session (contiguous starting at 1, monotone in createdAt).
	AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, sessionID string) ([]*models.Snapshot, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Status models.SessionStatus
	Limit  int
	Offset int
}

type errSessionNotFound struct{}

func (errSessionNotFound) Error() string { return "session not found" }

// ErrSessionNotFound is returned when a session id has no matching record.
var ErrSessionNotFound error = errSessionNotFound{}

type errSnapshotConflict struct{}

func (errSnapshotConflict) Error() string { return "snapshot sequence number conflict" }

// ErrSnapshotConflict is returned when AppendSnapshot is called with a
// sequence number that is not exactly one past the session's latest.
var ErrSnapshotConflict error = errSnapshotConflict{}

// NextSequenceNumber returns the sequence number a new snapshot must carry
// given the session's current latest snapshot (nil if none exists yet).
func NextSequenceNumber(latest *models.Snapshot) int {
	if latest == nil {
		return 1
	}
	return latest.SequenceNumber + 1
}
