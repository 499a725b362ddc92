package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/trioctl/trio/pkg/models"
)

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	session := &models.Session{Mode: models.Mode("default")}

	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected session id to be assigned")
	}
	if session.Status != models.SessionActive {
		t.Fatalf("expected default status active, got %q", session.Status)
	}

	loaded, err := store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if loaded.Mode != session.Mode {
		t.Fatalf("expected mode %q, got %q", session.Mode, loaded.Mode)
	}

	loaded.TurnCount = 3
	loaded.Status = models.SessionEnded
	if err := store.UpdateSession(context.Background(), loaded); err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}

	updated, err := store.GetSession(context.Background(), loaded.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if updated.TurnCount != 3 || updated.Status != models.SessionEnded {
		t.Fatalf("expected updated fields to persist, got %+v", updated)
	}
}

func TestMemoryStoreGetSessionNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreListSessionsFiltersByStatus(t *testing.T) {
	store := NewMemoryStore()
	active := &models.Session{Status: models.SessionActive}
	ended := &models.Session{Status: models.SessionEnded}
	if err := store.CreateSession(context.Background(), active); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.CreateSession(context.Background(), ended); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	out, err := store.ListSessions(context.Background(), ListOptions{Status: models.SessionActive})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != active.ID {
		t.Fatalf("expected only the active session, got %+v", out)
	}
}

func TestMemoryStoreAppendSnapshotSequencing(t *testing.T) {
	store := NewMemoryStore()
	session := &models.Session{}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	first := &models.Snapshot{SessionID: session.ID, SequenceNumber: 1, EphemeralState: "turn 1"}
	if err := store.AppendSnapshot(context.Background(), first); err != nil {
		t.Fatalf("AppendSnapshot(1) error = %v", err)
	}

	// Skipping ahead must be rejected: sequence numbers are contiguous.
	skip := &models.Snapshot{SessionID: session.ID, SequenceNumber: 3, EphemeralState: "turn 3"}
	if err := store.AppendSnapshot(context.Background(), skip); !errors.Is(err, ErrSnapshotConflict) {
		t.Fatalf("expected ErrSnapshotConflict, got %v", err)
	}

	second := &models.Snapshot{SessionID: session.ID, SequenceNumber: 2, EphemeralState: "turn 2"}
	if err := store.AppendSnapshot(context.Background(), second); err != nil {
		t.Fatalf("AppendSnapshot(2) error = %v", err)
	}

	latest, err := store.LatestSnapshot(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if latest == nil || latest.SequenceNumber != 2 {
		t.Fatalf("expected latest snapshot sequence 2, got %+v", latest)
	}

	all, err := store.ListSnapshots(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(all) != 2 || all[0].SequenceNumber != 1 || all[1].SequenceNumber != 2 {
		t.Fatalf("expected contiguous snapshots [1,2], got %+v", all)
	}
}

func TestMemoryStoreAppendSnapshotUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendSnapshot(context.Background(), &models.Snapshot{SessionID: "missing", SequenceNumber: 1})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreConcurrentSnapshotAppend(t *testing.T) {
	store := NewMemoryStore()
	session := &models.Session{}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	successes := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AppendSnapshot(context.Background(), &models.Snapshot{
				SessionID:      session.ID,
				SequenceNumber: i + 1,
				EphemeralState: "turn",
			})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	all, err := store.ListSnapshots(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	for i, snap := range all {
		if snap.SequenceNumber != i+1 {
			t.Fatalf("expected contiguous sequence at index %d, got %d", i, snap.SequenceNumber)
		}
	}
}
