package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/trioctl/trio/pkg/models"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *CockroachStore) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, &CockroachStore{db: db}
}

func TestCockroachStoreCreateSession(t *testing.T) {
	mock, store := setupMockDB(t)
	mock.ExpectPrepare("INSERT INTO sessions")
	stmt, err := store.db.Prepare("INSERT INTO sessions (id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtCreateSession = stmt

	session := &models.Session{ID: "sess-1", Mode: "default"}
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("sess-1", "", models.Mode("default"), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, models.SessionActive).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCockroachStoreCreateSessionAssignsDefaults(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("INSERT INTO sessions (id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtCreateSession = stmt

	session := &models.Session{}
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected generated session id")
	}
	if session.Status != models.SessionActive {
		t.Fatalf("expected default status active, got %q", session.Status)
	}
}

func TestCockroachStoreGetSession(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("SELECT id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status FROM sessions WHERE id = \\$1")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtGetSession = stmt

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "mode", "started_at", "ended_at", "turn_count", "tokens_used", "status"}).
		AddRow("sess-1", "proj-1", "default", now, nil, 2, 100, "active")
	mock.ExpectQuery("SELECT id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status FROM sessions WHERE id = \\$1").
		WithArgs("sess-1").
		WillReturnRows(rows)

	session, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.TurnCount != 2 || session.TokensUsed != 100 {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestCockroachStoreGetSessionNotFound(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("SELECT id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status FROM sessions WHERE id = \\$1")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtGetSession = stmt

	mock.ExpectQuery("SELECT id, project_id, mode, started_at, ended_at, turn_count, tokens_used, status FROM sessions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCockroachStoreUpdateSessionNotFound(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("UPDATE sessions SET mode = \\$1, ended_at = \\$2, turn_count = \\$3, tokens_used = \\$4, status = \\$5 WHERE id = \\$6")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtUpdateSession = stmt

	mock.ExpectExec("UPDATE sessions SET mode").WillReturnResult(sqlmock.NewResult(0, 0))

	session := &models.Session{ID: "missing"}
	if err := store.UpdateSession(context.Background(), session); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCockroachStoreAppendSnapshotUpdatesCounters(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("INSERT INTO session_snapshots (id, session_id, sequence_number, ephemeral_state, retrieval_ids, token_budget, last_command, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtAppendSnapshot = stmt

	snapshot := &models.Snapshot{
		SessionID:      "sess-1",
		SequenceNumber: 1,
		EphemeralState: "turn one",
		TokenBudget: models.TokenBudget{
			Input:  models.InputBudget{Total: 40, Limit: 100},
			Output: models.OutputBudget{Total: 10, Limit: 50},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO session_snapshots").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE sessions SET turn_count = turn_count \\+ 1, tokens_used = tokens_used \\+ \\$1 WHERE id = \\$2").
		WithArgs(50, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.AppendSnapshot(context.Background(), snapshot); err != nil {
		t.Fatalf("AppendSnapshot() error = %v", err)
	}
	if snapshot.ID == "" {
		t.Fatalf("expected generated snapshot id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCockroachStoreAppendSnapshotRollsBackOnFailure(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("INSERT INTO session_snapshots (id, session_id, sequence_number, ephemeral_state, retrieval_ids, token_budget, last_command, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtAppendSnapshot = stmt

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO session_snapshots").WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	snapshot := &models.Snapshot{SessionID: "sess-1", SequenceNumber: 1}
	if err := store.AppendSnapshot(context.Background(), snapshot); err == nil {
		t.Fatalf("expected error from failed insert")
	}
}

func TestCockroachStoreLatestSnapshotNoRows(t *testing.T) {
	mock, store := setupMockDB(t)
	stmt, err := store.db.Prepare("SELECT id, session_id, sequence_number, ephemeral_state, retrieval_ids, token_budget, last_command, created_at FROM session_snapshots WHERE session_id = \\$1 ORDER BY sequence_number DESC LIMIT 1")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	store.stmtLatestSnapshot = stmt

	mock.ExpectQuery("SELECT id, session_id, sequence_number").
		WithArgs("sess-1").
		WillReturnError(sql.ErrNoRows)

	snapshot, err := store.LatestSnapshot(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot when none exists, got %+v", snapshot)
	}
}

func TestWithProjectIDRoundTrip(t *testing.T) {
	ctx := WithProjectID(context.Background(), "proj-42")
	if got := projectIDFromContext(ctx); got != "proj-42" {
		t.Fatalf("expected proj-42, got %q", got)
	}
	if got := projectIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string for bare context, got %q", got)
	}
}
