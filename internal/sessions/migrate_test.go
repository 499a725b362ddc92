package sessions

import "testing"

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) < 1 {
		t.Fatalf("expected at least 1 migration, got %d", len(migrations))
	}
	if migrations[0].ID != "0001_sessions" {
		t.Fatalf("expected first migration to be 0001_sessions, got %q", migrations[0].ID)
	}
}
