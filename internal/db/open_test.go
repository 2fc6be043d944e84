package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BrandonDHaskell/accessmon/internal/db"
)

func TestOpen_CreatesDirAppliesPragmasAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "accessmon.db")

	conn, err := db.Open(context.Background(), db.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	var mode string
	if err := conn.QueryRow(`PRAGMA journal_mode;`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected journal_mode=wal, got %q", mode)
	}

	var fk int
	if err := conn.QueryRow(`PRAGMA foreign_keys;`).Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign_keys=1, got %d", fk)
	}

	if n := countSessions(t, conn); n != 0 {
		t.Errorf("expected an empty user_sessions table, got %d rows", n)
	}
}
