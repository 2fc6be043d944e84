package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
	"github.com/BrandonDHaskell/accessmon/internal/db"
)

var base = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

// openTestDB opens a database file in a per-test temp dir through db.Open,
// so tests run with the production DSN, PRAGMAs and migrations. Closed when
// the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(context.Background(), db.Config{
		Path: filepath.Join(t.TempDir(), "accessmon.db"),
	})
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func session(id, userID string, at time.Time) types.SessionRecord {
	return types.NewSession(id, userID, at)
}

func sessionIDs(recs []types.SessionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
