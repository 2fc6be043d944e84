package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
	dbpkg "github.com/BrandonDHaskell/accessmon/internal/db"
)

const sessionColumns = `id, user_id, login_time_ms, logout_time_ms, status`

// SessionStore keeps the session ledger in the user_sessions table. Reads
// go straight to the pool; every write is one transaction on the worker.
type SessionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSessionStore(db *sql.DB, writer *dbpkg.Worker) *SessionStore {
	return &SessionStore{db: db, writer: writer}
}

// StartSession checks for an active row and inserts inside one transaction;
// ux_user_sessions_one_active backs the check.
func (s *SessionStore) StartSession(ctx context.Context, rec types.SessionRecord) (types.SessionRecord, bool, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return types.SessionRecord{}, false, errors.New("StartSession: session id is required")
	}

	var (
		out     types.SessionRecord
		created bool
	)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, ok, err := activeSession(ctx, tx, rec.UserID)
		if err != nil {
			return fmt.Errorf("StartSession lookup: %w", err)
		}
		if ok {
			out = existing
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO user_sessions(id, user_id, login_time_ms, logout_time_ms, status)
VALUES (?, ?, ?, NULL, ?);
`, rec.ID, rec.UserID, toMillis(rec.LoginTime), string(types.SessionActive)); err != nil {
			return fmt.Errorf("StartSession insert: %w", err)
		}

		out = rec.Clone()
		out.LoginTime = fromMillis(toMillis(rec.LoginTime))
		out.Status = types.SessionActive
		created = true
		return nil
	})
	if err != nil {
		return types.SessionRecord{}, false, err
	}
	return out, created, nil
}

func (s *SessionStore) EndSession(ctx context.Context, userID string, at time.Time) (types.SessionRecord, bool, error) {
	var (
		out   types.SessionRecord
		ended bool
	)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rec, ok, err := activeSession(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("EndSession lookup: %w", err)
		}
		if !ok {
			return nil
		}

		if err := rec.Complete(fromMillis(toMillis(at))); err != nil {
			return fmt.Errorf("EndSession: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
UPDATE user_sessions
SET logout_time_ms = ?,
    status         = ?
WHERE id = ? AND status = ?;
`, toMillis(*rec.LogoutTime), string(rec.Status), rec.ID, string(types.SessionActive))
		if err != nil {
			return fmt.Errorf("EndSession update: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("EndSession update: %d rows affected for %s", n, rec.ID)
		}

		out, ended = rec, true
		return nil
	})
	if err != nil {
		return types.SessionRecord{}, false, err
	}
	return out, ended, nil
}

func (s *SessionStore) ActiveSession(ctx context.Context, userID string) (types.SessionRecord, bool, error) {
	rec, ok, err := activeSession(ctx, s.db, userID)
	if err != nil {
		return types.SessionRecord{}, false, fmt.Errorf("ActiveSession: %w", err)
	}
	return rec, ok, nil
}

func (s *SessionStore) History(ctx context.Context, userID string) ([]types.SessionRecord, error) {
	return s.query(ctx, "History", `
SELECT `+sessionColumns+`
FROM user_sessions
WHERE user_id = ?
ORDER BY login_time_ms DESC, rowid DESC;
`, userID)
}

// HistoryBetween returns the user's sessions whose login time falls in
// [from, to]. Uses idx_user_sessions_user_login.
func (s *SessionStore) HistoryBetween(ctx context.Context, userID string, from, to time.Time) ([]types.SessionRecord, error) {
	return s.query(ctx, "HistoryBetween", `
SELECT `+sessionColumns+`
FROM user_sessions
WHERE user_id = ? AND login_time_ms BETWEEN ? AND ?
ORDER BY login_time_ms DESC, rowid DESC;
`, userID, toMillis(from), toMillis(to))
}

func (s *SessionStore) All(ctx context.Context) ([]types.SessionRecord, error) {
	return s.query(ctx, "All", `
SELECT `+sessionColumns+`
FROM user_sessions
ORDER BY login_time_ms DESC, rowid DESC;
`)
}

func (s *SessionStore) Active(ctx context.Context) ([]types.SessionRecord, error) {
	return s.query(ctx, "Active", `
SELECT `+sessionColumns+`
FROM user_sessions
WHERE status = ?
ORDER BY login_time_ms DESC, rowid DESC;
`, string(types.SessionActive))
}

func (s *SessionStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM user_sessions WHERE user_id = ?;
`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountByUser: %w", err)
	}
	return n, nil
}

func (s *SessionStore) PurgeUser(ctx context.Context, userID string) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM user_sessions
WHERE user_id = ?;
`, userID)
		if err != nil {
			return fmt.Errorf("PurgeUser: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

// EndAllActive closes every active row with one UPDATE, so either all of
// them complete or none do.
func (s *SessionStore) EndAllActive(ctx context.Context, at time.Time) (int64, error) {
	atMs := toMillis(at)

	var closed int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE user_sessions
SET logout_time_ms = MAX(?, login_time_ms),
    status         = ?
WHERE status = ?;
`, atMs, string(types.SessionCompleted), string(types.SessionActive))
		if err != nil {
			return fmt.Errorf("EndAllActive: %w", err)
		}
		closed, _ = res.RowsAffected()
		return nil
	})
	return closed, err
}

func (s *SessionStore) Stats(ctx context.Context) (types.SessionStats, error) {
	var st types.SessionStats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
       COUNT(DISTINCT user_id)
FROM user_sessions;
`, string(types.SessionActive)).Scan(&st.TotalSessions, &st.ActiveSessions, &st.UniqueUsers)
	if err != nil {
		return types.SessionStats{}, fmt.Errorf("Stats: %w", err)
	}
	return st, nil
}

func (s *SessionStore) query(ctx context.Context, op, q string, args ...any) ([]types.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", op, err)
	}
	defer rows.Close()

	out := []types.SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}
