package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func activeSession(ctx context.Context, q queryer, userID string) (types.SessionRecord, bool, error) {
	row := q.QueryRowContext(ctx, `
SELECT `+sessionColumns+`
FROM user_sessions
WHERE user_id = ? AND status = ?
LIMIT 1;
`, userID, string(types.SessionActive))

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SessionRecord{}, false, nil
	}
	if err != nil {
		return types.SessionRecord{}, false, err
	}
	return rec, true, nil
}

func scanSession(r rowScanner) (types.SessionRecord, error) {
	var (
		rec      types.SessionRecord
		loginMs  int64
		logoutMs sql.NullInt64
		status   string
	)
	if err := r.Scan(&rec.ID, &rec.UserID, &loginMs, &logoutMs, &status); err != nil {
		return types.SessionRecord{}, err
	}

	rec.LoginTime = fromMillis(loginMs)
	rec.Status = types.SessionStatus(status)
	if logoutMs.Valid {
		t := fromMillis(logoutMs.Int64)
		rec.LogoutTime = &t
	}
	return rec, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
