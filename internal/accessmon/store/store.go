package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

// ErrUserExists is returned by UserStore.Insert for a taken user id.
var ErrUserExists = errors.New("user already exists")

// UserStore holds access records ordered by last access time, oldest first.
// Every method is atomic with respect to the others.
type UserStore interface {
	// Insert adds rec, failing with ErrUserExists if the id is taken.
	Insert(ctx context.Context, rec types.AccessRecord) (types.AccessRecord, error)
	// Upsert adds rec, or refreshes the existing record's access time to
	// rec.LastAccessTime. The bool is true when a record was created.
	Upsert(ctx context.Context, rec types.AccessRecord) (types.AccessRecord, bool, error)
	// Touch refreshes the access time of an existing record.
	Touch(ctx context.Context, userID string, at time.Time) (types.AccessRecord, bool, error)
	Remove(ctx context.Context, userID string) (bool, error)
	Find(ctx context.Context, userID string) (types.AccessRecord, bool, error)
	List(ctx context.Context) ([]types.AccessRecord, error)
	Size() int
	Capacity() int
}

// SessionStore persists session records. Mutations are atomic per call; in
// particular StartSession never leaves two active sessions for one user.
type SessionStore interface {
	// StartSession stores rec unless the user already has an active
	// session, in which case that session is returned unchanged and the
	// bool is false.
	StartSession(ctx context.Context, rec types.SessionRecord) (types.SessionRecord, bool, error)
	// EndSession completes the user's active session at the given time.
	EndSession(ctx context.Context, userID string, at time.Time) (types.SessionRecord, bool, error)
	ActiveSession(ctx context.Context, userID string) (types.SessionRecord, bool, error)

	// History, HistoryBetween, All and Active return newest login first.
	History(ctx context.Context, userID string) ([]types.SessionRecord, error)
	HistoryBetween(ctx context.Context, userID string, from, to time.Time) ([]types.SessionRecord, error)
	All(ctx context.Context) ([]types.SessionRecord, error)
	Active(ctx context.Context) ([]types.SessionRecord, error)
	CountByUser(ctx context.Context, userID string) (int64, error)

	PurgeUser(ctx context.Context, userID string) (int64, error)
	// EndAllActive completes every active session in a single unit and
	// returns how many were closed.
	EndAllActive(ctx context.Context, at time.Time) (int64, error)
	Stats(ctx context.Context) (types.SessionStats, error)
}
