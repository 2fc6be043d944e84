package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
	"github.com/BrandonDHaskell/accessmon/internal/metrics"
)

// UserDirectory is what the ledger needs from the user registry.
type UserDirectory interface {
	WithRegistered(ctx context.Context, userID string, fn func(ctx context.Context) error) (bool, error)
	Touch(ctx context.Context, userID string) error
}

const closeRetryDelay = 100 * time.Millisecond

type LedgerOptions struct {
	// RequireRegistration rejects logins from users the directory does not
	// know with ErrUnregisteredUser.
	RequireRegistration bool

	Clock   clockwork.Clock
	NewID   func() string // defaults to uuid.NewString
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// SessionLedger tracks login sessions: at most one active session per user,
// with every completed session kept until the user is purged.
type SessionLedger struct {
	store   store.SessionStore
	users   UserDirectory
	gated   bool
	clock   clockwork.Clock
	newID   func() string
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewSessionLedger builds a ledger over st. users may be nil, in which case
// logins are never gated and no access time is refreshed.
func NewSessionLedger(st store.SessionStore, users UserDirectory, opts LedgerOptions) *SessionLedger {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &SessionLedger{
		store:   st,
		users:   users,
		gated:   opts.RequireRegistration && users != nil,
		clock:   opts.Clock,
		newID:   opts.NewID,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// StartSession logs userID in. When the user already has an active session
// that session is returned unchanged and the bool is false.
func (l *SessionLedger) StartSession(ctx context.Context, userID string) (types.SessionRecord, bool, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return types.SessionRecord{}, false, err
	}

	var (
		rec     types.SessionRecord
		created bool
	)
	insert := func(ctx context.Context) error {
		var err error
		rec, created, err = l.store.StartSession(ctx, types.NewSession(l.newID(), id, l.clock.Now().UTC()))
		return err
	}

	if l.gated {
		// The registration check and the insert happen under the directory's
		// removal gate.
		ok, err := l.users.WithRegistered(ctx, id, insert)
		if err != nil {
			return types.SessionRecord{}, false, fmt.Errorf("StartSession: %w", err)
		}
		if !ok {
			return types.SessionRecord{}, false, ErrUnregisteredUser
		}
	} else if err := insert(ctx); err != nil {
		return types.SessionRecord{}, false, fmt.Errorf("StartSession: %w", err)
	}

	if l.users != nil {
		if err := l.users.Touch(ctx, id); err != nil {
			l.logger.Printf("login touch failed user_id=%s err=%v", id, err)
		}
	}

	if created {
		l.metrics.SessionStarted()
		l.logger.Printf("session started user_id=%s session_id=%s", id, rec.ID)
	}
	return rec, created, nil
}

// EndSession completes the user's active session. It reports false when
// there was none.
func (l *SessionLedger) EndSession(ctx context.Context, userID string) (bool, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return false, err
	}

	rec, ended, err := l.store.EndSession(ctx, id, l.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("EndSession: %w", err)
	}
	if ended {
		l.metrics.SessionsEndedBy(metrics.EndReasonLogout, 1)
		d, _ := rec.Duration()
		l.logger.Printf("session ended user_id=%s session_id=%s dur=%s", id, rec.ID, d)
	}
	return ended, nil
}

// History returns the user's sessions, newest login first.
func (l *SessionLedger) History(ctx context.Context, userID string) ([]types.SessionRecord, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	return l.store.History(ctx, id)
}

// HistoryBetween returns the user's sessions with a login time in
// [from, to], newest first. A zero to means no upper bound.
func (l *SessionLedger) HistoryBetween(ctx context.Context, userID string, from, to time.Time) ([]types.SessionRecord, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.UnixMilli(math.MaxInt64)
	}
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	return l.store.HistoryBetween(ctx, id, from, to)
}

// AllSessions returns every stored session, newest login first.
func (l *SessionLedger) AllSessions(ctx context.Context) ([]types.SessionRecord, error) {
	return l.store.All(ctx)
}

func (l *SessionLedger) ActiveSessions(ctx context.Context) ([]types.SessionRecord, error) {
	return l.store.Active(ctx)
}

func (l *SessionLedger) HasActiveSession(ctx context.Context, userID string) (bool, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return false, err
	}
	_, ok, err := l.store.ActiveSession(ctx, id)
	return ok, err
}

func (l *SessionLedger) CountSessions(ctx context.Context, userID string) (int64, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return 0, err
	}
	return l.store.CountByUser(ctx, id)
}

// PurgeUser deletes every session of userID, active or not. Purging a user
// with no sessions is a no-op.
func (l *SessionLedger) PurgeUser(ctx context.Context, userID string) (int64, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return 0, err
	}
	n, err := l.store.PurgeUser(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("PurgeUser: %w", err)
	}
	l.metrics.Purged(n)
	if n > 0 {
		l.logger.Printf("sessions purged user_id=%s count=%d", id, n)
	}
	return n, nil
}

// EndAllActive completes every active session at once, logging them out at
// at. Either all of them close or none do.
func (l *SessionLedger) EndAllActive(ctx context.Context, at time.Time) (int64, error) {
	n, err := l.store.EndAllActive(ctx, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("EndAllActive: %w", err)
	}
	l.metrics.SessionsEndedBy(metrics.EndReasonShutdown, n)
	l.logger.Printf("active sessions closed count=%d at=%s", n, at.UTC().Format(time.RFC3339))
	return n, nil
}

// CloseActive is the shutdown hook. It ends every active session at at,
// retrying failed attempts until timeout elapses. The deadline is its own:
// ctx contributes values but not its cancellation, so a shutdown context
// already spent on draining HTTP does not leave sessions open.
func (l *SessionLedger) CloseActive(ctx context.Context, at time.Time, timeout time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		n, err := l.EndAllActive(ctx, at)
		if err == nil {
			return n, nil
		}
		l.logger.Printf("close active sessions failed attempt=%d err=%v", attempt, err)

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("CloseActive: gave up after %d attempts: %w", attempt, err)
		case <-l.clock.After(closeRetryDelay):
		}
	}
}

func (l *SessionLedger) Stats(ctx context.Context) (types.SessionStats, error) {
	return l.store.Stats(ctx)
}
