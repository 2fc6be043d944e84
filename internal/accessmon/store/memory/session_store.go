package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

var errMissingSessionID = errors.New("session id is required")

type sessionEntry struct {
	rec types.SessionRecord
	seq uint64
}

// SessionStore is an in-memory SessionStore for tests and dev runs. A single
// mutex covers the active-session check and the insert, so a user can never
// hold two active sessions.
type SessionStore struct {
	mu       sync.RWMutex
	seq      uint64
	sessions map[string]*sessionEntry // by session id
	active   map[string]string        // user id -> active session id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		active:   make(map[string]string),
	}
}

func (s *SessionStore) StartSession(_ context.Context, rec types.SessionRecord) (types.SessionRecord, bool, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return types.SessionRecord{}, false, errMissingSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[rec.UserID]; ok {
		return s.sessions[id].rec.Clone(), false, nil
	}

	s.seq++
	s.sessions[rec.ID] = &sessionEntry{rec: rec.Clone(), seq: s.seq}
	s.active[rec.UserID] = rec.ID
	return rec.Clone(), true, nil
}

func (s *SessionStore) EndSession(_ context.Context, userID string, at time.Time) (types.SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[userID]
	if !ok {
		return types.SessionRecord{}, false, nil
	}

	e := s.sessions[id]
	done := e.rec.Clone()
	if err := done.Complete(at); err != nil {
		return types.SessionRecord{}, false, err
	}
	e.rec = done
	delete(s.active, userID)
	return done.Clone(), true, nil
}

func (s *SessionStore) ActiveSession(_ context.Context, userID string) (types.SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[userID]
	if !ok {
		return types.SessionRecord{}, false, nil
	}
	return s.sessions[id].rec.Clone(), true, nil
}

func (s *SessionStore) History(_ context.Context, userID string) ([]types.SessionRecord, error) {
	return s.collect(func(r types.SessionRecord) bool { return r.UserID == userID }), nil
}

func (s *SessionStore) HistoryBetween(_ context.Context, userID string, from, to time.Time) ([]types.SessionRecord, error) {
	return s.collect(func(r types.SessionRecord) bool {
		return r.UserID == userID && !r.LoginTime.Before(from) && !r.LoginTime.After(to)
	}), nil
}

func (s *SessionStore) All(_ context.Context) ([]types.SessionRecord, error) {
	return s.collect(func(types.SessionRecord) bool { return true }), nil
}

func (s *SessionStore) Active(_ context.Context) ([]types.SessionRecord, error) {
	return s.collect(types.SessionRecord.IsActive), nil
}

func (s *SessionStore) CountByUser(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.sessions {
		if e.rec.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) PurgeUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.sessions {
		if e.rec.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	delete(s.active, userID)
	return n, nil
}

// EndAllActive completes every active session. All transitions are computed
// before any is applied, so a failure leaves every session untouched.
func (s *SessionStore) EndAllActive(_ context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(map[string]types.SessionRecord, len(s.active))
	for _, id := range s.active {
		rec := s.sessions[id].rec.Clone()
		if err := rec.Complete(at); err != nil {
			return 0, err
		}
		done[id] = rec
	}

	for id, rec := range done {
		s.sessions[id].rec = rec
	}
	clear(s.active)
	return int64(len(done)), nil
}

func (s *SessionStore) Stats(_ context.Context) (types.SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]struct{})
	for _, e := range s.sessions {
		users[e.rec.UserID] = struct{}{}
	}
	return types.SessionStats{
		TotalSessions:  int64(len(s.sessions)),
		ActiveSessions: int64(len(s.active)),
		UniqueUsers:    int64(len(users)),
	}, nil
}

// collect returns matching sessions, newest login first; ties go to the
// later insert.
func (s *SessionStore) collect(keep func(types.SessionRecord) bool) []types.SessionRecord {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		if keep(e.rec) {
			entries = append(entries, &sessionEntry{rec: e.rec.Clone(), seq: e.seq})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *sessionEntry) int {
		if c := b.rec.LoginTime.Compare(a.rec.LoginTime); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	out := make([]types.SessionRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}
