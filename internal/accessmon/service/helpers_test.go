package service_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/service"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store/memory"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

var base = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// seqIDs returns an id generator yielding s-1, s-2, ...
func seqIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("s-%d", n.Add(1)) }
}

type fixture struct {
	clock    *clockwork.FakeClock
	registry *service.UserRegistry
	sessions *memory.SessionStore
	ledger   *service.SessionLedger
	retrier  *service.PurgeRetrier
}

func newFixture(policy service.RegistrationPolicy, gated bool) *fixture {
	clock := clockwork.NewFakeClockAt(base)
	registry := service.NewUserRegistry(memory.NewAccessList(memory.DefaultCapacity), service.RegistryOptions{
		Policy: policy,
		Clock:  clock,
		Logger: silentLogger(),
	})
	sessions := memory.NewSessionStore()
	ledger := service.NewSessionLedger(sessions, registry, service.LedgerOptions{
		RequireRegistration: gated,
		Clock:               clock,
		NewID:               seqIDs(),
		Logger:              silentLogger(),
	})
	retrier := service.NewPurgeRetrier(ledger, service.RetrierConfig{}, clock, silentLogger(), nil)
	registry.OnRemove(retrier)

	return &fixture{
		clock:    clock,
		registry: registry,
		sessions: sessions,
		ledger:   ledger,
		retrier:  retrier,
	}
}

// recordingPurger remembers the users it was asked to purge and whether the
// context it got was still live.
type recordingPurger struct {
	mu       sync.Mutex
	users    []string
	liveCtxs int
}

func (p *recordingPurger) PurgeUser(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	if ctx.Err() == nil {
		p.liveCtxs++
	}
	return nil
}

// flakyPurger fails the first `failures` calls, then succeeds.
type flakyPurger struct {
	mu       sync.Mutex
	failures int
	calls    int
	purged   []string
}

func (p *flakyPurger) PurgeUser(_ context.Context, userID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return 0, fmt.Errorf("store unavailable (call %d)", p.calls)
	}
	p.purged = append(p.purged, userID)
	return 1, nil
}

func (p *flakyPurger) Purged() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.purged...)
}

// pausingStore announces each StartSession on entered and holds it until
// release is closed.
type pausingStore struct {
	store.SessionStore
	entered chan struct{}
	release chan struct{}
}

func newPausingStore(inner store.SessionStore) *pausingStore {
	return &pausingStore{
		SessionStore: inner,
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
}

func (s *pausingStore) StartSession(ctx context.Context, rec types.SessionRecord) (types.SessionRecord, bool, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.SessionStore.StartSession(ctx, rec)
}

// flakyEndStore fails the first `failures` EndAllActive calls and honours
// ctx the way the SQLite writer does.
type flakyEndStore struct {
	store.SessionStore

	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyEndStore) EndAllActive(ctx context.Context, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if call <= s.failures {
		return 0, fmt.Errorf("store busy (call %d)", call)
	}
	return s.SessionStore.EndAllActive(ctx, at)
}
