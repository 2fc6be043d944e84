package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store/memory"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

func startAt(t *testing.T, s *memory.SessionStore, id, userID string, at time.Time) types.SessionRecord {
	t.Helper()
	got, created, err := s.StartSession(context.Background(), types.NewSession(id, userID, at))
	if err != nil {
		t.Fatalf("StartSession %s: %v", id, err)
	}
	if !created {
		t.Fatalf("StartSession %s: expected a new session", id)
	}
	return got
}

func TestSessionStore_StartSession_IdempotentWhileActive(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	first := startAt(t, s, "s-1", "alice", base)

	second, created, err := s.StartSession(ctx, types.NewSession("s-2", "alice", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("second StartSession: %v", err)
	}
	if created {
		t.Error("expected existing session to be returned")
	}
	if second.ID != first.ID || !second.LoginTime.Equal(first.LoginTime) {
		t.Errorf("expected %+v, got %+v", first, second)
	}

	stats, _ := s.Stats(ctx)
	if stats.ActiveSessions != 1 || stats.TotalSessions != 1 {
		t.Errorf("expected 1 active / 1 total, got %+v", stats)
	}
}

func TestSessionStore_StartSession_RequiresID(t *testing.T) {
	s := memory.NewSessionStore()
	if _, _, err := s.StartSession(context.Background(), types.NewSession("", "alice", base)); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestSessionStore_EndSession(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	if _, ok, err := s.EndSession(ctx, "alice", base); err != nil || ok {
		t.Fatalf("EndSession without active: ok=%v err=%v", ok, err)
	}

	startAt(t, s, "s-1", "alice", base)
	logout := base.Add(30 * time.Minute)

	done, ok, err := s.EndSession(ctx, "alice", logout)
	if err != nil || !ok {
		t.Fatalf("EndSession: ok=%v err=%v", ok, err)
	}
	if done.Status != types.SessionCompleted {
		t.Errorf("expected COMPLETED, got %q", done.Status)
	}
	if d, _ := done.Duration(); d != 30*time.Minute {
		t.Errorf("expected 30m, got %v", d)
	}

	if _, ok, _ := s.ActiveSession(ctx, "alice"); ok {
		t.Error("expected no active session after logout")
	}

	hist, _ := s.History(ctx, "alice")
	if _, ok, _ := s.EndSession(ctx, "alice", logout.Add(time.Hour)); ok {
		t.Error("expected second EndSession to return false")
	}
	again, _ := s.History(ctx, "alice")
	if len(hist) != 1 || len(again) != 1 || !again[0].LogoutTime.Equal(*hist[0].LogoutTime) {
		t.Errorf("history changed by no-op logout: %+v -> %+v", hist, again)
	}
}

func TestSessionStore_History_NewestFirst(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		startAt(t, s, fmt.Sprintf("a-%d", i), "alice", base.Add(time.Duration(i)*time.Hour))
		if _, _, err := s.EndSession(ctx, "alice", base.Add(time.Duration(i)*time.Hour+time.Minute)); err != nil {
			t.Fatalf("EndSession: %v", err)
		}
	}
	startAt(t, s, "b-0", "bob", base.Add(90*time.Minute))

	hist, _ := s.History(ctx, "alice")
	if len(hist) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(hist))
	}
	for i, want := range []string{"a-2", "a-1", "a-0"} {
		if hist[i].ID != want {
			t.Errorf("history[%d]: expected %s, got %s", i, want, hist[i].ID)
		}
	}

	all, _ := s.All(ctx)
	wantAll := []string{"a-2", "b-0", "a-1", "a-0"}
	for i, want := range wantAll {
		if all[i].ID != want {
			t.Errorf("all[%d]: expected %s, got %s", i, want, all[i].ID)
		}
	}

	between, _ := s.HistoryBetween(ctx, "alice", base.Add(30*time.Minute), base.Add(2*time.Hour))
	if len(between) != 2 || between[0].ID != "a-2" || between[1].ID != "a-1" {
		t.Errorf("unexpected range result: %+v", between)
	}

	active, _ := s.Active(ctx)
	if len(active) != 1 || active[0].ID != "b-0" {
		t.Errorf("expected only b-0 active, got %+v", active)
	}
}

func TestSessionStore_PurgeUser_OnlyThatUser(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	startAt(t, s, "b-1", "bob", base)
	_, _, _ = s.EndSession(ctx, "bob", base.Add(time.Minute))
	startAt(t, s, "b-2", "bob", base.Add(time.Hour))
	startAt(t, s, "a-1", "alice", base)

	n, err := s.PurgeUser(ctx, "bob")
	if err != nil {
		t.Fatalf("PurgeUser: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}

	if c, _ := s.CountByUser(ctx, "bob"); c != 0 {
		t.Errorf("expected no bob sessions, got %d", c)
	}
	if c, _ := s.CountByUser(ctx, "alice"); c != 1 {
		t.Errorf("expected alice untouched, got %d", c)
	}

	// Purging again is a no-op.
	if n, _ := s.PurgeUser(ctx, "bob"); n != 0 {
		t.Errorf("expected 0 on second purge, got %d", n)
	}

	// bob can log in again after the purge.
	startAt(t, s, "b-3", "bob", base.Add(2*time.Hour))
}

func TestSessionStore_EndAllActive(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	startAt(t, s, "a-1", "alice", base)
	startAt(t, s, "b-1", "bob", base)
	startAt(t, s, "c-1", "carol", base)
	_, _, _ = s.EndSession(ctx, "carol", base.Add(time.Minute))

	shutdown := base.Add(time.Hour)
	n, err := s.EndAllActive(ctx, shutdown)
	if err != nil {
		t.Fatalf("EndAllActive: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 closed, got %d", n)
	}

	all, _ := s.All(ctx)
	for _, r := range all {
		if r.IsActive() {
			t.Errorf("session %s still active", r.ID)
		}
		if r.UserID != "carol" && !r.LogoutTime.Equal(shutdown) {
			t.Errorf("session %s: expected logout at shutdown, got %v", r.ID, r.LogoutTime)
		}
	}

	stats, _ := s.Stats(ctx)
	if stats.ActiveSessions != 0 {
		t.Errorf("expected 0 active, got %d", stats.ActiveSessions)
	}
}

func TestSessionStore_Stats_UniqueUsers(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	startAt(t, s, "a-1", "alice", base)
	_, _, _ = s.EndSession(ctx, "alice", base.Add(time.Minute))
	startAt(t, s, "a-2", "alice", base.Add(time.Hour))
	startAt(t, s, "b-1", "bob", base)
	startAt(t, s, "c-1", "carol", base)
	_, _ = s.PurgeUser(ctx, "carol")

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := types.SessionStats{TotalSessions: 3, ActiveSessions: 2, UniqueUsers: 2}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}

func TestSessionStore_ConcurrentStarts_OneActive(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()

	const workers = 64
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, _, err := s.StartSession(ctx, types.NewSession(fmt.Sprintf("s-%d", i), "alice", base))
			if err != nil {
				t.Errorf("StartSession: %v", err)
				return
			}
			ids[i] = got.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent starts returned different sessions: %s vs %s", ids[0], id)
		}
	}
	active, _ := s.Active(ctx)
	if len(active) != 1 {
		t.Errorf("expected 1 active session, got %d", len(active))
	}
}
