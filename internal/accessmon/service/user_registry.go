package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
	"github.com/BrandonDHaskell/accessmon/internal/metrics"
)

// RegistrationPolicy decides what Register does with profiles and repeat
// registrations.
type RegistrationPolicy string

const (
	// PolicyUpsert accepts a bare user id. A profile, when given, is
	// validated and kept on first registration; a repeat registration
	// refreshes the access time.
	PolicyUpsert RegistrationPolicy = "upsert"
	// PolicyStrict requires a full profile and rejects repeat
	// registrations with ErrDuplicateUser.
	PolicyStrict RegistrationPolicy = "strict"
)

// ParsePolicy maps a config value to a policy. Unknown values report false.
func ParsePolicy(s string) (RegistrationPolicy, bool) {
	switch RegistrationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyUpsert:
		return PolicyUpsert, true
	case PolicyStrict:
		return PolicyStrict, true
	default:
		return PolicyUpsert, false
	}
}

// SessionPurger deletes every session a removed user left behind.
type SessionPurger interface {
	PurgeUser(ctx context.Context, userID string) error
}

type RegistryOptions struct {
	Policy  RegistrationPolicy
	Clock   clockwork.Clock
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// UserRegistry is the set of known users ordered by last access time.
type UserRegistry struct {
	store   store.UserStore
	policy  RegistrationPolicy
	clock   clockwork.Clock
	logger  *log.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	purgers []SessionPurger

	// gate is held exclusively by Remove across the delete and the purge,
	// and shared by WithRegistered, so no session is written for a user
	// that is being removed.
	gate sync.RWMutex
}

func NewUserRegistry(st store.UserStore, opts RegistryOptions) *UserRegistry {
	if opts.Policy == "" {
		opts.Policy = PolicyUpsert
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &UserRegistry{
		store:   st,
		policy:  opts.Policy,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// OnRemove adds p to the purgers run after a user is removed.
func (r *UserRegistry) OnRemove(p SessionPurger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgers = append(r.purgers, p)
}

func (r *UserRegistry) Policy() RegistrationPolicy { return r.policy }

// Register adds userID to the registry, or refreshes its access time when it
// is already present. The bool is true for a new user. Invalid input never
// changes the registry.
func (r *UserRegistry) Register(ctx context.Context, userID string, profile *types.Profile) (types.AccessRecord, bool, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return types.AccessRecord{}, false, err
	}

	if profile == nil && r.policy == PolicyStrict {
		return types.AccessRecord{}, false, ErrInvalidProfile
	}

	rec := types.AccessRecord{UserID: id, LastAccessTime: r.clock.Now().UTC()}
	if profile != nil {
		p, err := normalizeProfile(*profile)
		if err != nil {
			return types.AccessRecord{}, false, err
		}
		rec.Profile = &p
	}

	if r.policy == PolicyStrict {
		out, err := r.store.Insert(ctx, rec)
		if errors.Is(err, store.ErrUserExists) {
			return types.AccessRecord{}, false, ErrDuplicateUser
		}
		if err != nil {
			return types.AccessRecord{}, false, fmt.Errorf("Register: %w", err)
		}
		r.noteRegistered(out)
		return out, true, nil
	}

	out, created, err := r.store.Upsert(ctx, rec)
	if err != nil {
		return types.AccessRecord{}, false, fmt.Errorf("Register: %w", err)
	}
	if created {
		r.noteRegistered(out)
	}
	return out, created, nil
}

func (r *UserRegistry) noteRegistered(rec types.AccessRecord) {
	r.metrics.UserRegistered()
	r.logger.Printf("user registered user_id=%s size=%d capacity=%d",
		rec.UserID, r.store.Size(), r.store.Capacity())
}

// Remove deletes userID and then purges its sessions. It reports false when
// the user was not registered. The purge does not inherit ctx's
// cancellation: once the user is gone its sessions must go too.
func (r *UserRegistry) Remove(ctx context.Context, userID string) (bool, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return false, nil
	}

	r.gate.Lock()
	defer r.gate.Unlock()

	removed, err := r.store.Remove(ctx, id)
	if err != nil {
		return false, fmt.Errorf("Remove: %w", err)
	}
	if !removed {
		return false, nil
	}

	r.metrics.UserRemoved()
	r.logger.Printf("user removed user_id=%s size=%d", id, r.store.Size())

	r.mu.RLock()
	purgers := append([]SessionPurger(nil), r.purgers...)
	r.mu.RUnlock()

	purgeCtx := context.WithoutCancel(ctx)
	for _, p := range purgers {
		if err := p.PurgeUser(purgeCtx, id); err != nil {
			r.logger.Printf("session purge deferred user_id=%s err=%v", id, err)
		}
	}
	return true, nil
}

func (r *UserRegistry) Find(ctx context.Context, userID string) (types.AccessRecord, bool, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return types.AccessRecord{}, false, nil
	}
	return r.store.Find(ctx, id)
}

func (r *UserRegistry) IsRegistered(ctx context.Context, userID string) (bool, error) {
	_, ok, err := r.Find(ctx, userID)
	return ok, err
}

// WithRegistered runs fn only if userID is registered, and keeps Remove
// out until fn returns. It reports false without calling fn for unknown
// users. fn must not call back into Remove.
func (r *UserRegistry) WithRegistered(ctx context.Context, userID string, fn func(ctx context.Context) error) (bool, error) {
	r.gate.RLock()
	defer r.gate.RUnlock()

	ok, err := r.IsRegistered(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return true, fn(ctx)
}

// Touch refreshes a registered user's access time. Unknown users are ignored.
func (r *UserRegistry) Touch(ctx context.Context, userID string) error {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil
	}
	if _, _, err := r.store.Touch(ctx, id, r.clock.Now().UTC()); err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	return nil
}

// ListAll returns every record, oldest access first. The slice is a copy.
func (r *UserRegistry) ListAll(ctx context.Context) ([]types.AccessRecord, error) {
	return r.store.List(ctx)
}

func (r *UserRegistry) Size() int     { return r.store.Size() }
func (r *UserRegistry) Capacity() int { return r.store.Capacity() }

// Seed registers ids that are not present yet without touching the ones
// that are. Used for dev startup.
func (r *UserRegistry) Seed(ctx context.Context, userIDs []string) (int, error) {
	added := 0
	for _, raw := range userIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		_, err := r.store.Insert(ctx, types.AccessRecord{UserID: id, LastAccessTime: r.clock.Now().UTC()})
		if errors.Is(err, store.ErrUserExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("Seed %s: %w", id, err)
		}
		added++
	}
	if added > 0 {
		r.logger.Printf("seeded users count=%d", added)
	}
	return added, nil
}
