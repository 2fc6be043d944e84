package service

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/accessmon/internal/metrics"
)

type userPurger interface {
	PurgeUser(ctx context.Context, userID string) (int64, error)
}

// RetrierConfig holds the parameters for NewPurgeRetrier.
type RetrierConfig struct {
	// Interval is how often pending purges are retried. Defaults to 30s.
	Interval time.Duration

	// Timeout bounds one purge attempt. Defaults to 5s.
	Timeout time.Duration
}

// PurgeRetrier runs session purges for removed users. A purge that fails is
// remembered and retried in the background until it succeeds, so a removed
// user's sessions are eventually deleted even across store hiccups.
type PurgeRetrier struct {
	ledger   userPurger
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPurgeRetrier creates a retrier but does not start it.
// Call Start to begin the background loop.
func NewPurgeRetrier(l userPurger, cfg RetrierConfig, clock clockwork.Clock, logger *log.Logger, m *metrics.Metrics) *PurgeRetrier {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &PurgeRetrier{
		ledger:   l,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// PurgeUser satisfies SessionPurger. The attempt ignores ctx's cancellation;
// on failure the user is queued for retry and the error is returned.
func (p *PurgeRetrier) PurgeUser(ctx context.Context, userID string) error {
	err := p.attempt(context.WithoutCancel(ctx), userID)

	p.mu.Lock()
	if err != nil {
		p.pending[userID] = struct{}{}
	} else {
		delete(p.pending, userID)
	}
	n := len(p.pending)
	p.mu.Unlock()

	p.metrics.SetPurgesPending(n)
	return err
}

// RetryPending attempts every queued purge once and returns how many remain.
func (p *PurgeRetrier) RetryPending(ctx context.Context) int {
	for _, userID := range p.Pending() {
		if ctx.Err() != nil {
			break
		}
		if err := p.attempt(ctx, userID); err != nil {
			continue
		}
		p.mu.Lock()
		delete(p.pending, userID)
		p.mu.Unlock()
		p.logger.Printf("session purge retried user_id=%s", userID)
	}

	p.mu.Lock()
	n := len(p.pending)
	p.mu.Unlock()

	p.metrics.SetPurgesPending(n)
	return n
}

// Pending returns the queued user ids in sorted order.
func (p *PurgeRetrier) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.pending))
	for id := range p.pending {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Start begins the background retry loop. The loop exits when ctx is
// cancelled or Stop is called.
func (p *PurgeRetrier) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Printf("purge retrier started interval=%s", p.interval)
}

// Stop signals the retrier to exit and waits for it. Safe to call when
// Start never ran.
func (p *PurgeRetrier) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// StopAndFlush stops the background loop and makes one last attempt at
// every queued purge within timeout, detached from ctx's cancellation. It
// returns the user ids whose sessions could still not be purged.
func (p *PurgeRetrier) StopAndFlush(ctx context.Context, timeout time.Duration) []string {
	p.Stop()

	if len(p.Pending()) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if p.RetryPending(ctx) == 0 {
		return nil
	}
	left := p.Pending()
	p.logger.Printf("session purges abandoned at exit count=%d user_ids=%v", len(left), left)
	return left
}

func (p *PurgeRetrier) loop(ctx context.Context) {
	defer close(p.done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if left := p.RetryPending(ctx); left > 0 {
				p.logger.Printf("session purges still pending count=%d", left)
			}
		}
	}
}

func (p *PurgeRetrier) attempt(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.ledger.PurgeUser(ctx, userID); err != nil {
		p.metrics.PurgeFailed()
		p.logger.Printf("session purge error user_id=%s err=%v", userID, err)
		return err
	}
	return nil
}
