package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/service"
)

func TestPurgeRetrier_SuccessLeavesNothingPending(t *testing.T) {
	p := &flakyPurger{}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{}, clockwork.NewFakeClock(), silentLogger(), nil)

	require.NoError(t, r.PurgeUser(context.Background(), "alice"))
	assert.Empty(t, r.Pending())
	assert.Equal(t, []string{"alice"}, p.Purged())
}

func TestPurgeRetrier_FailureQueuesUntilRetrySucceeds(t *testing.T) {
	p := &flakyPurger{failures: 2}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{}, clockwork.NewFakeClock(), silentLogger(), nil)
	ctx := context.Background()

	assert.Error(t, r.PurgeUser(ctx, "alice"))
	assert.Equal(t, []string{"alice"}, r.Pending())

	assert.Equal(t, 1, r.RetryPending(ctx), "second attempt still fails")
	assert.Equal(t, 0, r.RetryPending(ctx))
	assert.Empty(t, r.Pending())
	assert.Equal(t, []string{"alice"}, p.Purged())
}

func TestPurgeRetrier_IgnoresCallerCancellation(t *testing.T) {
	p := &flakyPurger{}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{}, clockwork.NewFakeClock(), silentLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.PurgeUser(ctx, "alice"))
	assert.Equal(t, []string{"alice"}, p.Purged())
}

func TestPurgeRetrier_BackgroundLoopRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := &flakyPurger{failures: 1}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{Interval: time.Minute}, clock, silentLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Error(t, r.PurgeUser(ctx, "alice"))

	r.Start(ctx)
	defer r.Stop()

	require.NoError(t, clock.BlockUntilContext(ctx, 1), "ticker never registered")
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return len(r.Pending()) == 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, p.Purged())
}

func TestPurgeRetrier_StopWithoutStart(t *testing.T) {
	r := service.NewPurgeRetrier(&flakyPurger{}, service.RetrierConfig{}, nil, nil, nil)
	r.Stop()
}

func TestPurgeRetrier_StopIsIdempotent(t *testing.T) {
	r := service.NewPurgeRetrier(&flakyPurger{}, service.RetrierConfig{}, clockwork.NewFakeClock(), silentLogger(), nil)
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}

func TestPurgeRetrier_StopAndFlush_RunsQueuedPurges(t *testing.T) {
	p := &flakyPurger{failures: 1}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{Interval: time.Hour}, clockwork.NewFakeClock(), silentLogger(), nil)

	require.Error(t, r.PurgeUser(context.Background(), "alice"))
	require.Equal(t, []string{"alice"}, r.Pending())

	r.Start(context.Background())

	spent, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, r.StopAndFlush(spent, time.Second))
	assert.Empty(t, r.Pending())
	assert.Equal(t, []string{"alice"}, p.Purged())
}

func TestPurgeRetrier_StopAndFlush_ReturnsWhatIsLeft(t *testing.T) {
	p := &flakyPurger{failures: 100}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{}, clockwork.NewFakeClock(), silentLogger(), nil)

	require.Error(t, r.PurgeUser(context.Background(), "bob"))

	assert.Equal(t, []string{"bob"}, r.StopAndFlush(context.Background(), time.Second))
	assert.Empty(t, p.Purged())
}

func TestPurgeRetrier_StopAndFlush_NothingPending(t *testing.T) {
	p := &flakyPurger{}
	r := service.NewPurgeRetrier(p, service.RetrierConfig{}, clockwork.NewFakeClock(), silentLogger(), nil)

	assert.Nil(t, r.StopAndFlush(context.Background(), time.Second))
	assert.Zero(t, p.calls)
}
