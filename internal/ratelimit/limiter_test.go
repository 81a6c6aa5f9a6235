package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(capacity int, windowSize time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := NewLimiter(capacity, windowSize)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestAcquire_BurstUpToCapacityIsImmediate(t *testing.T) {
	l, clock := newTestLimiter(15, time.Minute)

	for range 15 {
		require.NoError(t, l.Acquire(context.Background(), "user", 1))
	}
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_OverflowWaitsForWindowRemainder(t *testing.T) {
	l, clock := newTestLimiter(15, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "user", 15))
	clock.Advance(20 * time.Second)

	require.NoError(t, l.Acquire(ctx, "user", 1))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 40*time.Second, clock.sleeps[0])
}

func TestAcquire_WindowResetsAfterElapse(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "user", 5))
	clock.Advance(time.Minute)

	require.NoError(t, l.Acquire(ctx, "user", 5))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_IdentitiesAreIndependent(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "alice", 5))
	require.NoError(t, l.Acquire(ctx, "bob", 5))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_OversizedWeightAdmittedOnEmptyWindow(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	require.NoError(t, l.Acquire(context.Background(), "user", 20))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_ContextCancellation(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Acquire(ctx, "user", 1))

	cancel()
	err := l.Acquire(ctx, "user", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_ConcurrentSameIdentity(t *testing.T) {
	l, _ := newTestLimiter(100, time.Minute)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Acquire(context.Background(), "user", 1)
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, 50, l.windows["user"].count)
}

func TestReap_RemovesIdleIdentities(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "stale", 1))
	clock.Advance(2 * time.Hour)
	require.NoError(t, l.Acquire(ctx, "fresh", 1))

	reaped := l.Reap(time.Hour)
	assert.Equal(t, 1, reaped)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Contains(t, l.windows, "fresh")
	assert.NotContains(t, l.windows, "stale")
}
