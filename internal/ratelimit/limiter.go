// Package ratelimit paces translation-backend calls with a sliding window
// per caller identity.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultCapacity matches the weakest upstream tier.
	DefaultCapacity = 15
	// DefaultWindow is the admission window size.
	DefaultWindow = time.Minute
)

// window tracks one identity's admissions inside the current window.
type window struct {
	start      time.Time
	count      int
	lastAccess time.Time
}

// Limiter admits up to capacity units per window for each identity. Bursts
// up to capacity pass immediately; overflow suspends until the window turns
// over. Safe for concurrent use by requests sharing an identity.
type Limiter struct {
	capacity int
	window   time.Duration

	mu      sync.Mutex
	windows map[string]*window

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLimiter(capacity int, windowSize time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &Limiter{
		capacity: capacity,
		window:   windowSize,
		windows:  make(map[string]*window),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Acquire reserves weight units for identity, suspending until the current
// window has room. The wait is cooperative: it wakes when the window turns
// over or the context is canceled. A weight above capacity is admitted on an
// otherwise empty window rather than blocking forever.
func (l *Limiter) Acquire(ctx context.Context, identity string, weight int) error {
	if weight <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		now := l.now()
		w, ok := l.windows[identity]
		if !ok {
			w = &window{start: now}
			l.windows[identity] = w
		}
		if now.Sub(w.start) >= l.window {
			w.start = now
			w.count = 0
		}
		if w.count+weight <= l.capacity || w.count == 0 {
			w.count += weight
			w.lastAccess = now
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(w.start)
		w.lastAccess = now
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reap drops identities idle for longer than maxIdle and returns how many
// were removed.
func (l *Limiter) Reap(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	reaped := 0
	for identity, w := range l.windows {
		if now.Sub(w.lastAccess) > maxIdle {
			delete(l.windows, identity)
			reaped++
		}
	}
	return reaped
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
