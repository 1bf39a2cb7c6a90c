// Package ratelimit bounds how many calls may start inside any rolling window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock lets tests drive time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Window is a sliding-log limiter: it remembers the start time of each of the
// last limit calls and admits a new one only when fewer than limit started
// within the preceding window. Unlike a token bucket it never allows a burst
// that straddles two windows to exceed limit.
type Window struct {
	limit  int
	window time.Duration
	clock  Clock

	mu     sync.Mutex
	starts []time.Time
}

type Option func(*Window)

func WithClock(c Clock) Option {
	return func(w *Window) { w.clock = c }
}

func NewWindow(limit int, window time.Duration, opts ...Option) (*Window, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate window must be positive, got %s", window)
	}

	w := &Window{limit: limit, window: window, clock: systemClock{}}
	for _, opt := range opts {
		opt(w)
	}
	w.starts = make([]time.Time, 0, limit)
	return w, nil
}

func (w *Window) Limit() int { return w.limit }

func (w *Window) Window() time.Duration { return w.window }

// Wait blocks until a call may start and records that start. It returns the
// context error if ctx ends first, in which case nothing is recorded.
func (w *Window) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.mu.Lock()
		delay := w.reserve(w.clock.Now())
		w.mu.Unlock()

		if delay <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(delay):
		}
	}
}

// reserve records a start at now and returns 0, or returns how long to wait
// before trying again. Must be called with w.mu held.
func (w *Window) reserve(now time.Time) time.Duration {
	cutoff := now.Add(-w.window)

	expired := 0
	for expired < len(w.starts) && !w.starts[expired].After(cutoff) {
		expired++
	}
	if expired > 0 {
		w.starts = append(w.starts[:0], w.starts[expired:]...)
	}

	if len(w.starts) < w.limit {
		w.starts = append(w.starts, now)
		return 0
	}

	return w.starts[0].Sub(cutoff)
}
