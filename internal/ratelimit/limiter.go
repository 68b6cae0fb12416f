// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Package ratelimit provides a rolling-window admission limiter for
// outbound TMDB requests.
//
// Unlike a token bucket, the limiter guarantees that no more than R
// admissions occur in ANY sliding W interval, matching TMDB's documented
// 40-requests-per-10-seconds policy. Acquire never rejects; it blocks the
// caller until a slot frees up or the context is canceled.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most limit calls in any rolling window. Safe for
// concurrent use; fairness among blocked callers is best-effort, not FIFO.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration

	// admissions holds the timestamps of calls admitted within the last
	// window, oldest first.
	admissions []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter admitting at most limit calls per window.
// A non-positive limit or window panics: both come from validated config.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 || window <= 0 {
		panic("ratelimit: limit and window must be positive")
	}
	return &Limiter{
		limit:      limit,
		window:     window,
		admissions: make([]time.Time, 0, limit),
		now:        time.Now,
	}
}

// Acquire blocks until the caller may proceed, then records the admission.
// It returns a non-nil error only when ctx is canceled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.expire(now)

		if len(l.admissions) < l.limit {
			l.admissions = append(l.admissions, now)
			l.mu.Unlock()
			return nil
		}

		// The window is full; the earliest admission leaving the window
		// frees the next slot.
		wait := l.admissions[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// expire drops admissions older than one window (callers hold l.mu).
func (l *Limiter) expire(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admissions) && !l.admissions[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.admissions = append(l.admissions[:0], l.admissions[i:]...)
	}
}

// Pending reports how many admissions currently count against the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expire(l.now())
	return len(l.admissions)
}
