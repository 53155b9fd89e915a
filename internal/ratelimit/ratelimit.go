// Package ratelimit provides per-identity admission control shared by all
// sensitive endpoints.
//
// Each (identity, class) pair gets a fixed-window counter. The limiter always
// returns quota metadata so handlers can emit X-RateLimit headers whether the
// request is allowed or denied.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Class names a limit policy: how many requests per window.
type Class struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Standard classes.
var (
	// Sensitive covers checkout and risk scoring: abuse is cheap to
	// false-positive and expensive to miss.
	Sensitive = Class{Name: "sensitive", Limit: 5, Window: time.Minute}
	// Default covers everything else.
	Default = Class{Name: "default", Limit: 60, Window: time.Minute}
)

// Decision reports the admission verdict plus quota metadata.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    int64 // epoch seconds when the window resets
	RetryAfter int   // seconds; set only when denied
}

// Limiter is the admission-control gate.
type Limiter interface {
	// Check consumes one request slot for key in the given class and
	// returns the decision. Safe for concurrent use.
	Check(ctx context.Context, key string, class Class) Decision
}

// MemoryLimiter keeps fixed-window counters in memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	stop    chan struct{}
}

type window struct {
	count   int
	startAt time.Time
}

// NewMemoryLimiter creates an in-memory limiter with a background sweeper
// that drops idle windows. Call Stop when done.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// WithClock overrides the clock (for tests).
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Stop stops the cleanup goroutine.
func (l *MemoryLimiter) Stop() {
	close(l.stop)
}

func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-10 * time.Minute)
			for key, w := range l.windows {
				if w.startAt.Before(cutoff) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

func (l *MemoryLimiter) Check(ctx context.Context, key string, class Class) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	mapKey := class.Name + ":" + key

	w, ok := l.windows[mapKey]
	if !ok || now.Sub(w.startAt) >= class.Window {
		w = &window{startAt: now}
		l.windows[mapKey] = w
	}

	resetAt := w.startAt.Add(class.Window)

	if w.count >= class.Limit {
		retryAfter := int(resetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{
			Allowed:    false,
			Limit:      class.Limit,
			Remaining:  0,
			ResetAt:    resetAt.Unix(),
			RetryAfter: retryAfter,
		}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Limit:     class.Limit,
		Remaining: class.Limit - w.count,
		ResetAt:   resetAt.Unix(),
	}
}
