package velocity

import (
	"context"
	"sync"
	"time"
)

// maxEntriesPerKey caps per-key history so a hot identity can't grow unbounded.
const maxEntriesPerKey = 1000

// MemoryCounter is an in-memory Counter for demo/test use. Entries older than
// the longest window are pruned on write.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// NewMemoryCounter creates an in-memory velocity counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the clock (for tests).
func (c *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	c.now = now
	return c
}

func (c *MemoryCounter) Record(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entries := append(c.entries[key], now)

	// Prune anything outside the widest window.
	cutoff := now.Add(-WindowDay)
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	entries = entries[start:]
	if len(entries) > maxEntriesPerKey {
		entries = entries[len(entries)-maxEntriesPerKey:]
	}

	c.entries[key] = entries
	return nil
}

func (c *MemoryCounter) CountSince(ctx context.Context, key string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-window)
	count := 0
	for _, ts := range c.entries[key] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count, nil
}
