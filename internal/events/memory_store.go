package events

import (
	"context"
	"sync"
)

const memoryCap = 1000

// MemoryStore keeps the most recent events in a ring. For tests and
// single-node deployments without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events = append(s.events, &cp)
	if len(s.events) > memoryCap {
		s.events = s.events[len(s.events)-memoryCap:]
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		cp := *s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}
