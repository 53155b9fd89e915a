package order

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Repository for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*Snapshot
}

// NewMemoryStore creates an in-memory order repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*Snapshot)}
}

// Put inserts or replaces an order snapshot.
func (s *MemoryStore) Put(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *snapshot
	copied.LineItems = append([]LineItem(nil), snapshot.LineItems...)
	s.orders[snapshot.ID] = &copied
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *snapshot
	copied.LineItems = append([]LineItem(nil), snapshot.LineItems...)
	return &copied, nil
}
