package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*Assessment // fingerprint → assessments
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*Assessment),
	}
}

func (s *MemoryStore) Record(ctx context.Context, assessment *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *assessment
	a.Flags = append([]Flag(nil), assessment.Flags...)
	s.assessments[assessment.Fingerprint] = append(s.assessments[assessment.Fingerprint], &a)
	return nil
}

func (s *MemoryStore) ListByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[fingerprint]
	if len(all) == 0 {
		return nil, nil
	}

	// Return most recent first, up to limit
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*Assessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		a := *all[i]
		a.Flags = append([]Flag(nil), all[i].Flags...)
		result = append(result, &a)
	}
	return result, nil
}
