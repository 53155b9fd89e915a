package payments

import (
	"context"
	"sync"
)

// StaticProcessor is an in-process Processor for tests and local development.
// It returns a fixed session and remembers the last request it saw.
type StaticProcessor struct {
	mu      sync.Mutex
	Session Session
	Err     error
	last    *SessionRequest
	calls   int
}

func NewStaticProcessor() *StaticProcessor {
	return &StaticProcessor{
		Session: Session{ID: "cs_test_static", URL: "https://pay.example.com/cs_test_static"},
	}
}

func (p *StaticProcessor) CreateSession(_ context.Context, req *SessionRequest) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = req
	if p.Err != nil {
		return nil, p.Err
	}
	s := p.Session
	return &s, nil
}

// LastRequest returns the most recent request, or nil if none.
func (p *StaticProcessor) LastRequest() *SessionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Calls returns how many times CreateSession has been invoked.
func (p *StaticProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
