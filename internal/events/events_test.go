package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestNewEventPopulatesFields(t *testing.T) {
	ev := New(TypeInvalidToken, "req_abc", map[string]interface{}{"orderId": "o1"})
	if ev.ID == "" {
		t.Error("expected generated ID")
	}
	if ev.Type != TypeInvalidToken {
		t.Errorf("type = %s", ev.Type)
	}
	if ev.RequestID != "req_abc" {
		t.Errorf("requestId = %s", ev.RequestID)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestMemoryStoreNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, typ := range []Type{TypeCheckoutStarted, TypeRiskAssessed, TypeCheckoutBlocked} {
		if err := s.Record(ctx, New(typ, "", nil)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != TypeCheckoutBlocked || got[1].Type != TypeRiskAssessed {
		t.Errorf("wrong order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestMemoryStoreCapsRetention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < memoryCap+50; i++ {
		_ = s.Record(ctx, New(TypeRiskAssessed, "", nil))
	}
	got, _ := s.ListRecent(ctx, 0)
	if len(got) != memoryCap {
		t.Errorf("retained %d, want %d", len(got), memoryCap)
	}
}

func TestLoggerWritesToStore(t *testing.T) {
	s := NewMemoryStore()
	l := NewLogger(s, nil, slog.Default())

	l.Emit(TypeRateLimited, "req_1", map[string]interface{}{"key": "1.2.3.4"})
	l.Close()

	got, _ := s.ListRecent(context.Background(), 10)
	if len(got) != 1 {
		t.Fatalf("stored %d events, want 1", len(got))
	}
	if got[0].Type != TypeRateLimited {
		t.Errorf("type = %s", got[0].Type)
	}
	if got[0].Data["key"] != "1.2.3.4" {
		t.Errorf("data = %+v", got[0].Data)
	}
}

func TestLoggerCloseDrainsQueue(t *testing.T) {
	s := NewMemoryStore()
	l := NewLogger(s, nil, slog.Default())

	const n = 50
	for i := 0; i < n; i++ {
		l.Emit(TypeCheckoutStarted, "", nil)
	}
	l.Close()

	got, _ := s.ListRecent(context.Background(), 0)
	if len(got)+int(l.Dropped()) != n {
		t.Errorf("stored %d + dropped %d, want %d total", len(got), l.Dropped(), n)
	}
}

func TestLoggerEmitAfterStoreError(t *testing.T) {
	l := NewLogger(failStore{}, nil, slog.Default())
	l.Emit(TypeSuspiciousActivity, "", nil)
	l.Close() // must not hang or panic
}

func TestNilLoggerEmitIsNoop(t *testing.T) {
	var l *Logger
	l.Emit(TypeCheckoutBlocked, "", nil) // must not panic
}

type failStore struct{}

func (failStore) Record(context.Context, *Event) error { return errors.New("store down") }
func (failStore) ListRecent(context.Context, int) ([]*Event, error) {
	return nil, errors.New("store down")
}

func TestFeedClientFiltering(t *testing.T) {
	all := &client{}
	filtered := &client{sub: Subscription{EventTypes: []Type{TypeCheckoutBlocked}}}

	if !all.wants(TypeRiskAssessed) {
		t.Error("empty subscription should receive all types")
	}
	if !filtered.wants(TypeCheckoutBlocked) {
		t.Error("should receive subscribed type")
	}
	if filtered.wants(TypeRiskAssessed) {
		t.Error("should not receive unsubscribed type")
	}
}

func TestFeedRunShutdown(t *testing.T) {
	f := NewFeed(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.Run(ctx)
	}()

	f.Broadcast(New(TypeRiskAssessed, "", nil))
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not shut down")
	}

	if f.ClientCount() != 0 {
		t.Errorf("clients after shutdown = %d", f.ClientCount())
	}
}
