package events_test

import (
	"context"
	"testing"

	"github.com/purrify/checkout-engine/internal/events"
	"github.com/purrify/checkout-engine/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := events.NewPostgresStore(db)
	ctx := context.Background()

	ev := events.New(events.TypeCheckoutBlocked, "req_pg", map[string]interface{}{
		"fingerprint": "abc123",
		"score":       float64(85),
	})
	if err := store.Record(ctx, ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != ev.ID || got[0].Type != events.TypeCheckoutBlocked {
		t.Errorf("got %+v", got[0])
	}
	if got[0].RequestID != "req_pg" {
		t.Errorf("requestId = %s", got[0].RequestID)
	}
	if got[0].Data["fingerprint"] != "abc123" {
		t.Errorf("data = %+v", got[0].Data)
	}
}
