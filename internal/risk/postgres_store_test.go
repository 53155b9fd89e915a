package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/purrify/checkout-engine/internal/risk"
	"github.com/purrify/checkout-engine/internal/testutil"
)

func TestPostgresStoreListByFingerprint(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := risk.NewPostgresStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"risk_a", "risk_b", "risk_c"} {
		a := &risk.Assessment{
			ID:             id,
			Score:          40 + i,
			Tier:           risk.TierMedium,
			Recommendation: risk.RecommendReview,
			Flags: []risk.Flag{
				{Category: "amount", Severity: risk.SeverityMedium, Message: "elevated amount", Score: 10},
			},
			Explanation: "elevated amount",
			Fingerprint: "fp-shared",
			EvaluatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(ctx, a); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	got, err := store.ListByFingerprint(ctx, "fp-shared", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "risk_c" {
		t.Errorf("newest first expected, got %s", got[0].ID)
	}
	if len(got[0].Flags) != 1 || got[0].Flags[0].Category != "amount" {
		t.Errorf("flags not round-tripped: %+v", got[0].Flags)
	}

	none, err := store.ListByFingerprint(ctx, "fp-other", 10)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no rows for unrelated fingerprint, got %d", len(none))
	}
}
