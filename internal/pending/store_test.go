package pending

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreTakeOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if rec, _ := store.Take(ctx, "missing"); rec != nil {
		t.Fatalf("expected nil for missing key")
	}

	record := Record{
		Verifier:  "verifier",
		Nonce:     "nonce",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, "state", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, _ := store.Take(ctx, "state")
	if got == nil || got.Verifier != "verifier" || got.Nonce != "nonce" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if again, _ := store.Take(ctx, "state"); again != nil {
		t.Fatalf("record must not be reusable")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Save(ctx, "old", Record{ExpiresAt: now.Add(time.Second)})
	now = now.Add(time.Minute)

	if rec, _ := store.Take(ctx, "old"); rec != nil {
		t.Fatalf("expected expired record to be dropped")
	}

	_ = store.Save(ctx, "stale", Record{ExpiresAt: now.Add(time.Second)})
	now = now.Add(time.Minute)
	_ = store.Save(ctx, "fresh", Record{ExpiresAt: now.Add(time.Minute)})
	if store.Len() != 1 {
		t.Fatalf("expected sweep to leave one record, got %d", store.Len())
	}
}
