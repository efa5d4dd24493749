package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/dejobratic/fulfillment/internal/idempotency"
	"github.com/dejobratic/fulfillment/internal/idempotency/memory"
)

func record(key string, kind idempotency.Kind, targetID string, expiresAt time.Time) idempotency.Record {
	return idempotency.Record{
		Key:       key,
		Kind:      kind,
		TargetID:  targetID,
		Status:    idempotency.StatusSucceeded,
		Response:  []byte(`{"id":"` + targetID + `"}`),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func TestStoreFindAndSave(t *testing.T) {
	ctx := context.Background()
	live := time.Now().UTC().Add(24 * time.Hour)

	t.Run("returns saved record", func(t *testing.T) {
		store := memory.NewStore()

		if err := store.Save(ctx, record("key-1", idempotency.KindOrderConfirm, "order-1", live)); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := store.Find(ctx, "key-1", idempotency.KindOrderConfirm)
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got == nil || got.TargetID != "order-1" {
			t.Fatalf("expected record for order-1, got %+v", got)
		}
	})

	t.Run("returns nil for absent key", func(t *testing.T) {
		store := memory.NewStore()

		got, err := store.Find(ctx, "missing", idempotency.KindOrderConfirm)
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got != nil {
			t.Errorf("expected nil record, got %+v", got)
		}
	})

	t.Run("scopes records per kind", func(t *testing.T) {
		store := memory.NewStore()

		if err := store.Save(ctx, record("shared", idempotency.KindOrderCreate, "order-1", live)); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := store.Find(ctx, "shared", idempotency.KindOrderConfirm)
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got != nil {
			t.Errorf("expected no record for the other kind, got %+v", got)
		}
	})

	t.Run("treats expired records as absent", func(t *testing.T) {
		store := memory.NewStore()
		expired := time.Now().UTC().Add(-time.Minute)

		if err := store.Save(ctx, record("key-1", idempotency.KindOrderConfirm, "order-1", expired)); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := store.Find(ctx, "key-1", idempotency.KindOrderConfirm)
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got != nil {
			t.Errorf("expected expired record to be absent, got %+v", got)
		}
	})

	t.Run("duplicate save keeps the first live record", func(t *testing.T) {
		store := memory.NewStore()

		if err := store.Save(ctx, record("key-1", idempotency.KindOrderConfirm, "order-1", live)); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.Save(ctx, record("key-1", idempotency.KindOrderConfirm, "order-2", live)); err != nil {
			t.Fatalf("duplicate save: %v", err)
		}

		got, err := store.Find(ctx, "key-1", idempotency.KindOrderConfirm)
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got.TargetID != "order-1" {
			t.Errorf("expected first record to win, got target %s", got.TargetID)
		}
	})

	t.Run("expired record can be replaced", func(t *testing.T) {
		store := memory.NewStore()
		expired := time.Now().UTC().Add(-time.Minute)

		if err := store.Save(ctx, record("key-1", idempotency.KindOrderConfirm, "order-1", expired)); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.Save(ctx, record("key-1", idempotency.KindOrderConfirm, "order-2", live)); err != nil {
			t.Fatalf("replace save: %v", err)
		}

		got, err := store.Find(ctx, "key-1", idempotency.KindOrderConfirm)
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got == nil || got.TargetID != "order-2" {
			t.Errorf("expected replacement record, got %+v", got)
		}
	})
}
