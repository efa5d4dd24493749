package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/fulfillment/internal/idempotency"
	"github.com/dejobratic/fulfillment/internal/orders/app/commands"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

func confirmedOrder(id string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:         id,
		CustomerID: 7,
		Status:     domain.StatusConfirmed,
		TotalCents: 1000,
		Items: []domain.LineItem{
			{ProductID: 1, Qty: 2, UnitPriceCents: 500, SubtotalCents: 1000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestConfirmOrder(t *testing.T) {
	retention := 24 * time.Hour

	t.Run("confirms order and records the outcome", func(t *testing.T) {
		var saved *idempotency.Record
		repo := &mockRepository{
			confirmFn: func(ctx context.Context, id string) (*domain.Order, error) {
				return confirmedOrder(id), nil
			},
		}
		ledger := &mockLedger{
			saveFn: func(ctx context.Context, record idempotency.Record) error {
				saved = &record
				return nil
			},
		}
		handler := commands.NewConfirmOrderCommandHandler(repo, ledger, &mockEventBus{}, retention)

		order, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{
			OrderID:        "order-1",
			IdempotencyKey: "key-1",
		})

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if order.Status != domain.StatusConfirmed {
			t.Errorf("expected status %s, got %s", domain.StatusConfirmed, order.Status)
		}

		if saved == nil {
			t.Fatal("expected idempotency record to be saved")
		}

		if saved.Key != "key-1" || saved.Kind != idempotency.KindOrderConfirm {
			t.Errorf("expected record keyed (key-1, order_confirm), got (%s, %s)", saved.Key, saved.Kind)
		}

		if saved.TargetID != "order-1" {
			t.Errorf("expected target order-1, got %s", saved.TargetID)
		}

		if saved.Status != idempotency.StatusSucceeded {
			t.Errorf("expected status %s, got %s", idempotency.StatusSucceeded, saved.Status)
		}

		if got := saved.ExpiresAt.Sub(saved.CreatedAt); got != retention {
			t.Errorf("expected retention %v, got %v", retention, got)
		}
	})

	t.Run("replays recorded response without touching the order", func(t *testing.T) {
		recorded := confirmedOrder("order-1")
		response, err := json.Marshal(recorded)
		if err != nil {
			t.Fatalf("marshal recorded order: %v", err)
		}

		confirmCalls := 0
		repo := &mockRepository{
			confirmFn: func(ctx context.Context, id string) (*domain.Order, error) {
				confirmCalls++
				return confirmedOrder(id), nil
			},
		}
		ledger := &mockLedger{
			findFn: func(ctx context.Context, key string, kind idempotency.Kind) (*idempotency.Record, error) {
				return &idempotency.Record{
					Key:      key,
					Kind:     kind,
					TargetID: "order-1",
					Status:   idempotency.StatusSucceeded,
					Response: response,
				}, nil
			},
		}
		handler := commands.NewConfirmOrderCommandHandler(repo, ledger, &mockEventBus{}, retention)

		order, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{
			OrderID:        "order-1",
			IdempotencyKey: "key-1",
		})

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if confirmCalls != 0 {
			t.Errorf("expected repository confirm to be skipped, called %d times", confirmCalls)
		}

		replayed, err := json.Marshal(order)
		if err != nil {
			t.Fatalf("marshal replayed order: %v", err)
		}

		if string(replayed) != string(response) {
			t.Errorf("expected replay to match recorded response\nrecorded: %s\nreplayed: %s", response, replayed)
		}
	})

	t.Run("returns the stored response when a concurrent retry wins the record insert", func(t *testing.T) {
		// The winner recorded a confirm with a different timestamp than the
		// local one; every holder of the key must see the winner's bytes.
		winner := confirmedOrder("order-1")
		winner.UpdatedAt = winner.UpdatedAt.Add(-time.Minute)
		winnerBody, err := json.Marshal(winner)
		if err != nil {
			t.Fatalf("marshal recorded order: %v", err)
		}

		var finds int
		ledger := &mockLedger{
			findFn: func(ctx context.Context, key string, kind idempotency.Kind) (*idempotency.Record, error) {
				finds++
				if finds == 1 {
					return nil, nil
				}
				return &idempotency.Record{
					Key:      key,
					Kind:     kind,
					TargetID: "order-1",
					Status:   idempotency.StatusSucceeded,
					Response: winnerBody,
				}, nil
			},
			saveFn: func(ctx context.Context, record idempotency.Record) error {
				// Duplicate (key, kind): the insert silently keeps the winner.
				return nil
			},
		}
		repo := &mockRepository{
			confirmFn: func(ctx context.Context, id string) (*domain.Order, error) {
				return confirmedOrder(id), nil
			},
		}
		handler := commands.NewConfirmOrderCommandHandler(repo, ledger, &mockEventBus{}, retention)

		order, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{
			OrderID:        "order-1",
			IdempotencyKey: "key-1",
		})

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		got, err := json.Marshal(order)
		if err != nil {
			t.Fatalf("marshal returned order: %v", err)
		}

		if string(got) != string(winnerBody) {
			t.Errorf("expected the winner's recorded response\nrecorded: %s\nreturned: %s", winnerBody, got)
		}
	})

	t.Run("returns conflict when key is bound to a different order", func(t *testing.T) {
		ledger := &mockLedger{
			findFn: func(ctx context.Context, key string, kind idempotency.Kind) (*idempotency.Record, error) {
				return &idempotency.Record{
					Key:      key,
					Kind:     kind,
					TargetID: "other-order",
					Status:   idempotency.StatusSucceeded,
				}, nil
			},
		}
		handler := commands.NewConfirmOrderCommandHandler(&mockRepository{}, ledger, &mockEventBus{}, retention)

		_, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{
			OrderID:        "order-1",
			IdempotencyKey: "key-1",
		})

		if !errors.Is(err, ports.ErrIdempotencyConflict) {
			t.Errorf("expected ErrIdempotencyConflict, got: %v", err)
		}
	})

	t.Run("re-reads the order when the record has no payload", func(t *testing.T) {
		repo := &mockRepository{
			getByIDFn: func(ctx context.Context, id string) (*domain.Order, error) {
				return confirmedOrder(id), nil
			},
		}
		ledger := &mockLedger{
			findFn: func(ctx context.Context, key string, kind idempotency.Kind) (*idempotency.Record, error) {
				return &idempotency.Record{
					Key:      key,
					Kind:     kind,
					TargetID: "order-1",
					Status:   idempotency.StatusCreated,
				}, nil
			},
		}
		handler := commands.NewConfirmOrderCommandHandler(repo, ledger, &mockEventBus{}, retention)

		order, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{
			OrderID:        "order-1",
			IdempotencyKey: "key-1",
		})

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if order == nil || order.ID != "order-1" {
			t.Fatalf("expected order-1 to be re-read, got %+v", order)
		}
	})

	t.Run("requires an idempotency key", func(t *testing.T) {
		handler := commands.NewConfirmOrderCommandHandler(&mockRepository{}, &mockLedger{}, &mockEventBus{}, retention)

		_, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{OrderID: "order-1"})

		if !errors.Is(err, ports.ErrMissingIdempotencyKey) {
			t.Errorf("expected ErrMissingIdempotencyKey, got: %v", err)
		}
	})

	t.Run("returns not found for unknown order", func(t *testing.T) {
		repo := &mockRepository{
			confirmFn: func(ctx context.Context, id string) (*domain.Order, error) {
				return nil, ports.ErrNotFound
			},
		}
		handler := commands.NewConfirmOrderCommandHandler(repo, &mockLedger{}, &mockEventBus{}, retention)

		_, err := handler.Handle(context.Background(), commands.ConfirmOrderCommand{
			OrderID:        "missing",
			IdempotencyKey: "key-1",
		})

		if !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}
