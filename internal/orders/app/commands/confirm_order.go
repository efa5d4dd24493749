package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/fulfillment/internal/idempotency"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

type ConfirmOrderCommand struct {
	OrderID        string
	IdempotencyKey string
}

func (c ConfirmOrderCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return errors.New("order_id is required")
	}
	if strings.TrimSpace(c.IdempotencyKey) == "" {
		return ports.ErrMissingIdempotencyKey
	}
	return nil
}

type ConfirmOrderHandler interface {
	Handle(ctx context.Context, cmd ConfirmOrderCommand) (*domain.Order, error)
}

// ConfirmOrderCommandHandler wraps the repository confirm with idempotent
// replay. A key that already succeeded returns the recorded response without
// touching the order again; a key bound to a different order is a conflict.
type ConfirmOrderCommandHandler struct {
	repo      ports.OrderRepository
	ledger    idempotency.Ledger
	events    ports.EventBus
	retention time.Duration
}

func NewConfirmOrderCommandHandler(
	repo ports.OrderRepository,
	ledger idempotency.Ledger,
	events ports.EventBus,
	retention time.Duration,
) *ConfirmOrderCommandHandler {
	return &ConfirmOrderCommandHandler{
		repo:      repo,
		ledger:    ledger,
		events:    events,
		retention: retention,
	}
}

func (h *ConfirmOrderCommandHandler) Handle(ctx context.Context, cmd ConfirmOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	record, err := h.ledger.Find(ctx, cmd.IdempotencyKey, idempotency.KindOrderConfirm)
	if err != nil {
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}
	if record != nil {
		if record.TargetID != cmd.OrderID {
			return nil, ports.ErrIdempotencyConflict
		}
		if len(record.Response) > 0 {
			var order domain.Order
			if err := json.Unmarshal(record.Response, &order); err != nil {
				return nil, fmt.Errorf("decode recorded response: %w", err)
			}
			return &order, nil
		}
		// A record without a payload means a crash between the status change
		// and the ledger write; the current order state is the truth.
		return h.repo.GetByID(ctx, cmd.OrderID)
	}

	order, err := h.repo.Confirm(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	response, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("encode confirmed order: %w", err)
	}

	now := time.Now().UTC()
	record = &idempotency.Record{
		Key:       cmd.IdempotencyKey,
		Kind:      idempotency.KindOrderConfirm,
		TargetID:  order.ID,
		Status:    idempotency.StatusSucceeded,
		Response:  response,
		CreatedAt: now,
		ExpiresAt: now.Add(h.retention),
	}
	// Save is a no-op on a duplicate (key, kind). Re-read so a concurrent
	// retry that won the insert race has its recorded payload returned here
	// too; every holder of the key must see the same bytes on replay.
	if err := h.ledger.Save(ctx, *record); err != nil {
		return nil, fmt.Errorf("save idempotency record: %w", err)
	}
	stored, err := h.ledger.Find(ctx, cmd.IdempotencyKey, idempotency.KindOrderConfirm)
	if err != nil {
		return nil, fmt.Errorf("reread idempotency record: %w", err)
	}
	if stored != nil {
		if stored.TargetID != cmd.OrderID {
			return nil, ports.ErrIdempotencyConflict
		}
		if len(stored.Response) > 0 {
			var recorded domain.Order
			if err := json.Unmarshal(stored.Response, &recorded); err != nil {
				return nil, fmt.Errorf("decode recorded response: %w", err)
			}
			order = &recorded
		}
	}

	if err := h.events.PublishOrderConfirmed(ctx, order.ID); err != nil {
		return order, fmt.Errorf("order confirmed but failed to publish event: %w", err)
	}

	return order, nil
}
