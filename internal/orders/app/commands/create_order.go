package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/fulfillment/internal/idempotency"
	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

// LineItemRequest is a single requested position: which product, how many.
type LineItemRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int32 `json:"qty"`
}

type CreateOrderCommand struct {
	CustomerID int64
	Items      []LineItemRequest

	// IdempotencyKey is optional. When set, a retry with the same key replays
	// the recorded order instead of creating a second one.
	IdempotencyKey string
}

func (c CreateOrderCommand) Validate() error {
	if c.CustomerID <= 0 {
		return errors.New("customer_id must be positive")
	}
	if len(c.Items) == 0 {
		return errors.New("items must not be empty")
	}
	for _, item := range c.Items {
		if item.ProductID <= 0 {
			return errors.New("product_id must be positive")
		}
		if item.Qty <= 0 {
			return errors.New("qty must be positive")
		}
	}
	return nil
}

type CreateOrderHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
}

// CreateOrderCommandHandler prices the requested lines against the current
// catalog and delegates atomic persistence plus stock decrement to the
// repository. The unit price of each line is snapshotted here; later price
// changes never affect an existing order. When the command carries an
// idempotency key, the first successful result is recorded under
// (key, order_create) and every retry replays it without touching stock.
type CreateOrderCommandHandler struct {
	inv       inventory.Store
	repo      ports.OrderRepository
	ledger    idempotency.Ledger
	events    ports.EventBus
	retention time.Duration
}

func NewCreateOrderCommandHandler(
	inv inventory.Store,
	repo ports.OrderRepository,
	ledger idempotency.Ledger,
	events ports.EventBus,
	retention time.Duration,
) *CreateOrderCommandHandler {
	return &CreateOrderCommandHandler{
		inv:       inv,
		repo:      repo,
		ledger:    ledger,
		events:    events,
		retention: retention,
	}
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		record, err := h.ledger.Find(ctx, cmd.IdempotencyKey, idempotency.KindOrderCreate)
		if err != nil {
			return nil, fmt.Errorf("find idempotency record: %w", err)
		}
		if record != nil {
			return h.replay(ctx, record)
		}
	}

	var total int64
	items := make([]domain.LineItem, 0, len(cmd.Items))
	for _, req := range cmd.Items {
		product, err := h.inv.GetByID(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, inventory.ErrProductNotFound) {
				return nil, fmt.Errorf("product %d: %w", req.ProductID, inventory.ErrProductNotFound)
			}
			return nil, err
		}
		if product.Stock < req.Qty {
			return nil, &inventory.InsufficientStockError{ProductID: req.ProductID}
		}

		subtotal := int64(req.Qty) * product.PriceCents
		total += subtotal
		items = append(items, domain.LineItem{
			ProductID:      req.ProductID,
			Qty:            req.Qty,
			UnitPriceCents: product.PriceCents,
			SubtotalCents:  subtotal,
		})
	}

	orderID, err := generateOrderID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:         orderID,
		CustomerID: cmd.CustomerID,
		Status:     domain.StatusCreated,
		TotalCents: total,
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	// The repository re-checks stock under the transaction; the lookup above
	// only fails fast. A concurrent order may still win the race here.
	created, err := h.repo.CreateWithItemsAndDecrementStock(ctx, order)
	if err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		created, err = h.record(ctx, cmd.IdempotencyKey, created)
		if err != nil {
			return nil, err
		}
	}

	if err := h.events.PublishOrderCreated(ctx, created.ID); err != nil {
		return created, fmt.Errorf("order saved but failed to publish event: %w", err)
	}

	return created, nil
}

// record persists the outcome under (key, order_create). Save is a no-op on a
// duplicate (key, kind), so a concurrent retry that raced past the initial
// Find may have won the insert; the re-read returns whichever record stuck.
// A losing order is compensated by canceling it, which restores its stock.
func (h *CreateOrderCommandHandler) record(ctx context.Context, key string, created *domain.Order) (*domain.Order, error) {
	response, err := json.Marshal(created)
	if err != nil {
		return nil, fmt.Errorf("encode created order: %w", err)
	}

	now := time.Now().UTC()
	record := idempotency.Record{
		Key:       key,
		Kind:      idempotency.KindOrderCreate,
		TargetID:  created.ID,
		Status:    idempotency.StatusSucceeded,
		Response:  response,
		CreatedAt: now,
		ExpiresAt: now.Add(h.retention),
	}
	if err := h.ledger.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save idempotency record: %w", err)
	}

	stored, err := h.ledger.Find(ctx, key, idempotency.KindOrderCreate)
	if err != nil {
		return nil, fmt.Errorf("reread idempotency record: %w", err)
	}
	if stored == nil || stored.TargetID == created.ID {
		return created, nil
	}

	// Lost the insert race to a concurrent retry. Undo this order so its
	// stock goes back, then return the winner's result.
	if _, err := h.repo.CancelWithRules(ctx, created.ID, 0); err != nil {
		return nil, fmt.Errorf("undo duplicate order %s: %w", created.ID, err)
	}
	return h.replay(ctx, stored)
}

func (h *CreateOrderCommandHandler) replay(ctx context.Context, record *idempotency.Record) (*domain.Order, error) {
	if len(record.Response) > 0 {
		var order domain.Order
		if err := json.Unmarshal(record.Response, &order); err != nil {
			return nil, fmt.Errorf("decode recorded response: %w", err)
		}
		return &order, nil
	}
	// A record without a payload means a crash between the insert and the
	// ledger write; the stored order is the truth.
	return h.repo.GetByID(ctx, record.TargetID)
}

func generateOrderID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
