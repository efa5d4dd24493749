package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

type CancelOrderCommand struct {
	OrderID string
}

func (c CancelOrderCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return errors.New("order_id is required")
	}
	return nil
}

type CancelOrderHandler interface {
	Handle(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error)
}

// CancelOrderCommandHandler cancels an order under the configured time window.
// The repository evaluates the rules while holding the order row: a CREATED
// order always reverses its stock, a CONFIRMED one only inside the window, a
// CANCELED one is returned unchanged.
type CancelOrderCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	window time.Duration
}

func NewCancelOrderCommandHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
	window time.Duration,
) *CancelOrderCommandHandler {
	return &CancelOrderCommandHandler{
		repo:   repo,
		events: events,
		window: window,
	}
}

func (h *CancelOrderCommandHandler) Handle(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.CancelWithRules(ctx, cmd.OrderID, h.window)
	if err != nil {
		return nil, err
	}

	if err := h.events.PublishOrderCanceled(ctx, order.ID); err != nil {
		return order, fmt.Errorf("order canceled but failed to publish event: %w", err)
	}

	return order, nil
}
