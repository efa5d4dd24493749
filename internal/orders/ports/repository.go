package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/fulfillment/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
//
// CreateWithItemsAndDecrementStock persists the order and its line items and
// decrements stock for every line inside one atomic unit; if any line cannot
// be covered, nothing is persisted and inventory.InsufficientStockError names
// the failing product.
//
// Confirm holds an exclusive lock on the order row while it moves a CREATED
// order to CONFIRMED. Confirming a CONFIRMED order returns the current state
// unchanged; confirming a CANCELED order fails with ErrOrderCanceled so a
// terminal order can never be resurrected.
//
// CancelWithRules holds an exclusive lock on the order row while it evaluates
// the cancellation rules: canceling a CANCELED order is a no-op, a CREATED
// order is always reversible, a CONFIRMED order only within window of its
// creation time. Stock reversal and the status change commit together or not
// at all.
type OrderRepository interface {
	CreateWithItemsAndDecrementStock(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	Confirm(ctx context.Context, id string) (*domain.Order, error)
	CancelWithRules(ctx context.Context, id string, window time.Duration) (*domain.Order, error)
}

// ListFilter narrows list queries by status and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrCancellationWindowExpired is returned when a confirmed order is too
	// old to cancel.
	ErrCancellationWindowExpired = errors.New("cancellation window expired")

	// ErrOrderCanceled is returned when a confirm targets an order already in
	// the terminal CANCELED state.
	ErrOrderCanceled = errors.New("order is canceled")

	// ErrIdempotencyConflict is returned when an idempotency key is replayed
	// against a different target than the one it was first bound to.
	ErrIdempotencyConflict = errors.New("idempotency key used for different target")

	// ErrMissingIdempotencyKey is returned when a write that requires an
	// idempotency key is attempted without one.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
)
