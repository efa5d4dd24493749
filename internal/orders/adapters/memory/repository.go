package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

// Repository provides an in-memory order store useful for local development
// and tests. Stock effects are applied against the given inventory store; the
// repository mutex emulates the transactional unit the postgres adapter gets
// from the database.
type Repository struct {
	mu     sync.Mutex
	inv    inventory.Store
	orders map[string]domain.Order
}

// NewRepository constructs a new in-memory repository backed by inv for stock.
func NewRepository(inv inventory.Store) *Repository {
	return &Repository{inv: inv, orders: make(map[string]domain.Order)}
}

// CreateWithItemsAndDecrementStock stores the order after decrementing stock
// for every line. A failing line undoes the decrements of earlier lines.
func (r *Repository) CreateWithItemsAndDecrementStock(ctx context.Context, order domain.Order) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var applied []domain.LineItem
	for _, item := range order.Items {
		if err := r.inv.DecrementIfAvailable(ctx, item.ProductID, item.Qty); err != nil {
			for _, done := range applied {
				_ = r.inv.Increment(ctx, done.ProductID, done.Qty)
			}
			return nil, err
		}
		applied = append(applied, item)
	}

	r.orders[order.ID] = cloneOrder(order)
	copy := cloneOrder(order)
	return &copy, nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copy := cloneOrder(order)
	return &copy, nil
}

// List returns orders respecting the provided filter. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}

	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// Confirm moves a CREATED order to CONFIRMED under the repository lock.
// CANCELED is terminal; confirming an already-CONFIRMED order returns the
// current state unchanged.
func (r *Repository) Confirm(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}

	switch order.Status {
	case domain.StatusCanceled:
		return nil, ports.ErrOrderCanceled
	case domain.StatusConfirmed:
		copy := cloneOrder(order)
		return &copy, nil
	}

	order.Status = domain.StatusConfirmed
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order

	copy := cloneOrder(order)
	return &copy, nil
}

// CancelWithRules applies the cancellation rules under the repository lock.
func (r *Repository) CancelWithRules(ctx context.Context, id string, window time.Duration) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}

	if order.Status == domain.StatusCanceled {
		copy := cloneOrder(order)
		return &copy, nil
	}

	if !order.CancelableWithin(window, time.Now().UTC()) {
		return nil, ports.ErrCancellationWindowExpired
	}

	for _, item := range order.Items {
		if err := r.inv.Increment(ctx, item.ProductID, item.Qty); err != nil {
			return nil, err
		}
	}

	order.Status = domain.StatusCanceled
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order

	copy := cloneOrder(order)
	return &copy, nil
}

func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.LineItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	return order
}
