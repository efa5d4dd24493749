package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWithItemsAndDecrementStock inserts the order, its line items and the
// per-line stock decrements in a single transaction. A failed conditional
// decrement rolls back everything, including decrements of earlier lines.
func (r *Repository) CreateWithItemsAndDecrementStock(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertOrder := `
		INSERT INTO orders (id, customer_id, status, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insertOrder,
		order.ID,
		order.CustomerID,
		order.Status,
		order.TotalCents,
		order.CreatedAt,
		order.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	insertItem := `
		INSERT INTO order_items (order_id, product_id, qty, unit_price_cents, subtotal_cents)
		VALUES ($1, $2, $3, $4, $5)
	`
	decrement := `
		UPDATE products
		SET stock = stock - $1
		WHERE id = $2 AND stock >= $1
	`

	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, insertItem,
			order.ID,
			item.ProductID,
			item.Qty,
			item.UnitPriceCents,
			item.SubtotalCents,
		); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}

		result, err := tx.Exec(ctx, decrement, item.Qty, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil, &inventory.InsufficientStockError{ProductID: item.ProductID}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}

	return &order, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Status,
		&order.TotalCents,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, query, statusFilter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.CustomerID,
			&order.Status,
			&order.TotalCents,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Confirm locks the order row so a concurrent cancel on the same order
// serializes behind it, then applies the status transition. A CANCELED order
// is terminal and stays that way.
func (r *Repository) Confirm(ctx context.Context, id string) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lock := `
		SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`

	var order domain.Order
	err = tx.QueryRow(ctx, lock, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Status,
		&order.TotalCents,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	items, err := r.loadItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	switch order.Status {
	case domain.StatusCanceled:
		return nil, ports.ErrOrderCanceled
	case domain.StatusConfirmed:
		return &order, nil
	}

	now := time.Now().UTC()
	confirm := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, confirm, domain.StatusConfirmed, now, id); err != nil {
		return nil, fmt.Errorf("confirm order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm: %w", err)
	}

	order.Status = domain.StatusConfirmed
	order.UpdatedAt = now

	return &order, nil
}

// CancelWithRules locks the order row for the duration of the transaction so
// a concurrent confirm or cancel on the same order serializes behind it.
func (r *Repository) CancelWithRules(ctx context.Context, id string, window time.Duration) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lock := `
		SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`

	var order domain.Order
	err = tx.QueryRow(ctx, lock, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Status,
		&order.TotalCents,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	items, err := r.loadItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	if order.Status == domain.StatusCanceled {
		return &order, nil
	}

	if !order.CancelableWithin(window, time.Now().UTC()) {
		return nil, ports.ErrCancellationWindowExpired
	}

	restock := `
		UPDATE products
		SET stock = stock + $1
		WHERE id = $2
	`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, restock, item.Qty, item.ProductID); err != nil {
			return nil, fmt.Errorf("restock product %d: %w", item.ProductID, err)
		}
	}

	now := time.Now().UTC()
	cancel := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, cancel, domain.StatusCanceled, now, id); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	order.Status = domain.StatusCanceled
	order.UpdatedAt = now

	return &order, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) loadItems(ctx context.Context, q querier, orderID string) ([]domain.LineItem, error) {
	query := `
		SELECT product_id, qty, unit_price_cents, subtotal_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ProductID,
			&item.Qty,
			&item.UnitPriceCents,
			&item.SubtotalCents,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}
