package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetByID(ctx context.Context, id int64) (*inventory.Product, error) {
	query := `
		SELECT id, sku, name, price_cents, stock, created_at
		FROM products
		WHERE id = $1
	`

	var product inventory.Product
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.PriceCents,
		&product.Stock,
		&product.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return &product, nil
}

func (s *Store) Create(ctx context.Context, product inventory.Product) (*inventory.Product, error) {
	query := `
		INSERT INTO products (sku, name, price_cents, stock, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`

	err := s.pool.QueryRow(ctx, query,
		product.SKU,
		product.Name,
		product.PriceCents,
		product.Stock,
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}

	return &product, nil
}

func (s *Store) Patch(ctx context.Context, id int64, patch inventory.Patch) (*inventory.Product, error) {
	if patch.Empty() {
		return s.GetByID(ctx, id)
	}

	query := `
		UPDATE products
		SET sku = COALESCE($1, sku),
		    name = COALESCE($2, name),
		    price_cents = COALESCE($3, price_cents),
		    stock = COALESCE($4, stock)
		WHERE id = $5
	`

	result, err := s.pool.Exec(ctx, query, patch.SKU, patch.Name, patch.PriceCents, patch.Stock, id)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, inventory.ErrProductNotFound
	}

	return s.GetByID(ctx, id)
}

func (s *Store) List(ctx context.Context, filter inventory.ListFilter) ([]inventory.Product, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT id, sku, name, price_cents, stock, created_at
		FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`

	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, query, filter.Search, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []inventory.Product
	for rows.Next() {
		var product inventory.Product
		if err := rows.Scan(
			&product.ID,
			&product.SKU,
			&product.Name,
			&product.PriceCents,
			&product.Stock,
			&product.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

func (s *Store) DecrementIfAvailable(ctx context.Context, id int64, qty int32) error {
	// The stock >= qty guard makes the decrement conditional; a concurrent
	// caller that empties the counter first leaves this update with zero rows.
	query := `
		UPDATE products
		SET stock = stock - $1
		WHERE id = $2 AND stock >= $1
	`

	result, err := s.pool.Exec(ctx, query, qty, id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return &inventory.InsufficientStockError{ProductID: id}
	}

	return nil
}

func (s *Store) Increment(ctx context.Context, id int64, qty int32) error {
	query := `
		UPDATE products
		SET stock = stock + $1
		WHERE id = $2
	`

	result, err := s.pool.Exec(ctx, query, qty, id)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return inventory.ErrProductNotFound
	}

	return nil
}
