package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Product is a catalog entry whose stock counter backs order fulfillment.
type Product struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int32     `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
}

// Patch carries the mutable fields of a product. Nil fields are left unchanged.
type Patch struct {
	SKU        *string
	Name       *string
	PriceCents *int64
	Stock      *int32
}

// Empty reports whether the patch would change nothing.
func (p Patch) Empty() bool {
	return p.SKU == nil && p.Name == nil && p.PriceCents == nil && p.Stock == nil
}

// ListFilter narrows product listings. Pagination is 1-based.
type ListFilter struct {
	Search   string
	Page     int
	PageSize int
}

var (
	// ErrProductNotFound is returned when the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")
)

// InsufficientStockError names the product whose stock could not cover a request.
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

// Store exposes the product catalog and its conditional stock counters.
//
// DecrementIfAvailable must be atomic per call: it either reduces stock by qty
// when enough is available, or leaves the counter untouched and returns
// InsufficientStockError. Stock never goes negative.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, product Product) (*Product, error)
	Patch(ctx context.Context, id int64, patch Patch) (*Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	DecrementIfAvailable(ctx context.Context, id int64, qty int32) error
	Increment(ctx context.Context, id int64, qty int32) error
}
