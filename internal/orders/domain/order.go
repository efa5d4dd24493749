package domain

import (
	"errors"
	"time"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCanceled  OrderStatus = "CANCELED"
)

// LineItem is a priced position of an order. The unit price is snapshotted at
// creation time and never recomputed from the current product price.
type LineItem struct {
	ProductID      int64 `json:"product_id"`
	Qty            int32 `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	SubtotalCents  int64 `json:"subtotal_cents"`
}

// Order represents a purchase request managed by the system. Line items are
// owned by their order and never shared.
type Order struct {
	ID         string      `json:"id"`
	CustomerID int64       `json:"customer_id"`
	Status     OrderStatus `json:"status"`
	TotalCents int64       `json:"total_cents"`
	Items      []LineItem  `json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if o.CustomerID <= 0 {
		return errors.New("customer_id must be positive")
	}
	if len(o.Items) == 0 {
		return errors.New("items must not be empty")
	}
	var total int64
	for _, item := range o.Items {
		if item.ProductID <= 0 {
			return errors.New("product_id must be positive")
		}
		if item.Qty <= 0 {
			return errors.New("qty must be positive")
		}
		if item.SubtotalCents != int64(item.Qty)*item.UnitPriceCents {
			return errors.New("subtotal must equal qty times unit price")
		}
		total += item.SubtotalCents
	}
	if o.TotalCents != total {
		return errors.New("total must equal sum of line subtotals")
	}
	return nil
}

// IsTerminal indicates whether the order is in a terminal state.
func (o Order) IsTerminal() bool {
	return o.Status == StatusCanceled
}

// CancelableWithin reports whether the order may still be canceled at now
// given the allowed window since creation. Orders in CREATED state are always
// cancelable; CONFIRMED orders only inside the window.
func (o Order) CancelableWithin(window time.Duration, now time.Time) bool {
	switch o.Status {
	case StatusCreated:
		return true
	case StatusConfirmed:
		return now.Sub(o.CreatedAt) <= window
	default:
		return false
	}
}
