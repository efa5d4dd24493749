// Package saga coordinates the cross-service order request: validate the
// customer, create the order, confirm it, read the customer back. Each step
// runs under its own deadline and carries the request's correlation id. The
// saga keeps no durable state; callers may retry the whole request safely
// because the order steps are idempotent under the caller's key.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/fulfillment/internal/customers"
	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/app/commands"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/metrics"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
	"github.com/dejobratic/fulfillment/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// OrderService is the slice of the orders application the saga drives. Both
// steps take the request's idempotency key so a retried saga replays the
// recorded order instead of creating or confirming a second time.
type OrderService interface {
	CreateOrder(ctx context.Context, customerID int64, items []commands.LineItemRequest, idempotencyKey string) (*domain.Order, error)
	ConfirmOrder(ctx context.Context, orderID, idempotencyKey string) (*domain.Order, error)
}

// Request is one logical order request.
type Request struct {
	CustomerID     int64                      `json:"customer_id"`
	Items          []commands.LineItemRequest `json:"items"`
	IdempotencyKey string                     `json:"idempotency_key"`
	CorrelationID  string                     `json:"correlation_id,omitempty"`
}

// Result aggregates the saga outcome. Customer is nil when the final
// best-effort read failed; the order is authoritative either way.
type Result struct {
	CorrelationID string              `json:"correlation_id"`
	Customer      *customers.Customer `json:"customer,omitempty"`
	Order         *domain.Order       `json:"order"`
}

// Coordinator sequences the saga steps.
type Coordinator struct {
	validator   customers.Validator
	orders      OrderService
	logger      *slog.Logger
	metrics     *metrics.Metrics
	stepTimeout time.Duration
}

func NewCoordinator(
	validator customers.Validator,
	orders OrderService,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	stepTimeout time.Duration,
) *Coordinator {
	return &Coordinator{
		validator:   validator,
		orders:      orders,
		logger:      logger,
		metrics:     metrics,
		stepTimeout: stepTimeout,
	}
}

func (r Request) validate() error {
	if r.CustomerID <= 0 {
		return fmt.Errorf("%w: customer_id must be a positive integer", ErrInvalidRequest)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: items must be a non-empty array", ErrInvalidRequest)
	}
	for _, item := range r.Items {
		if item.ProductID <= 0 || item.Qty <= 0 {
			return fmt.Errorf("%w: each item must have positive integer product_id and qty", ErrInvalidRequest)
		}
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, ports.ErrMissingIdempotencyKey)
	}
	return nil
}

// ProcessOrderRequest runs the full saga. Input is validated before any
// remote call; the customer check, create and confirm each fail the saga on
// error, while the final customer read is best effort only.
func (c *Coordinator) ProcessOrderRequest(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "Saga.ProcessOrderRequest")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		c.metrics.RecordSagaDuration(ctx, time.Since(start).Seconds(), success)
	}()

	if err := req.validate(); err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("correlation_id", correlationID),
		attribute.Int64("customer.id", req.CustomerID),
		attribute.Int("item_count", len(req.Items)),
	)

	logger := c.logger.With("correlation_id", correlationID, "customer_id", req.CustomerID)

	if _, err := c.validator.GetByID(ctx, req.CustomerID, correlationID); err != nil {
		logger.WarnContext(ctx, "customer validation failed", "error", err)
		telemetry.RecordSpanError(span, err)
		var statusErr *customers.StatusError
		if errors.As(err, &statusErr) {
			return nil, &InvalidCustomerError{CustomerID: req.CustomerID, Status: statusErr.StatusCode, Err: err}
		}
		return nil, &InvalidCustomerError{CustomerID: req.CustomerID, Err: err}
	}

	createCtx, cancelCreate := context.WithTimeout(ctx, c.stepTimeout)
	order, err := c.orders.CreateOrder(createCtx, req.CustomerID, req.Items, req.IdempotencyKey)
	cancelCreate()
	if err != nil {
		logger.WarnContext(ctx, "order creation failed", "error", err)
		telemetry.RecordSpanError(span, err)
		if isOrderDomainError(err) {
			return nil, err
		}
		return nil, &UpstreamError{Step: StepOrderCreate, Err: err}
	}

	confirmCtx, cancelConfirm := context.WithTimeout(ctx, c.stepTimeout)
	confirmed, err := c.orders.ConfirmOrder(confirmCtx, order.ID, req.IdempotencyKey)
	cancelConfirm()
	if err != nil {
		logger.WarnContext(ctx, "order confirmation failed", "order_id", order.ID, "error", err)
		telemetry.RecordSpanError(span, err)
		if isOrderDomainError(err) {
			return nil, err
		}
		return nil, &UpstreamError{Step: StepOrderConfirm, Err: err}
	}

	// Response enrichment only; a failure here must not fail the saga.
	customer, err := c.validator.GetByID(ctx, req.CustomerID, correlationID)
	if err != nil {
		logger.WarnContext(ctx, "customer re-read failed, omitting from result", "error", err)
		customer = nil
	}

	logger.InfoContext(ctx, "order request completed",
		"order_id", confirmed.ID,
		"total_cents", confirmed.TotalCents,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return &Result{
		CorrelationID: correlationID,
		Customer:      customer,
		Order:         confirmed,
	}, nil
}

// isOrderDomainError reports whether the error is a business outcome of the
// order service rather than a transport or storage failure.
func isOrderDomainError(err error) bool {
	var insufficient *inventory.InsufficientStockError
	return errors.Is(err, inventory.ErrProductNotFound) ||
		errors.As(err, &insufficient) ||
		errors.Is(err, ports.ErrNotFound) ||
		errors.Is(err, ports.ErrIdempotencyConflict) ||
		errors.Is(err, ports.ErrOrderCanceled) ||
		errors.Is(err, ports.ErrMissingIdempotencyKey) ||
		errors.Is(err, ports.ErrCancellationWindowExpired)
}
