package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/fulfillment/internal/idempotency"
	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/app/commands"
	"github.com/dejobratic/fulfillment/internal/orders/app/queries"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/orders/metrics"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

// Service bundles use cases for handling orders via the API and the saga.
type Service struct {
	repo           ports.OrderRepository
	createHandler  commands.CreateOrderHandler
	confirmHandler commands.ConfirmOrderHandler
	cancelHandler  commands.CancelOrderHandler
	getHandler     *queries.GetOrderQueryHandler
}

// Config carries the policy knobs the service needs.
type Config struct {
	CancelWindow         time.Duration
	IdempotencyRetention time.Duration
}

// NewService wires required dependencies.
func NewService(
	inv inventory.Store,
	repo ports.OrderRepository,
	ledger idempotency.Ledger,
	events ports.EventBus,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	cfg Config,
) *Service {
	createHandler := commands.NewCreateOrderCommandHandler(inv, repo, ledger, events, cfg.IdempotencyRetention)
	observableCreate := commands.NewObservableCreateOrderHandler(createHandler, logger, metrics)

	return &Service{
		repo:           repo,
		createHandler:  observableCreate,
		confirmHandler: commands.NewConfirmOrderCommandHandler(repo, ledger, events, cfg.IdempotencyRetention),
		cancelHandler:  commands.NewCancelOrderCommandHandler(repo, events, cfg.CancelWindow),
		getHandler:     queries.NewGetOrderQueryHandler(repo),
	}
}

// CreateOrder prices the requested lines and persists the order atomically
// with its stock decrements. A non-empty idempotencyKey makes retries replay
// the first result instead of creating again.
func (s *Service) CreateOrder(ctx context.Context, customerID int64, items []commands.LineItemRequest, idempotencyKey string) (*domain.Order, error) {
	return s.createHandler.Handle(ctx, commands.CreateOrderCommand{
		CustomerID:     customerID,
		Items:          items,
		IdempotencyKey: idempotencyKey,
	})
}

// ConfirmOrder confirms an order at most once per idempotency key.
func (s *Service) ConfirmOrder(ctx context.Context, orderID, idempotencyKey string) (*domain.Order, error) {
	return s.confirmHandler.Handle(ctx, commands.ConfirmOrderCommand{
		OrderID:        orderID,
		IdempotencyKey: idempotencyKey,
	})
}

// CancelOrder cancels an order, reversing its stock where the rules allow.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.cancelHandler.Handle(ctx, commands.CancelOrderCommand{OrderID: orderID})
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.repo.List(ctx, filter)
}
