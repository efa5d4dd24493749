package kafka

import (
	"context"
	"log/slog"
)

// NoopEventBus logs events without sending them to Kafka. Useful for local dev before wiring Kafka.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishOrderCreated(_ context.Context, orderID string) error {
	slog.Debug("event::order_created", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderConfirmed(_ context.Context, orderID string) error {
	slog.Debug("event::order_confirmed", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderCanceled(_ context.Context, orderID string) error {
	slog.Debug("event::order_canceled", "order_id", orderID)
	return nil
}
