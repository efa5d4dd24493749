package idempotency

import (
	"context"
	"time"
)

// Kind identifies the write operation a key is scoped to. Keys are unique per
// (key, kind) pair, never globally.
type Kind string

const (
	KindOrderCreate  Kind = "order_create"
	KindOrderConfirm Kind = "order_confirm"
)

// Status tracks the outcome recorded for a key.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Record is the durable outcome of a keyed write operation. Once a record
// carries a succeeded status and a response payload, retries replay that
// payload verbatim instead of re-executing the operation.
type Record struct {
	Key       string
	Kind      Kind
	TargetID  string
	Status    Status
	Response  []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record's retention window has passed at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Ledger stores idempotency records keyed by (key, kind).
//
// Find returns nil for both values when no live record exists; expired records
// are treated as absent so keys become reusable after retention. Save must
// treat a duplicate (key, kind) insert as a no-op so that concurrent retries
// racing past Find cannot fail on the write.
type Ledger interface {
	Find(ctx context.Context, key string, kind Kind) (*Record, error)
	Save(ctx context.Context, record Record) error
}
