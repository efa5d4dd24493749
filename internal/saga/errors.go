package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for malformed input before any remote
	// call is made.
	ErrInvalidRequest = errors.New("invalid request")
)

// InvalidCustomerError is returned when the customer check fails. Status is
// the upstream HTTP status, or zero when the call never completed.
type InvalidCustomerError struct {
	CustomerID int64
	Status     int
	Err        error
}

func (e *InvalidCustomerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("invalid customer %d (upstream status %d)", e.CustomerID, e.Status)
	}
	return fmt.Sprintf("invalid customer %d: %v", e.CustomerID, e.Err)
}

func (e *InvalidCustomerError) Unwrap() error { return e.Err }

// Step names the downstream call that failed.
type Step string

const (
	StepOrderCreate  Step = "order_create"
	StepOrderConfirm Step = "order_confirm"
)

// UpstreamError reports a transport-level failure of a downstream order call.
// Domain errors from the order service are never wrapped in it; they pass
// through the saga unchanged.
type UpstreamError struct {
	Step Step
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
