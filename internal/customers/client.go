// Package customers holds the client for the remote customer service. The
// service authenticates service-to-service calls with a static bearer token
// and echoes the correlation id it is given.
package customers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Customer is the snapshot returned by the customer service.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// StatusError reports a non-2xx response from the customer service.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("customer service returned status %d", e.StatusCode)
}

// Validator looks up customers on the remote service.
type Validator interface {
	GetByID(ctx context.Context, id int64, correlationID string) (*Customer, error)
}

// Client calls the customer service over HTTP with a per-call deadline.
type Client struct {
	baseURL      string
	serviceToken string
	timeout      time.Duration
	httpClient   *http.Client
}

// NewClient constructs a Client. timeout bounds each individual lookup.
func NewClient(baseURL, serviceToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		timeout:      timeout,
		httpClient:   &http.Client{},
	}
}

// GetByID fetches a customer via the internal endpoint. A non-2xx response is
// returned as a StatusError so callers can surface the upstream status.
func (c *Client) GetByID(ctx context.Context, id int64, correlationID string) (*Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/internal/customers/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build customer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call customer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var customer Customer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, fmt.Errorf("decode customer response: %w", err)
	}

	return &customer, nil
}
