package saga_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dejobratic/fulfillment/internal/customers"
	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/app/commands"
	"github.com/dejobratic/fulfillment/internal/orders/domain"
	"github.com/dejobratic/fulfillment/internal/saga"
)

func newHandlerServer(t *testing.T, validator *mockValidator, orders *mockOrderService) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	saga.NewHandler(newCoordinator(t, validator, orders)).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postOrderRequest(t *testing.T, url string, payload any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/v1/order-requests", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestOrderRequestEndpoint(t *testing.T) {
	validPayload := map[string]any{
		"customer_id":     7,
		"items":           []map[string]any{{"product_id": 1, "qty": 2}},
		"idempotency_key": "key-1",
	}

	t.Run("returns 201 with customer and order", func(t *testing.T) {
		server := newHandlerServer(t, &mockValidator{}, &mockOrderService{})

		resp, body := postOrderRequest(t, server.URL, validPayload, nil)

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
		}

		if body["success"] != true {
			t.Errorf("expected success true, got %v", body["success"])
		}

		data, ok := body["data"].(map[string]any)
		if !ok {
			t.Fatalf("expected data object, got %v", body["data"])
		}
		if data["order"] == nil || data["customer"] == nil {
			t.Errorf("expected order and customer in data, got %v", data)
		}

		if resp.Header.Get("X-Correlation-Id") == "" {
			t.Error("expected correlation id response header")
		}
	})

	t.Run("headers override body fields", func(t *testing.T) {
		var gotKey string
		orders := &mockOrderService{
			confirmFn: func(ctx context.Context, orderID, idempotencyKey string) (*domain.Order, error) {
				gotKey = idempotencyKey
				return &domain.Order{ID: orderID, Status: domain.StatusConfirmed}, nil
			},
		}
		server := newHandlerServer(t, &mockValidator{}, orders)

		resp, _ := postOrderRequest(t, server.URL, validPayload, map[string]string{
			"X-Idempotency-Key": "header-key",
			"X-Correlation-Id":  "header-corr",
		})

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		if gotKey != "header-key" {
			t.Errorf("expected header key to win, got %s", gotKey)
		}
		if resp.Header.Get("X-Correlation-Id") != "header-corr" {
			t.Errorf("expected correlation id header-corr, got %s", resp.Header.Get("X-Correlation-Id"))
		}
	})

	t.Run("returns 400 for invalid body", func(t *testing.T) {
		server := newHandlerServer(t, &mockValidator{}, &mockOrderService{})

		resp, _ := postOrderRequest(t, server.URL, map[string]any{"customer_id": 0}, nil)

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("returns 400 with upstream status for invalid customer", func(t *testing.T) {
		validator := &mockValidator{
			getByIDFn: func(ctx context.Context, id int64, correlationID string) (*customers.Customer, error) {
				return nil, &customers.StatusError{StatusCode: 404}
			},
		}
		server := newHandlerServer(t, validator, &mockOrderService{})

		resp, body := postOrderRequest(t, server.URL, validPayload, nil)

		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if body["upstream_status"] != float64(404) {
			t.Errorf("expected upstream_status 404, got %v", body["upstream_status"])
		}
	})

	t.Run("returns 409 for insufficient stock", func(t *testing.T) {
		orders := &mockOrderService{
			createFn: func(ctx context.Context, customerID int64, items []commands.LineItemRequest, idempotencyKey string) (*domain.Order, error) {
				return nil, &inventory.InsufficientStockError{ProductID: 1}
			},
		}
		server := newHandlerServer(t, &mockValidator{}, orders)

		resp, _ := postOrderRequest(t, server.URL, validPayload, nil)

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409, got %d", resp.StatusCode)
		}
	})

	t.Run("returns 502 with failing step for upstream failures", func(t *testing.T) {
		orders := &mockOrderService{
			confirmFn: func(ctx context.Context, orderID, idempotencyKey string) (*domain.Order, error) {
				return nil, errors.New("connection reset")
			},
		}
		server := newHandlerServer(t, &mockValidator{}, orders)

		resp, body := postOrderRequest(t, server.URL, validPayload, nil)

		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", resp.StatusCode)
		}
		if body["step"] != string(saga.StepOrderConfirm) {
			t.Errorf("expected step %s, got %v", saga.StepOrderConfirm, body["step"])
		}
	})
}
