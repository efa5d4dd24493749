package saga

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dejobratic/fulfillment/internal/inventory"
	"github.com/dejobratic/fulfillment/internal/orders/ports"
)

// Handler exposes the order-request saga over HTTP.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler constructs a Handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// Register binds the saga handler to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/order-requests", h.handleOrderRequest)
}

func (h *Handler) handleOrderRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Header values take precedence over body fields for the two tokens the
	// caller usually supplies as headers.
	if key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}
	if cid := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); cid != "" {
		req.CorrelationID = cid
	}

	result, err := h.coordinator.ProcessOrderRequest(r.Context(), req)
	if err != nil {
		h.writeSagaError(w, err)
		return
	}

	w.Header().Set("X-Correlation-Id", result.CorrelationID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":        true,
		"correlation_id": result.CorrelationID,
		"data": map[string]any{
			"customer": result.Customer,
			"order":    result.Order,
		},
	})
}

func (h *Handler) writeSagaError(w http.ResponseWriter, err error) {
	var invalidCustomer *InvalidCustomerError
	var upstream *UpstreamError
	var insufficient *inventory.InsufficientStockError

	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidCustomer):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":           "invalid customer",
			"upstream_status": invalidCustomer.Status,
		})
	case errors.Is(err, inventory.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &insufficient):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ports.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ports.ErrOrderCanceled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"step":  string(upstream.Step),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
