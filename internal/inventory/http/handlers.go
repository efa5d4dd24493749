package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/fulfillment/internal/inventory"
)

// Handler exposes HTTP endpoints for the product catalog.
type Handler struct {
	store inventory.Store
}

// NewHandler constructs a Handler.
func NewHandler(store inventory.Store) *Handler {
	return &Handler{store: store}
}

// Register binds the product handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/products", h.handleProducts)
	mux.HandleFunc("/v1/products/", h.handleProductByID)
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createProduct(w, r)
	case http.MethodGet:
		h.listProducts(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleProductByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/products/"), "/")
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getProduct(w, r, id)
	case http.MethodPatch:
		h.patchProduct(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createProductPayload struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int32  `json:"stock"`
}

func (p createProductPayload) validate() error {
	if strings.TrimSpace(p.SKU) == "" {
		return errors.New("sku is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if p.PriceCents <= 0 {
		return errors.New("price_cents must be positive")
	}
	if p.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload createProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.store.Create(r.Context(), inventory.Product{
		SKU:        payload.SKU,
		Name:       payload.Name,
		PriceCents: payload.PriceCents,
		Stock:      payload.Stock,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

// patchProductPayload is the allow-list of mutable product fields. Unknown
// fields are rejected rather than silently dropped.
type patchProductPayload struct {
	SKU        *string `json:"sku"`
	Name       *string `json:"name"`
	PriceCents *int64  `json:"price_cents"`
	Stock      *int32  `json:"stock"`
}

func (h *Handler) patchProduct(w http.ResponseWriter, r *http.Request, id int64) {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var payload patchProductPayload
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.PriceCents != nil && *payload.PriceCents <= 0 {
		writeError(w, http.StatusBadRequest, "price_cents must be positive")
		return
	}
	if payload.Stock != nil && *payload.Stock < 0 {
		writeError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}

	product, err := h.store.Patch(r.Context(), id, inventory.Patch{
		SKU:        payload.SKU,
		Name:       payload.Name,
		PriceCents: payload.PriceCents,
		Stock:      payload.Stock,
	})
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request, id int64) {
	product, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := inventory.ListFilter{
		Search: r.URL.Query().Get("search"),
	}

	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if page, err := strconv.Atoi(pageParam); err == nil {
			filter.Page = page
		}
	}
	if pageSizeParam := r.URL.Query().Get("page_size"); pageSizeParam != "" {
		if pageSize, err := strconv.Atoi(pageSizeParam); err == nil {
			filter.PageSize = pageSize
		}
	}

	products, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
