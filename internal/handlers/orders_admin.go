package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/orders"
	"github.com/threadloom/api/internal/platform/httpx"
)

// OrderAdminHandlers exposes fulfillment actions on materialized orders.
type OrderAdminHandlers struct {
	fulfillment *orders.Fulfillment
}

// NewOrderAdminHandlers constructs the admin order handlers.
func NewOrderAdminHandlers(fulfillment *orders.Fulfillment) *OrderAdminHandlers {
	return &OrderAdminHandlers{fulfillment: fulfillment}
}

// Routes registers admin order endpoints under the provided router.
func (h *OrderAdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderNumber}/fulfill", h.fulfill)
}

type fulfillRequest struct {
	TrackingNumber string `json:"trackingNumber"`
}

type orderResponse struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"orderNumber"`
	CustomerEmail  string          `json:"customerEmail"`
	CustomerName   string          `json:"customerName,omitempty"`
	Subtotal       int64           `json:"subtotal"`
	Shipping       int64           `json:"shipping"`
	Insurance      int64           `json:"insurance"`
	Discount       int64           `json:"discount"`
	Total          int64           `json:"total"`
	Status         string          `json:"status"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	FulfilledAt    string          `json:"fulfilledAt,omitempty"`
	ShippingAddr   *domain.Address `json:"shippingAddress,omitempty"`
}

func (h *OrderAdminHandlers) fulfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order store unavailable", http.StatusServiceUnavailable))
		return
	}

	var req fulfillRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.TrackingNumber) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "trackingNumber is required", http.StatusBadRequest))
		return
	}

	order, err := h.fulfillment.Fulfill(ctx, chi.URLParam(r, "orderNumber"), req.TrackingNumber)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(order))
}

func (h *OrderAdminHandlers) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, orders.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, orders.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, orders.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "order operation failed", http.StatusInternalServerError))
	}
}

func orderPayload(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerEmail:  order.CustomerEmail,
		CustomerName:   order.CustomerName,
		Subtotal:       order.Subtotal,
		Shipping:       order.Shipping,
		Insurance:      order.Insurance,
		Discount:       order.Discount,
		Total:          order.Total,
		Status:         string(order.Status),
		TrackingNumber: order.TrackingNumber,
		ShippingAddr:   order.ShippingAddr,
	}
	if order.FulfilledAt != nil {
		resp.FulfilledAt = order.FulfilledAt.UTC().Format(time.RFC3339)
	}
	return resp
}
