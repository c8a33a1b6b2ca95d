package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/threadloom/api/internal/checkout"
	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/platform/httpx"
	"github.com/threadloom/api/internal/pricing"
	"github.com/threadloom/api/internal/promo"
)

// CheckoutHandlers exposes the checkout pricing and discount endpoints.
type CheckoutHandlers struct {
	checkout  *checkout.Orchestrator
	validator *promo.Validator
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(orchestrator *checkout.Orchestrator, validator *promo.Validator) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout:  orchestrator,
		validator: validator,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment-intent", h.createIntent)
	r.Put("/payment-intent", h.updateIntent)
	r.Post("/discount", h.validateDiscount)
}

type checkoutItem struct {
	BundleID string `json:"bundleId"`
	DesignID string `json:"designId"`
	Quantity int    `json:"quantity"`
	// Price is accepted from clients for cart display but never trusted.
	Price int64 `json:"price,omitempty"`
}

type createIntentRequest struct {
	Items          []checkoutItem  `json:"items"`
	ShippingMethod string          `json:"shippingMethod"`
	Insurance      bool            `json:"insurance"`
	DiscountCode   string          `json:"discountCode"`
	DiscountAmount int64           `json:"discountAmount"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Address        *domain.Address `json:"shippingAddress"`
	Source         string          `json:"source"`
	FBC            string          `json:"fbc"`
	FBP            string          `json:"fbp"`
	EventID        string          `json:"eventId"`
	GAClientID     string          `json:"gaClientId"`
}

type updateIntentRequest struct {
	PaymentIntentID string          `json:"paymentIntentId"`
	ShippingMethod  string          `json:"shippingMethod"`
	Insurance       bool            `json:"insurance"`
	DiscountCode    string          `json:"discountCode"`
	DiscountAmount  int64           `json:"discountAmount"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	Address         *domain.Address `json:"shippingAddress"`
	Subtotal        int64           `json:"subtotal"`
}

type intentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Subtotal        int64  `json:"subtotal"`
	ShippingCost    int64  `json:"shippingCost"`
	InsuranceCost   int64  `json:"insuranceCost"`
	DiscountAmount  int64  `json:"discountAmount"`
	CustomerID      string `json:"customerId,omitempty"`
}

type discountRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type discountResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Amount  int64  `json:"amount"`
}

func (h *CheckoutHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createIntentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	res, err := h.checkout.CreateIntent(ctx, checkout.CreateIntentCommand{
		Items:           quoteItems(req.Items),
		ShippingMethod:  req.ShippingMethod,
		Insurance:       req.Insurance,
		DiscountCode:    req.DiscountCode,
		DiscountAmount:  req.DiscountAmount,
		CustomerEmail:   req.Email,
		CustomerName:    req.Name,
		ShippingAddress: req.Address,
		Attribution: checkout.Attribution{
			ClickID:   req.FBC,
			BrowserID: req.FBP,
			EventID:   req.EventID,
			ClientID:  req.GAClientID,
		},
		Source: req.Source,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, intentPayload(res))
}

func (h *CheckoutHandlers) updateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateIntentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentIntentId is required", http.StatusBadRequest))
		return
	}

	res, err := h.checkout.UpdateIntent(ctx, checkout.UpdateIntentCommand{
		IntentID:        req.PaymentIntentID,
		ShippingMethod:  req.ShippingMethod,
		Insurance:       req.Insurance,
		DiscountCode:    req.DiscountCode,
		DiscountAmount:  req.DiscountAmount,
		CustomerEmail:   req.Email,
		CustomerName:    req.Name,
		ShippingAddress: req.Address,
		ClientSubtotal:  req.Subtotal,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, intentPayload(res))
}

func (h *CheckoutHandlers) validateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.validator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discounts_unavailable", "discount validation unavailable", http.StatusServiceUnavailable))
		return
	}

	var req discountRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Subtotal < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subtotal must not be negative", http.StatusBadRequest))
		return
	}

	result := h.validator.Validate(ctx, req.Code, req.Subtotal)
	httpx.WriteJSON(w, http.StatusOK, discountResponse{
		Valid:   result.Valid,
		Message: result.Message,
		Amount:  result.Amount,
	})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrInvalidInput),
		errors.Is(err, pricing.ErrInvalidReference),
		errors.Is(err, pricing.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, checkout.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment platform rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "checkout failed", http.StatusInternalServerError))
	}
}

func quoteItems(items []checkoutItem) []pricing.QuoteItem {
	out := make([]pricing.QuoteItem, 0, len(items))
	for _, item := range items {
		out = append(out, pricing.QuoteItem{
			BundleID: item.BundleID,
			DesignID: item.DesignID,
			Quantity: item.Quantity,
		})
	}
	return out
}

func intentPayload(res checkout.Result) intentResponse {
	return intentResponse{
		ClientSecret:    res.ClientSecret,
		PaymentIntentID: res.IntentID,
		Amount:          res.Amount,
		Subtotal:        res.Subtotal,
		ShippingCost:    res.Shipping,
		InsuranceCost:   res.Insurance,
		DiscountAmount:  res.Discount,
		CustomerID:      res.CustomerID,
	}
}
