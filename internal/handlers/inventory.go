package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/inventory"
	"github.com/threadloom/api/internal/platform/httpx"
)

// AdminAuthMiddleware guards admin routes behind a shared bearer token.
// An empty configured token rejects every request.
func AdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "admin token required", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InventoryHandlers exposes the admin inventory ledger.
type InventoryHandlers struct {
	inventory *inventory.Service
}

// NewInventoryHandlers constructs the inventory handlers.
func NewInventoryHandlers(svc *inventory.Service) *InventoryHandlers {
	return &InventoryHandlers{inventory: svc}
}

// Routes registers inventory endpoints under the provided router.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/inventory", h.list)
	r.Get("/inventory/{itemID}", h.get)
	r.Get("/inventory/{itemID}/adjustments", h.adjustments)
	r.Patch("/inventory", h.patch)
}

type inventoryItemResponse struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	ProductName       string `json:"productName"`
	BundleName        string `json:"bundleName"`
	Quantity          int    `json:"quantity"`
	Reserved          int    `json:"reserved"`
	Available         int    `json:"available"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	TrackInventory    bool   `json:"trackInventory"`
	Status            string `json:"status"`
}

type inventoryPatchRequest struct {
	ID             string `json:"id"`
	Quantity       *int   `json:"quantity,omitempty"`
	Adjustment     *int   `json:"adjustment,omitempty"`
	AdjustmentType string `json:"adjustmentType,omitempty"`
	Threshold      *int   `json:"lowStockThreshold,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type adjustmentResponse struct {
	ID               string `json:"id"`
	AdjustmentType   string `json:"adjustmentType"`
	QuantityChange   int    `json:"quantityChange"`
	PreviousQuantity int    `json:"previousQuantity"`
	NewQuantity      int    `json:"newQuantity"`
	Reason           string `json:"reason"`
	CreatedAt        string `json:"createdAt"`
}

func (h *InventoryHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	items, err := h.inventory.List(ctx)
	if err != nil {
		h.writeInventoryError(w, r, err)
		return
	}

	payload := make([]inventoryItemResponse, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *InventoryHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	item, err := h.inventory.Get(ctx, chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeInventoryError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, itemPayload(item))
}

func (h *InventoryHandlers) adjustments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	records, err := h.inventory.Adjustments(ctx, chi.URLParam(r, "itemID"), 0)
	if err != nil {
		h.writeInventoryError(w, r, err)
		return
	}

	payload := make([]adjustmentResponse, 0, len(records))
	for _, rec := range records {
		payload = append(payload, adjustmentResponse{
			ID:               rec.ID,
			AdjustmentType:   string(rec.AdjustmentType),
			QuantityChange:   rec.QuantityChange,
			PreviousQuantity: rec.PreviousQuantity,
			NewQuantity:      rec.NewQuantity,
			Reason:           rec.Reason,
			CreatedAt:        rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"adjustments": payload})
}

func (h *InventoryHandlers) patch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req inventoryPatchRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "id is required", http.StatusBadRequest))
		return
	}

	var (
		item domain.InventoryItem
		err  error
	)
	switch {
	case req.Quantity != nil:
		item, err = h.inventory.SetQuantity(ctx, req.ID, *req.Quantity, req.Reason)
	case req.Adjustment != nil:
		item, err = h.inventory.Adjust(ctx, req.ID, *req.Adjustment, domain.AdjustmentType(req.AdjustmentType), req.Reason)
	case req.Threshold != nil:
		item, err = h.inventory.SetThreshold(ctx, req.ID, *req.Threshold)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity, adjustment, or lowStockThreshold is required", http.StatusBadRequest))
		return
	}
	if err != nil {
		h.writeInventoryError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, itemPayload(item))
}

func (h *InventoryHandlers) writeInventoryError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "inventory item not found", http.StatusNotFound))
	case errors.Is(err, inventory.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, inventory.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "inventory operation failed", http.StatusInternalServerError))
	}
}

func itemPayload(item domain.InventoryItem) inventoryItemResponse {
	return inventoryItemResponse{
		ID:                item.ID,
		SKU:               item.SKU,
		ProductName:       item.ProductName,
		BundleName:        item.BundleName,
		Quantity:          item.Quantity,
		Reserved:          item.Reserved,
		Available:         item.Available(),
		LowStockThreshold: item.LowStockThreshold,
		TrackInventory:    item.TrackInventory,
		Status:            string(item.Status()),
	}
}
