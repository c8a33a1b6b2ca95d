package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadloom/api/internal/catalog"
	"github.com/threadloom/api/internal/platform/httpx"
)

// CatalogHandlers serves the public bundle and design listings the
// storefront renders its cart from.
type CatalogHandlers struct {
	catalog *catalog.Catalog
}

// NewCatalogHandlers constructs the catalog handlers.
func NewCatalogHandlers(c *catalog.Catalog) *CatalogHandlers {
	return &CatalogHandlers{catalog: c}
}

// Routes registers catalog endpoints under the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/bundles", h.bundles)
	r.Get("/designs", h.designs)
}

type bundleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Price       int64  `json:"price"`
	CompareAt   int64  `json:"compareAt,omitempty"`
	Description string `json:"description,omitempty"`
	Badge       string `json:"badge,omitempty"`
}

type designResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Image     string `json:"image,omitempty"`
}

func (h *CatalogHandlers) bundles(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	items := h.catalog.Bundles()
	payload := make([]bundleResponse, 0, len(items))
	for _, b := range items {
		payload = append(payload, bundleResponse{
			ID:          b.ID,
			Name:        b.Name,
			SKU:         b.SKU,
			Price:       b.Price,
			CompareAt:   b.CompareAt,
			Description: b.Description,
			Badge:       b.Badge,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bundles": payload})
}

func (h *CatalogHandlers) designs(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	items := h.catalog.Designs()
	payload := make([]designResponse, 0, len(items))
	for _, d := range items {
		payload = append(payload, designResponse{
			ID:        d.ID,
			Name:      d.Name,
			Thumbnail: d.Thumbnail,
			Image:     d.Image,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"designs": payload})
}
