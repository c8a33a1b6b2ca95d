// Package catalog holds the static, server-trusted price reference data
// consulted by every pricing computation. Bundles and designs are defined
// here and never mutated by requests.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/threadloom/api/internal/domain"
)

// ErrUnknownReference indicates a bundle or design ID that does not exist
// in the catalog. Callers must fail the request rather than skip the line.
var ErrUnknownReference = errors.New("catalog: unknown reference")

// Rates collects the configured shipping and insurance constants, in minor
// currency units.
type Rates struct {
	FreeShippingThreshold int64
	StandardRate          int64
	ExpressRate           int64
	InsurancePrice        int64
	Currency              string
}

/// DefaultRates mirrors the storefront defaults: free shipping at $35 with
// a $4.95 standard tier, $9.95 express tier, and a $2.99 insurance add-on.
func DefaultRates() Rates {
	return Rates{
		FreeShippingThreshold: 3500,
		StandardRate:          495,
		ExpressRate:           995,
		InsurancePrice:        299,
		Currency:              "USD",
	}
}

// Catalog resolves bundle and design identifiers against the static data.
type Catalog struct {
	bundles map[string]domain.Bundle
	designs map[string]domain.Design
	rates   Rates
}

// New builds a catalog from the default product data and the given rates.
func New(rates Rates) *Catalog {
	c := &Catalog{
		bundles: make(map[string]domain.Bundle),
		designs: make(map[string]domain.Design),
		rates:   rates,
	}
	for _, b := range defaultBundles {
		c.bundles[b.ID] = b
	}
	for _, d := range defaultDesigns {
		c.designs[d.ID] = d
	}
	return c
}

// Rates returns the configured shipping and insurance constants.
func (c *Catalog) Rates() Rates { return c.rates }

// Bundle resolves a bundle ID, returning ErrUnknownReference when absent.
func (c *Catalog) Bundle(id string) (domain.Bundle, error) {
	b, ok := c.bundles[strings.TrimSpace(id)]
	if !ok {
		return domain.Bundle{}, fmt.Errorf("%w: bundle %q", ErrUnknownReference, id)
	}
	return b, nil
}

// Design resolves a design ID, returning ErrUnknownReference when absent.
func (c *Catalog) Design(id string) (domain.Design, error) {
	d, ok := c.designs[strings.TrimSpace(id)]
	if !ok {
		return domain.Design{}, fmt.Errorf("%w: design %q", ErrUnknownReference, id)
	}
	return d, nil
}

// Bundles lists the catalog bundles in definition order.
func (c *Catalog) Bundles() []domain.Bundle {
	out := make([]domain.Bundle, 0, len(defaultBundles))
	for _, b := range defaultBundles {
		out = append(out, c.bundles[b.ID])
	}
	return out
}

// Designs lists the catalog designs in definition order.
func (c *Catalog) Designs() []domain.Design {
	out := make([]domain.Design, 0, len(defaultDesigns))
	for _, d := range defaultDesigns {
		out = append(out, c.designs[d.ID])
	}
	return out
}

// DefaultStock seeds the inventory ledger with one tracked item per
// bundle.
func DefaultStock() []domain.InventoryItem {
	out := make([]domain.InventoryItem, 0, len(defaultBundles))
	for _, b := range defaultBundles {
		out = append(out, domain.InventoryItem{
			ID:                b.ID,
			SKU:               b.SKU,
			ProductName:       b.Name,
			BundleName:        b.Name,
			Quantity:          50,
			LowStockThreshold: 10,
			TrackInventory:    true,
		})
	}
	return out
}

var defaultBundles = []domain.Bundle{
	{
		ID:          "starter-pack",
		Name:        "Starter Pack",
		SKU:         "TL-BND-STARTER",
		Price:       1800,
		CompareAt:   2400,
		Description: "Three patches of one design.",
	},
	{
		ID:          "love-pack",
		Name:        "Love Pack",
		SKU:         "TL-BND-LOVE",
		Price:       3000,
		CompareAt:   4200,
		Description: "Six patches across two designs.",
		Badge:       "Most popular",
	},
	{
		ID:          "studio-pack",
		Name:        "Studio Pack",
		SKU:         "TL-BND-STUDIO",
		Price:       5400,
		CompareAt:   8400,
		Description: "Twelve patches, any mix of designs.",
		Badge:       "Best value",
	},
}

var defaultDesigns = []domain.Design{
	{ID: "wildflower", Name: "Wildflower", Thumbnail: "designs/wildflower_thumb.webp", Image: "designs/wildflower.webp"},
	{ID: "moth-moon", Name: "Moth & Moon", Thumbnail: "designs/moth-moon_thumb.webp", Image: "designs/moth-moon.webp"},
	{ID: "tidal", Name: "Tidal", Thumbnail: "designs/tidal_thumb.webp", Image: "designs/tidal.webp"},
	{ID: "ember-fox", Name: "Ember Fox", Thumbnail: "designs/ember-fox_thumb.webp", Image: "designs/ember-fox.webp"},
	{ID: "paper-crane", Name: "Paper Crane", Thumbnail: "designs/paper-crane_thumb.webp", Image: "designs/paper-crane.webp"},
}
