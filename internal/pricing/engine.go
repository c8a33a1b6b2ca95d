// Package pricing recomputes order totals from trusted catalog data. Client
// supplied prices never enter the computation; they exist only for display.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/threadloom/api/internal/catalog"
	"github.com/threadloom/api/internal/domain"
)

const (
	minQuantity = 1
	maxQuantity = 99
)

var (
	// ErrInvalidReference indicates a bundle or design ID that does not
	// resolve against the server-side catalog.
	ErrInvalidReference = errors.New("pricing: invalid reference")
	// ErrInvalidQuantity indicates a quantity outside [1, 99].
	ErrInvalidQuantity = errors.New("pricing: invalid quantity")
	// ErrEmptyCart indicates a quote request without any line items.
	ErrEmptyCart = errors.New("pricing: empty cart")
)

// QuoteItem is one client-submitted line selection to be priced.
type QuoteItem struct {
	BundleID string
	DesignID string
	Quantity int
}

// QuoteOptions carries the non-line inputs of a quote.
type QuoteOptions struct {
	ShippingMethod domain.ShippingMethod
	Insurance      bool
	DiscountCode   string
	Discount       int64
}

// Engine prices carts against the catalog and the configured rate table.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine constructs a pricing engine over the given catalog.
func NewEngine(c *catalog.Catalog) (*Engine, error) {
	if c == nil {
		return nil, errors.New("pricing: catalog is required")
	}
	return &Engine{catalog: c}, nil
}

// Quote resolves every line against the catalog and produces the full
// breakdown. Unresolved references and out-of-range quantities fail the
// whole quote; lines are never silently skipped.
func (e *Engine) Quote(items []QuoteItem, opts QuoteOptions) (domain.PricingBreakdown, error) {
	if len(items) == 0 {
		return domain.PricingBreakdown{}, ErrEmptyCart
	}

	method := opts.ShippingMethod
	if method == "" {
		method = domain.ShippingStandard
	}
	if !method.Valid() {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: shipping method %q", ErrInvalidReference, opts.ShippingMethod)
	}

	lines := make([]domain.ItemPricingBreakdown, 0, len(items))
	var subtotal int64
	for _, item := range items {
		if item.Quantity < minQuantity || item.Quantity > maxQuantity {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: quantity %d for bundle %q", ErrInvalidQuantity, item.Quantity, item.BundleID)
		}
		bundle, err := e.catalog.Bundle(item.BundleID)
		if err != nil {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: bundle %q", ErrInvalidReference, item.BundleID)
		}
		design, err := e.catalog.Design(item.DesignID)
		if err != nil {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: design %q", ErrInvalidReference, item.DesignID)
		}
		lineSubtotal := bundle.Price * int64(item.Quantity)
		lines = append(lines, domain.ItemPricingBreakdown{
			BundleID:   bundle.ID,
			BundleName: bundle.Name,
			DesignID:   design.ID,
			DesignName: design.Name,
			Quantity:   item.Quantity,
			UnitPrice:  bundle.Price,
			Subtotal:   lineSubtotal,
		})
		subtotal += lineSubtotal
	}

	breakdown := e.priceFromSubtotal(subtotal, method, opts)
	breakdown.Items = lines
	return breakdown, nil
}

// Requote recomputes shipping, insurance, discount, and total from an
// already-established subtotal. The update path uses it with the subtotal
// stored on the payment object, so a client resubmitting a tampered value
// cannot move the total.
func (e *Engine) Requote(subtotal int64, opts QuoteOptions) (domain.PricingBreakdown, error) {
	if subtotal < 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: subtotal %d", ErrInvalidQuantity, subtotal)
	}
	method := opts.ShippingMethod
	if method == "" {
		method = domain.ShippingStandard
	}
	if !method.Valid() {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: shipping method %q", ErrInvalidReference, opts.ShippingMethod)
	}
	return e.priceFromSubtotal(subtotal, method, opts), nil
}

func (e *Engine) priceFromSubtotal(subtotal int64, method domain.ShippingMethod, opts QuoteOptions) domain.PricingBreakdown {
	rates := e.catalog.Rates()
	freeShip := subtotal >= rates.FreeShippingThreshold
	shipping := shippingCost(method, freeShip, rates)

	var insurance int64
	if opts.Insurance {
		insurance = rates.InsurancePrice
	}

	discount := domain.ClampDiscount(opts.Discount, subtotal)

	return domain.PricingBreakdown{
		Currency:  rates.Currency,
		Subtotal:  subtotal,
		Shipping:  shipping,
		Insurance: insurance,
		Discount:  discount,
		Total:     subtotal + shipping + insurance - discount,
		FreeShip:  freeShip,
	}
}

// shippingCost implements the tie-break table: express on a qualifying
// cart ships at the standard rate, not free and not the full express rate.
func shippingCost(method domain.ShippingMethod, freeShip bool, rates catalog.Rates) int64 {
	switch {
	case method == domain.ShippingStandard && freeShip:
		return 0
	case method == domain.ShippingStandard:
		return rates.StandardRate
	case freeShip:
		return rates.StandardRate
	default:
		return rates.ExpressRate
	}
}

// ParseShippingMethod normalises a client-submitted method string.
func ParseShippingMethod(raw string) (domain.ShippingMethod, error) {
	method := domain.ShippingMethod(strings.ToLower(strings.TrimSpace(raw)))
	if method == "" {
		return domain.ShippingStandard, nil
	}
	if !method.Valid() {
		return "", fmt.Errorf("%w: shipping method %q", ErrInvalidReference, raw)
	}
	return method, nil
}
