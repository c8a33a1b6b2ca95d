package domain

// PricingBreakdown captures the server-computed monetary results of pricing
// a cart. Total always equals Subtotal + Shipping + Insurance - Discount
// and is never negative.
type PricingBreakdown struct {
	Currency  string
	Subtotal  int64
	Shipping  int64
	Insurance int64
	Discount  int64
	Total     int64
	Items     []ItemPricingBreakdown
	FreeShip  bool
}

// ItemPricingBreakdown stores the per-line outputs after resolving catalog
// prices, ignoring any client-submitted price.
type ItemPricingBreakdown struct {
	BundleID   string
	BundleName string
	DesignID   string
	DesignName string
	Quantity   int
	UnitPrice  int64
	Subtotal   int64
}

// ClampDiscount bounds a requested discount to [0, subtotal] so a discount
// can zero out the subtotal but never contribute a negative amount.
func ClampDiscount(requested, subtotal int64) int64 {
	if requested < 0 {
		return 0
	}
	if requested > subtotal {
		return subtotal
	}
	return requested
}
