// Package promo validates discount codes server-side. The returned amount
// is clamped here and clamped again by the pricing engine at payment-object
// update time; the double clamp is intentional.
package promo

import (
	"context"
	"strings"
	"time"

	"github.com/threadloom/api/internal/domain"
)

// CodeKind selects how a code's value is applied to a subtotal.
type CodeKind string

const (
	// KindFixed takes a fixed amount, in minor currency units, off the subtotal.
	KindFixed CodeKind = "fixed"
	// KindPercent takes a percentage (0-100) off the subtotal.
	KindPercent CodeKind = "percent"
)

// Code describes one redeemable discount code.
type Code struct {
	Code        string
	Kind        CodeKind
	Value       int64
	MinSubtotal int64
	ExpiresAt   time.Time
	Message     string
}

// Validator resolves discount codes against a server-side table.
type Validator struct {
	codes map[string]Code
	clock func() time.Time
}

// NewValidator builds a validator over the given code table. A nil clock
// defaults to time.Now.
func NewValidator(codes []Code, clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	table := make(map[string]Code, len(codes))
	for _, c := range codes {
		key := normaliseCode(c.Code)
		if key == "" {
			continue
		}
		table[key] = c
	}
	return &Validator{codes: table, clock: func() time.Time { return clock().UTC() }}
}

// DefaultCodes is the storefront's static promotion table.
func DefaultCodes() []Code {
	return []Code{
		{Code: "WELCOME10", Kind: KindPercent, Value: 10, Message: "10% off your first order"},
		{Code: "STITCH5", Kind: KindFixed, Value: 500, MinSubtotal: 2000, Message: "$5 off orders over $20"},
		{Code: "FREESHIPLOVE", Kind: KindFixed, Value: 495, MinSubtotal: 3000, Message: "Shipping on us"},
	}
}

// Validate checks a code against a subtotal and returns the clamped
// discount amount. Invalid codes return Valid=false with a reason message
// and a zero amount; they are never an error.
func (v *Validator) Validate(_ context.Context, code string, subtotal int64) domain.DiscountResult {
	key := normaliseCode(code)
	if key == "" {
		return domain.DiscountResult{Message: "enter a discount code"}
	}
	if subtotal < 0 {
		subtotal = 0
	}

	entry, ok := v.codes[key]
	if !ok {
		return domain.DiscountResult{Message: "that code isn't valid"}
	}
	if !entry.ExpiresAt.IsZero() && v.clock().After(entry.ExpiresAt) {
		return domain.DiscountResult{Message: "that code has expired"}
	}
	if subtotal < entry.MinSubtotal {
		return domain.DiscountResult{Message: "order doesn't meet the code minimum"}
	}

	var amount int64
	switch entry.Kind {
	case KindPercent:
		amount = subtotal * entry.Value / 100
	default:
		amount = entry.Value
	}
	amount = domain.ClampDiscount(amount, subtotal)

	message := entry.Message
	if message == "" {
		message = "discount applied"
	}
	return domain.DiscountResult{Valid: true, Message: message, Amount: amount}
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
