// Package payments wraps the external payment platform. The metadata
// attached to a payment intent is the durable record the webhook later
// materializes an order from, so its keys are the wire contract between
// checkout and order creation.
package payments

import (
	"context"
	"errors"
	"time"
)

// Metadata keys stored on payment intents. The intent must carry enough to
// materialize an order without re-querying the cart.
const (
	MetaItems           = "items"
	MetaSource          = "source"
	MetaSubtotal        = "subtotal"
	MetaShipping        = "shipping"
	MetaShippingMethod  = "shipping_method"
	MetaInsurance       = "insurance"
	MetaInsuranceAmount = "insurance_amount"
	MetaDiscountCode    = "discount_code"
	MetaDiscountAmount  = "discount_amount"
	MetaCustomerEmail   = "customer_email"
	MetaCustomerName    = "customer_name"
	MetaShippingAddress = "shipping_address"
	MetaClickID         = "fbc"
	MetaBrowserID       = "fbp"
	MetaEventID         = "event_id"
	MetaClientID        = "ga_client_id"
)

// ErrMissingCredentials indicates the platform secret key is absent. This
// is a deployment defect, reported at construction and never retried.
var ErrMissingCredentials = errors.New("payments: missing credentials")

// Intent is the provider-neutral view of an external payment object.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	CustomerID   string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// IntentRequest creates a new payment intent carrying the computed total
// and the complete order metadata.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	ReceiptEmail   string
	IdempotencyKey string
}

// IntentUpdateRequest overwrites amount and metadata on an existing
// intent. Metadata is expected to be the already-merged map; the provider
// applies it wholesale.
type IntentUpdateRequest struct {
	IntentID     string
	Amount       int64
	Metadata     map[string]string
	CustomerID   string
	ReceiptEmail string
}

// Provider abstracts the payment platform for the checkout orchestrator.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
	UpdateIntent(ctx context.Context, req IntentUpdateRequest) (Intent, error)
	// EnsureCustomer returns the platform customer ID for an email,
	// creating the customer lazily on first use.
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
}

// MergeMetadata overlays updated fields onto the metadata stored on an
// intent, preserving the original items, source, and subtotal so a client
// cannot rewrite them after intent creation.
func MergeMetadata(existing, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(overlay))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range overlay {
		switch k {
		case MetaItems, MetaSource, MetaSubtotal:
			if _, ok := existing[k]; ok {
				continue
			}
		}
		merged[k] = v
	}
	return merged
}
