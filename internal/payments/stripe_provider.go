package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/customer"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Update(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeCustomerAPI interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
	List(params *stripe.CustomerListParams) *customer.Iter
}

type stripeClients struct {
	intents   stripeIntentAPI
	customers stripeCustomerAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey  string
	Logger  StripeLogger
	Clock   func() time.Time
	Clients *stripeClients
}

// StripeProvider implements Provider on the Stripe Payment Intents API.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe-backed Provider. A missing API key
// is a configuration error surfaced immediately.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, ErrMissingCredentials
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, nil)
		clients = stripeClients{
			intents:   sc.PaymentIntents,
			customers: sc.Customers,
		}
	}
	if clients.intents == nil || clients.customers == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:    clients,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// CreateIntent creates a payment intent with automatic payment methods,
// attaching the full order metadata.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return stripeIntent(intent), nil
}

// GetIntent fetches an existing payment intent with its stored metadata.
func (p *StripeProvider) GetIntent(ctx context.Context, id string) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.api.intents.Get(strings.TrimSpace(id), params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	return stripeIntent(intent), nil
}

// UpdateIntent overwrites amount and metadata on an existing intent. The
// caller supplies the merged metadata map.
func (p *StripeProvider) UpdateIntent(ctx context.Context, req IntentUpdateRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.api.intents.Update(strings.TrimSpace(req.IntentID), params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: update payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.updated", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})
	return stripeIntent(intent), nil
}

// EnsureCustomer reuses an existing Stripe customer matching the email or
// creates one, supporting later one-click repeat purchases.
func (p *StripeProvider) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	if p == nil {
		return "", errors.New("stripe: provider is nil")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("stripe: customer email is required")
	}

	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	iter := p.api.customers.List(listParams)
	for iter.Next() {
		existing := iter.Customer()
		if existing != nil && existing.ID != "" {
			return existing.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("stripe: list customers: %w", err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	if name = strings.TrimSpace(name); name != "" {
		params.Name = stripe.String(name)
	}
	created, err := p.api.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	p.logger(ctx, "payments.stripe.customer.created", map[string]any{
		"customer": created.ID,
	})
	return created.ID, nil
}

func stripeIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	out := Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Status:       string(intent.Status),
		CreatedAt:    time.Unix(intent.Created, 0).UTC(),
	}
	if intent.Customer != nil {
		out.CustomerID = intent.Customer.ID
	}
	if len(intent.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(intent.Metadata))
		for k, v := range intent.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
