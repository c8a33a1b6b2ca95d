// Package checkout orchestrates server-trusted pricing against the payment
// platform. Totals are always recomputed here from catalog data; the
// payment intent's metadata becomes the durable record the webhook
// materializes an order from.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/payments"
	"github.com/threadloom/api/internal/pricing"
)

var (
	// ErrInvalidInput indicates the caller supplied invalid checkout input.
	ErrInvalidInput = errors.New("checkout: invalid input")
	// ErrPaymentFailed indicates the payment platform rejected a request.
	ErrPaymentFailed = errors.New("checkout: payment failed")
	// ErrUnavailable indicates checkout dependencies are not wired.
	ErrUnavailable = errors.New("checkout: unavailable")
)

// Attribution carries the ad-platform identifiers captured in the browser.
// EventID is the shared deduplication key between the client pixel and the
// server-side conversion deliveries.
type Attribution struct {
	ClickID   string
	BrowserID string
	EventID   string
	ClientID  string
}

// CreateIntentCommand starts a checkout: line selections plus the options
// that shape the total.
type CreateIntentCommand struct {
	Items           []pricing.QuoteItem
	ShippingMethod  string
	Insurance       bool
	DiscountCode    string
	DiscountAmount  int64
	CustomerEmail   string
	CustomerName    string
	ShippingAddress *domain.Address
	Attribution     Attribution
	Source          string
}

// UpdateIntentCommand revises an existing intent. ClientSubtotal is only a
// fallback; the subtotal stored on the intent always wins when present.
type UpdateIntentCommand struct {
	IntentID        string
	ShippingMethod  string
	Insurance       bool
	DiscountCode    string
	DiscountAmount  int64
	CustomerEmail   string
	CustomerName    string
	ShippingAddress *domain.Address
	ClientSubtotal  int64
}

// Result returns the intent reference and the authoritative breakdown.
type Result struct {
	IntentID     string
	ClientSecret string
	Amount       int64
	Subtotal     int64
	Shipping     int64
	Insurance    int64
	Discount     int64
	CustomerID   string
}

// OrchestratorDeps wires the dependencies required by the orchestrator.
type OrchestratorDeps struct {
	Engine   *pricing.Engine
	Payments payments.Provider
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Orchestrator implements the checkout create and update operations.
type Orchestrator struct {
	engine   *pricing.Engine
	payments payments.Provider
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewOrchestrator validates required dependencies.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Engine == nil {
		return nil, errors.New("checkout: pricing engine is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout: payment provider is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Orchestrator{
		engine:   deps.Engine,
		payments: deps.Payments,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// CreateIntent prices the cart from the catalog and creates the payment
// intent with the full materialization metadata attached.
func (o *Orchestrator) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (Result, error) {
	if o == nil || o.engine == nil || o.payments == nil {
		return Result{}, ErrUnavailable
	}

	method, err := pricing.ParseShippingMethod(cmd.ShippingMethod)
	if err != nil {
		return Result{}, errInvalid(err)
	}
	breakdown, err := o.engine.Quote(cmd.Items, pricing.QuoteOptions{
		ShippingMethod: method,
		Insurance:      cmd.Insurance,
		DiscountCode:   cmd.DiscountCode,
		Discount:       cmd.DiscountAmount,
	})
	if err != nil {
		return Result{}, errInvalid(err)
	}

	metadata, err := buildIntentMetadata(breakdown, method, cmd)
	if err != nil {
		return Result{}, err
	}

	intent, err := o.payments.CreateIntent(ctx, payments.IntentRequest{
		Amount:       breakdown.Total,
		Currency:     breakdown.Currency,
		Metadata:     metadata,
		ReceiptEmail: strings.TrimSpace(cmd.CustomerEmail),
	})
	if err != nil {
		o.logger(ctx, "checkout.intent_create_failed", map[string]any{"error": err.Error()})
		return Result{}, ErrPaymentFailed
	}

	return resultFromIntent(intent, breakdown, ""), nil
}

// UpdateIntent refetches the intent, recomputes the total server-side from
// the stored subtotal, merges metadata without replacing the original
// items, source, or subtotal, and pushes the revised amount.
func (o *Orchestrator) UpdateIntent(ctx context.Context, cmd UpdateIntentCommand) (Result, error) {
	if o == nil || o.engine == nil || o.payments == nil {
		return Result{}, ErrUnavailable
	}
	intentID := strings.TrimSpace(cmd.IntentID)
	if intentID == "" {
		return Result{}, ErrInvalidInput
	}

	existing, err := o.payments.GetIntent(ctx, intentID)
	if err != nil {
		o.logger(ctx, "checkout.intent_fetch_failed", map[string]any{
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
		return Result{}, ErrPaymentFailed
	}

	subtotal := cmd.ClientSubtotal
	if stored, ok := parseAmount(existing.Metadata[payments.MetaSubtotal]); ok {
		subtotal = stored
	}
	if subtotal < 0 {
		return Result{}, ErrInvalidInput
	}

	method, err := pricing.ParseShippingMethod(cmd.ShippingMethod)
	if err != nil {
		return Result{}, errInvalid(err)
	}
	breakdown, err := o.engine.Requote(subtotal, pricing.QuoteOptions{
		ShippingMethod: method,
		Insurance:      cmd.Insurance,
		DiscountCode:   cmd.DiscountCode,
		Discount:       cmd.DiscountAmount,
	})
	if err != nil {
		return Result{}, errInvalid(err)
	}

	customerID := ""
	if email := strings.TrimSpace(cmd.CustomerEmail); email != "" {
		customerID, err = o.payments.EnsureCustomer(ctx, email, cmd.CustomerName)
		if err != nil {
			// Customer attachment is an optimisation for repeat purchases;
			// the checkout proceeds without it.
			o.logger(ctx, "checkout.ensure_customer_failed", map[string]any{
				"error": err.Error(),
			})
			customerID = ""
		}
	}

	overlay, err := updateOverlay(breakdown, method, cmd)
	if err != nil {
		return Result{}, err
	}
	merged := payments.MergeMetadata(existing.Metadata, overlay)

	updated, err := o.payments.UpdateIntent(ctx, payments.IntentUpdateRequest{
		IntentID:     intentID,
		Amount:       breakdown.Total,
		Metadata:     merged,
		CustomerID:   customerID,
		ReceiptEmail: strings.TrimSpace(cmd.CustomerEmail),
	})
	if err != nil {
		o.logger(ctx, "checkout.intent_update_failed", map[string]any{
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
		return Result{}, ErrPaymentFailed
	}

	return resultFromIntent(updated, breakdown, customerID), nil
}

func buildIntentMetadata(breakdown domain.PricingBreakdown, method domain.ShippingMethod, cmd CreateIntentCommand) (map[string]string, error) {
	summary := make([]map[string]any, 0, len(breakdown.Items))
	for _, line := range breakdown.Items {
		summary = append(summary, map[string]any{
			"bundle_id":   line.BundleID,
			"bundle_name": line.BundleName,
			"design_id":   line.DesignID,
			"design_name": line.DesignName,
			"quantity":    line.Quantity,
			"price":       line.UnitPrice,
		})
	}
	items, err := json.Marshal(summary)
	if err != nil {
		return nil, errInvalid(err)
	}

	source := strings.TrimSpace(cmd.Source)
	if source == "" {
		source = "elements"
	}
	meta := map[string]string{
		payments.MetaItems:          string(items),
		payments.MetaSource:         source,
		payments.MetaSubtotal:       strconv.FormatInt(breakdown.Subtotal, 10),
		payments.MetaShipping:       strconv.FormatInt(breakdown.Shipping, 10),
		payments.MetaShippingMethod: string(method),
		payments.MetaInsurance:      strconv.FormatBool(cmd.Insurance),
	}
	if breakdown.Insurance > 0 {
		meta[payments.MetaInsuranceAmount] = strconv.FormatInt(breakdown.Insurance, 10)
	}
	if breakdown.Discount > 0 {
		meta[payments.MetaDiscountAmount] = strconv.FormatInt(breakdown.Discount, 10)
	}
	if code := strings.TrimSpace(cmd.DiscountCode); code != "" {
		meta[payments.MetaDiscountCode] = code
	}
	setCustomerMeta(meta, cmd.CustomerEmail, cmd.CustomerName, cmd.ShippingAddress)
	setAttributionMeta(meta, cmd.Attribution)
	return meta, nil
}

func updateOverlay(breakdown domain.PricingBreakdown, method domain.ShippingMethod, cmd UpdateIntentCommand) (map[string]string, error) {
	overlay := map[string]string{
		payments.MetaSubtotal:       strconv.FormatInt(breakdown.Subtotal, 10),
		payments.MetaShipping:       strconv.FormatInt(breakdown.Shipping, 10),
		payments.MetaShippingMethod: string(method),
		payments.MetaInsurance:      strconv.FormatBool(cmd.Insurance),
	}
	if breakdown.Insurance > 0 {
		overlay[payments.MetaInsuranceAmount] = strconv.FormatInt(breakdown.Insurance, 10)
	} else {
		overlay[payments.MetaInsuranceAmount] = "0"
	}
	overlay[payments.MetaDiscountAmount] = strconv.FormatInt(breakdown.Discount, 10)
	if code := strings.TrimSpace(cmd.DiscountCode); code != "" {
		overlay[payments.MetaDiscountCode] = code
	}
	setCustomerMeta(overlay, cmd.CustomerEmail, cmd.CustomerName, cmd.ShippingAddress)
	return overlay, nil
}

func setCustomerMeta(meta map[string]string, email, name string, address *domain.Address) {
	if email = strings.TrimSpace(email); email != "" {
		meta[payments.MetaCustomerEmail] = strings.ToLower(email)
	}
	if name = strings.TrimSpace(name); name != "" {
		meta[payments.MetaCustomerName] = name
	}
	if address != nil {
		if encoded, err := json.Marshal(address); err == nil {
			meta[payments.MetaShippingAddress] = string(encoded)
		}
	}
}

func setAttributionMeta(meta map[string]string, attr Attribution) {
	if v := strings.TrimSpace(attr.ClickID); v != "" {
		meta[payments.MetaClickID] = v
	}
	if v := strings.TrimSpace(attr.BrowserID); v != "" {
		meta[payments.MetaBrowserID] = v
	}
	if v := strings.TrimSpace(attr.EventID); v != "" {
		meta[payments.MetaEventID] = v
	}
	if v := strings.TrimSpace(attr.ClientID); v != "" {
		meta[payments.MetaClientID] = v
	}
}

func resultFromIntent(intent payments.Intent, breakdown domain.PricingBreakdown, customerID string) Result {
	return Result{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       breakdown.Total,
		Subtotal:     breakdown.Subtotal,
		Shipping:     breakdown.Shipping,
		Insurance:    breakdown.Insurance,
		Discount:     breakdown.Discount,
		CustomerID:   customerID,
	}
}

func parseAmount(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func errInvalid(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrInvalidInput, err)
}
