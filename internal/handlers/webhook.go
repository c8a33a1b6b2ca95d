package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/orders"
	"github.com/threadloom/api/internal/platform/httpx"
	"github.com/threadloom/api/internal/platform/requestctx"
)

// Stripe recommends capping webhook payloads well below the default body
// limit.
const maxWebhookBody = 64 * 1024

// eventVerifier checks the webhook signature and returns the parsed event.
type eventVerifier func(payload []byte, sigHeader, secret string) (stripe.Event, error)

// WebhookHandlers receives payment platform callbacks and drives order
// materialization.
type WebhookHandlers struct {
	secret       string
	materializer *orders.Materializer
	verify       eventVerifier
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(signingSecret string, materializer *orders.Materializer) *WebhookHandlers {
	return &WebhookHandlers{
		secret:       signingSecret,
		materializer: materializer,
		verify:       webhook.ConstructEvent,
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	event, err := h.verify(payload, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		logger.Warn("webhook signature verification failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	// Once the signature checks out the platform expects a prompt
	// acknowledgement regardless of how processing goes; failed events
	// are redelivered by the platform's retry schedule.
	switch event.Type {
	case "checkout.session.completed":
		h.processSession(r, event)
	case "payment_intent.succeeded":
		h.processIntent(r, event)
	default:
		logger.Debug("webhook event ignored", zap.String("type", string(event.Type)))
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandlers) processSession(r *http.Request, event stripe.Event) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		logger.Error("webhook session decode failed", zap.Error(err))
		return
	}

	record := orders.PaymentRecord{
		PaymentRef:  session.ID,
		Amount:      session.AmountTotal,
		Currency:    string(session.Currency),
		Metadata:    session.Metadata,
		CompletedAt: time.Unix(event.Created, 0).UTC(),
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		record.PaymentRef = session.PaymentIntent.ID
	}
	if session.CustomerDetails != nil {
		record.Email = session.CustomerDetails.Email
		record.Name = session.CustomerDetails.Name
	}
	if session.ShippingDetails != nil {
		record.ShippingAddress = stripeAddress(session.ShippingDetails.Address)
	}

	h.materialize(r, record)
}

func (h *WebhookHandlers) processIntent(r *http.Request, event stripe.Event) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		logger.Error("webhook intent decode failed", zap.Error(err))
		return
	}

	record := orders.PaymentRecord{
		PaymentRef:  intent.ID,
		Amount:      intent.Amount,
		Currency:    string(intent.Currency),
		Email:       intent.ReceiptEmail,
		Metadata:    intent.Metadata,
		CompletedAt: time.Unix(event.Created, 0).UTC(),
	}
	if intent.Shipping != nil {
		record.Name = intent.Shipping.Name
		record.ShippingAddress = stripeAddress(intent.Shipping.Address)
	}

	h.materialize(r, record)
}

func (h *WebhookHandlers) materialize(r *http.Request, record orders.PaymentRecord) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.materializer == nil {
		logger.Error("webhook received with no materializer configured")
		return
	}

	order, err := h.materializer.Materialize(ctx, record)
	if err != nil {
		logger.Error("order materialization failed",
			zap.String("payment_ref", record.PaymentRef),
			zap.Error(err),
		)
		return
	}
	logger.Info("order materialized",
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_ref", order.PaymentRef),
	)
}

func stripeAddress(addr *stripe.Address) *domain.Address {
	if addr == nil {
		return nil
	}
	return &domain.Address{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}
