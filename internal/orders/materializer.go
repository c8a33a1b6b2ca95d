// Package orders turns confirmed payments into durable order rows. The
// materializer is idempotent under webhook redelivery: the payment
// reference carries a unique constraint and a conflicting insert is
// treated as already materialized.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/repositories"
)

var (
	// ErrInvalidInput indicates a payment record that cannot produce an order.
	ErrInvalidInput = errors.New("orders: invalid input")
	// ErrUnavailable indicates the order store could not be reached.
	ErrUnavailable = errors.New("orders: store unavailable")
)

// ConversionNotifier receives the purchase event after the order commits.
// Implementations must not block and must never return the failure to the
// materializer.
type ConversionNotifier interface {
	PurchaseCompleted(ctx context.Context, event domain.ConversionEvent)
}

// ConfirmationMailer sends the customer-facing order confirmation.
type ConfirmationMailer interface {
	SendOrderConfirmation(ctx context.Context, order domain.Order) error
}

// MaterializerDeps wires the materializer. Analytics and Mailer are
// optional; orders persist without them.
type MaterializerDeps struct {
	Orders       repositories.OrderRepository
	Customers    repositories.CustomerRepository
	Analytics    ConversionNotifier
	Mailer       ConfirmationMailer
	NumberPrefix string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
	MailTimeout  time.Duration
}

// Materializer creates exactly one order per confirmed payment.
type Materializer struct {
	orders      repositories.OrderRepository
	customers   repositories.CustomerRepository
	analytics   ConversionNotifier
	mailer      ConfirmationMailer
	prefix      string
	clock       func() time.Time
	idGenerator func() string
	logger      func(context.Context, string, map[string]any)
	mailTimeout time.Duration
}

// NewMaterializer validates required dependencies.
func NewMaterializer(deps MaterializerDeps) (*Materializer, error) {
	if deps.Orders == nil {
		return nil, errors.New("orders: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("orders: customer repository is required")
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = "TL"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	mailTimeout := deps.MailTimeout
	if mailTimeout <= 0 {
		mailTimeout = 10 * time.Second
	}
	return &Materializer{
		orders:      deps.Orders,
		customers:   deps.Customers,
		analytics:   deps.Analytics,
		mailer:      deps.Mailer,
		prefix:      prefix,
		clock:       func() time.Time { return clock().UTC() },
		idGenerator: idGen,
		logger:      logger,
		mailTimeout: mailTimeout,
	}, nil
}

// Materialize inserts the order for a confirmed payment, updates the
// customer's lifetime stats, and fires the downstream notifications. A
// redelivered payment returns the already-persisted order.
func (m *Materializer) Materialize(ctx context.Context, record PaymentRecord) (domain.Order, error) {
	paymentRef := strings.TrimSpace(record.PaymentRef)
	if paymentRef == "" {
		return domain.Order{}, ErrInvalidInput
	}

	d, err := parseDraft(record)
	if err != nil {
		return domain.Order{}, err
	}

	seq, err := m.orders.NextOrderNumber(ctx)
	if err != nil {
		return domain.Order{}, m.storeErr(ctx, "orders.number_failed", paymentRef, err)
	}

	now := m.clock()
	order := domain.Order{
		ID:            m.idGenerator(),
		OrderNumber:   fmt.Sprintf("%s-%03d", m.prefix, seq),
		CustomerEmail: d.Email,
		CustomerName:  d.Name,
		Items:         d.Items,
		Subtotal:      d.Subtotal,
		Shipping:      d.Shipping,
		Insurance:     d.Insurance,
		Discount:      d.Discount,
		Total:         d.Total,
		Status:        domain.OrderUnfulfilled,
		ShippingAddr:  d.ShippingAddr,
		PaymentRef:    paymentRef,
		Source:        d.Source,
		CreatedAt:     now,
	}

	if err := m.orders.Insert(ctx, order); err != nil {
		if repositories.IsConflict(err) {
			existing, ferr := m.orders.FindByPaymentRef(ctx, paymentRef)
			if ferr != nil {
				return domain.Order{}, m.storeErr(ctx, "orders.replay_lookup_failed", paymentRef, ferr)
			}
			m.logger(ctx, "orders.replay_ignored", map[string]any{
				"paymentRef":  paymentRef,
				"orderNumber": existing.OrderNumber,
			})
			return existing, nil
		}
		return domain.Order{}, m.storeErr(ctx, "orders.insert_failed", paymentRef, err)
	}

	if order.CustomerEmail != "" {
		if _, err := m.customers.RecordOrder(ctx, order.CustomerEmail, order.CustomerName, order.Total, true); err != nil {
			// The order is already durable; customer stats can be rebuilt.
			m.logger(ctx, "orders.customer_update_failed", map[string]any{
				"paymentRef": paymentRef,
				"error":      err.Error(),
			})
		}
	}

	m.notify(ctx, order, d.Attribution)
	return order, nil
}

// notify fires the post-commit side effects. None of them can fail the
// materialization.
func (m *Materializer) notify(ctx context.Context, order domain.Order, event domain.ConversionEvent) {
	if m.analytics != nil && event.EventID != "" {
		event.Name = "Purchase"
		event.OrderNumber = order.OrderNumber
		event.OccurredAt = order.CreatedAt
		m.analytics.PurchaseCompleted(ctx, event)
	}

	if m.mailer != nil && order.CustomerEmail != "" {
		go func() {
			mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.mailTimeout)
			defer cancel()
			if err := m.mailer.SendOrderConfirmation(mailCtx, order); err != nil {
				m.logger(mailCtx, "orders.confirmation_email_failed", map[string]any{
					"orderNumber": order.OrderNumber,
					"error":       err.Error(),
				})
			}
		}()
	}
}

func (m *Materializer) storeErr(ctx context.Context, event, paymentRef string, err error) error {
	m.logger(ctx, event, map[string]any{
		"paymentRef": paymentRef,
		"error":      err.Error(),
	})
	return errors.Join(ErrUnavailable, err)
}
