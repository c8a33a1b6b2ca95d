package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/repositories"
)

// ErrNotFound indicates no order exists for the given order number.
var ErrNotFound = errors.New("orders: not found")

// ShippingMailer sends the tracking notice once an order ships.
type ShippingMailer interface {
	SendShippingNotice(ctx context.Context, order domain.Order) error
}

// FulfillmentDeps wires the fulfillment service. Mailer is optional.
type FulfillmentDeps struct {
	Orders      repositories.OrderRepository
	Mailer      ShippingMailer
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	MailTimeout time.Duration
}

// Fulfillment marks orders shipped and notifies the customer.
type Fulfillment struct {
	orders      repositories.OrderRepository
	mailer      ShippingMailer
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
	mailTimeout time.Duration
}

// NewFulfillment validates required dependencies.
func NewFulfillment(deps FulfillmentDeps) (*Fulfillment, error) {
	if deps.Orders == nil {
		return nil, errors.New("orders: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	mailTimeout := deps.MailTimeout
	if mailTimeout <= 0 {
		mailTimeout = 10 * time.Second
	}
	return &Fulfillment{
		orders:      deps.Orders,
		mailer:      deps.Mailer,
		clock:       func() time.Time { return clock().UTC() },
		logger:      logger,
		mailTimeout: mailTimeout,
	}, nil
}

// Fulfill stamps the order fulfilled with the tracking number and sends
// the shipping notice. The notice is best-effort; a mail failure never
// rolls back the status change.
func (f *Fulfillment) Fulfill(ctx context.Context, orderNumber, trackingNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.Join(ErrInvalidInput, errors.New("orders: order number is required"))
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return domain.Order{}, errors.Join(ErrInvalidInput, errors.New("orders: tracking number is required"))
	}

	order, err := f.orders.MarkFulfilled(ctx, orderNumber, trackingNumber, f.clock())
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, errors.Join(ErrNotFound, err)
		}
		f.logger(ctx, "orders.fulfill_failed", map[string]any{
			"orderNumber": orderNumber,
			"error":       err.Error(),
		})
		return domain.Order{}, errors.Join(ErrUnavailable, err)
	}

	f.logger(ctx, "orders.fulfilled", map[string]any{
		"orderNumber":    order.OrderNumber,
		"trackingNumber": trackingNumber,
	})

	if f.mailer != nil && order.CustomerEmail != "" {
		go func() {
			mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.mailTimeout)
			defer cancel()
			if err := f.mailer.SendShippingNotice(mailCtx, order); err != nil {
				f.logger(mailCtx, "orders.shipping_email_failed", map[string]any{
					"orderNumber": order.OrderNumber,
					"error":       err.Error(),
				})
			}
		}()
	}
	return order, nil
}
