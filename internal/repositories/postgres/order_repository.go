package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/repositories"
)

// OrderRepository persists materialized orders in Postgres.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository wraps the pool in an order repository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NextOrderNumber draws from the database sequence, so concurrent webhook
// deliveries can never hand out the same number.
func (r *OrderRepository) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	if err != nil {
		return 0, wrapError("orders: next order number", err)
	}
	return n, nil
}

// Insert writes the order row. The unique index on stripe_payment_ref
// turns a replayed webhook delivery into a conflict error, which the
// materializer treats as already done.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return repositories.NewInternal("orders: marshal items", err)
	}
	var address []byte
	if order.ShippingAddr != nil {
		address, err = json.Marshal(order.ShippingAddr)
		if err != nil {
			return repositories.NewInternal("orders: marshal address", err)
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (id, order_number, customer_email, customer_name, items, subtotal, shipping, insurance, discount, total, status, shipping_address, tracking_number, stripe_payment_ref, source, fulfilled_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		order.ID, order.OrderNumber, strings.ToLower(strings.TrimSpace(order.CustomerEmail)), order.CustomerName,
		items, order.Subtotal, order.Shipping, order.Insurance, order.Discount, order.Total,
		string(order.Status), address, nullIfEmpty(order.TrackingNumber), order.PaymentRef,
		nullIfEmpty(order.Source), order.FulfilledAt, order.CreatedAt,
	)
	if err != nil {
		return wrapError("orders: insert", err)
	}
	return nil
}

// FindByPaymentRef loads the order materialized for an external payment.
func (r *OrderRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, order_number, customer_email, customer_name, items, subtotal, shipping, insurance, discount, total, status, shipping_address, tracking_number, stripe_payment_ref, source, fulfilled_at, created_at
		FROM orders WHERE stripe_payment_ref = $1`, strings.TrimSpace(paymentRef))
	return scanOrder(row, "orders: find by payment ref")
}

// MarkFulfilled stamps the order fulfilled and records the tracking number.
func (r *OrderRepository) MarkFulfilled(ctx context.Context, orderNumber, trackingNumber string, at time.Time) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, tracking_number = $3, fulfilled_at = $4
		WHERE order_number = $1
		RETURNING id, order_number, customer_email, customer_name, items, subtotal, shipping, insurance, discount, total, status, shipping_address, tracking_number, stripe_payment_ref, source, fulfilled_at, created_at`,
		strings.TrimSpace(orderNumber), string(domain.OrderFulfilled), nullIfEmpty(trackingNumber), at.UTC())
	return scanOrder(row, "orders: mark fulfilled")
}

func scanOrder(row pgx.Row, op string) (domain.Order, error) {
	var (
		order    domain.Order
		items    []byte
		address  []byte
		tracking *string
		source   *string
		status   string
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.CustomerEmail, &order.CustomerName,
		&items, &order.Subtotal, &order.Shipping, &order.Insurance, &order.Discount, &order.Total,
		&status, &address, &tracking, &order.PaymentRef, &source, &order.FulfilledAt, &order.CreatedAt)
	if err != nil {
		return domain.Order{}, wrapError(op, err)
	}
	order.Status = domain.OrderStatus(status)
	if tracking != nil {
		order.TrackingNumber = *tracking
	}
	if source != nil {
		order.Source = *source
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return domain.Order{}, repositories.NewInternal("orders: unmarshal items", err)
		}
	}
	if len(address) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(address, &addr); err != nil {
			return domain.Order{}, repositories.NewInternal("orders: unmarshal address", err)
		}
		order.ShippingAddr = &addr
	}
	return order, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
