package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/api/internal/domain"
)

// CustomerRepository keeps lifetime purchase stats keyed by email.
type CustomerRepository struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

// NewCustomerRepository wraps the pool in a customer repository.
func NewCustomerRepository(pool *pgxpool.Pool, clock func() time.Time) *CustomerRepository {
	if clock == nil {
		clock = time.Now
	}
	return &CustomerRepository{pool: pool, clock: func() time.Time { return clock().UTC() }}
}

// RecordOrder upserts the customer in one statement. The increments happen
// inside the database, so concurrent webhooks for the same email cannot
// lose an update the way a read-modify-write would.
func (r *CustomerRepository) RecordOrder(ctx context.Context, email, name string, total int64, acceptsMarketing bool) (domain.Customer, error) {
	now := r.clock()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (email, name, orders_count, total_spent, accepts_marketing, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			orders_count = customers.orders_count + 1,
			total_spent = customers.total_spent + EXCLUDED.total_spent,
			accepts_marketing = customers.accepts_marketing OR EXCLUDED.accepts_marketing,
			updated_at = EXCLUDED.updated_at
		RETURNING email, name, orders_count, total_spent, accepts_marketing, created_at, updated_at`,
		normaliseEmail(email), strings.TrimSpace(name), total, acceptsMarketing, now,
	)
	return scanCustomer(row)
}

// FindByEmail loads a customer record.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, name, orders_count, total_spent, accepts_marketing, created_at, updated_at
		FROM customers WHERE email = $1`, normaliseEmail(email))
	return scanCustomer(row)
}

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.Email, &c.Name, &c.OrdersCount, &c.TotalSpent, &c.AcceptsMarketing, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Customer{}, wrapError("customers: scan", err)
	}
	return c, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
