// Package postgres implements the repository contracts on a managed
// Postgres backend via pgx connection pooling.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 5 * time.Second

// Connect opens and pings a pgx pool for the given DSN. A non-positive
// maxConns keeps the driver default.
func Connect(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres: database url is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the tables, sequence, and constraints the
// repositories rely on. The unique index on stripe_payment_ref is what
// makes order materialization idempotent under webhook redelivery.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS order_number_seq START 1`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			customer_name TEXT,
			items JSONB NOT NULL,
			subtotal BIGINT NOT NULL,
			shipping BIGINT NOT NULL DEFAULT 0,
			insurance BIGINT NOT NULL DEFAULT 0,
			discount BIGINT NOT NULL DEFAULT 0,
			total BIGINT NOT NULL CHECK (total >= 0),
			status TEXT NOT NULL CHECK (status IN ('unfulfilled','processing','fulfilled','cancelled')) DEFAULT 'unfulfilled',
			shipping_address JSONB,
			tracking_number TEXT,
			stripe_payment_ref TEXT NOT NULL,
			source TEXT,
			fulfilled_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_ref ON orders (stripe_payment_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_email ON orders (customer_email)`,
		`CREATE TABLE IF NOT EXISTS customers (
			email TEXT PRIMARY KEY,
			name TEXT,
			orders_count INT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			accepts_marketing BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_items (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL,
			product_name TEXT NOT NULL,
			bundle_name TEXT,
			quantity INT NOT NULL DEFAULT 0,
			reserved INT NOT NULL DEFAULT 0,
			low_stock_threshold INT NOT NULL DEFAULT 5,
			track_inventory BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_adjustments (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			sku TEXT,
			adjustment_type TEXT NOT NULL,
			quantity_change INT NOT NULL,
			previous_quantity INT NOT NULL,
			new_quantity INT NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_adjustments_item ON inventory_adjustments (item_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return wrapError("postgres: ensure schema", err)
		}
	}
	return nil
}
