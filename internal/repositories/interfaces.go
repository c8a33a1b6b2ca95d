// Package repositories defines the persistence contracts consumed by the
// service layer, with a categorised error interface so services stay
// independent of the backing store.
package repositories

import (
	"context"
	"time"

	"github.com/threadloom/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the
// categorisation services branch on.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists materialized orders. Insert is idempotent on
// the external payment reference: a second insert for the same reference
// fails with a conflict error, which callers treat as already done.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error)
	// MarkFulfilled stamps the order fulfilled with a tracking number and
	// returns the updated row.
	MarkFulfilled(ctx context.Context, orderNumber, trackingNumber string, at time.Time) (domain.Order, error)
	NextOrderNumber(ctx context.Context) (int64, error)
}

// CustomerRepository keeps per-email lifetime purchase stats. RecordOrder
// performs the insert-or-increment in a single atomic statement.
type CustomerRepository interface {
	RecordOrder(ctx context.Context, email, name string, total int64, acceptsMarketing bool) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
}

// InventoryRepository stores the stock ledger and its append-only audit
// trail. Adjustments must be appended for every mutation.
type InventoryRepository interface {
	GetItem(ctx context.Context, id string) (domain.InventoryItem, error)
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
	SaveItem(ctx context.Context, item domain.InventoryItem) error
	AppendAdjustment(ctx context.Context, adjustment domain.InventoryAdjustment) error
	ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.InventoryAdjustment, error)
}

// IsNotFound reports whether err carries not-found categorisation.
func IsNotFound(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsNotFound()
}

// IsConflict reports whether err carries conflict categorisation.
func IsConflict(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries unavailable categorisation.
func IsUnavailable(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsUnavailable()
}
