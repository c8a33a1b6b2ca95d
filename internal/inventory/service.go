// Package inventory implements the stock ledger consulted by the admin
// dashboard. Every mutation appends an audit adjustment, even when the
// operation is served by the volatile fallback store.
package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/repositories"
)

var (
	// ErrInvalidInput signals the caller provided invalid arguments.
	ErrInvalidInput = errors.New("inventory: invalid input")
	// ErrNotFound indicates the inventory item could not be located.
	ErrNotFound = errors.New("inventory: item not found")
	// ErrUnavailable indicates the ledger backends are unreachable.
	ErrUnavailable = errors.New("inventory: unavailable")
)

// ServiceDeps bundles the collaborators required to construct the service.
type ServiceDeps struct {
	Repository  repositories.InventoryRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// Service exposes the ledger operations used by admin tooling.
type Service struct {
	repo   repositories.InventoryRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewService wires dependencies into a ledger service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Repository == nil {
		return nil, errors.New("inventory service: repository is required")
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
	return &Service{
		repo:   deps.Repository,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// Get returns one ledger item.
func (s *Service) Get(ctx context.Context, id string) (domain.InventoryItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InventoryItem{}, ErrInvalidInput
	}
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, s.translate(err)
	}
	return item, nil
}

// List returns the whole ledger.
func (s *Service) List(ctx context.Context) ([]domain.InventoryItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, s.translate(err)
	}
	return items, nil
}

// SetQuantity replaces the on-hand quantity and records the change.
func (s *Service) SetQuantity(ctx context.Context, id string, quantity int, reason string) (domain.InventoryItem, error) {
	if quantity < 0 {
		return domain.InventoryItem{}, ErrInvalidInput
	}
	return s.mutate(ctx, id, domain.AdjustmentSet, reason, func(current int) int { return quantity })
}

// Adjust applies a signed delta to the on-hand quantity and records it.
// The resulting quantity is floored at zero.
func (s *Service) Adjust(ctx context.Context, id string, delta int, adjType domain.AdjustmentType, reason string) (domain.InventoryItem, error) {
	if delta == 0 {
		return domain.InventoryItem{}, ErrInvalidInput
	}
	if adjType == "" {
		if delta > 0 {
			adjType = domain.AdjustmentAdd
		} else {
			adjType = domain.AdjustmentRemove
		}
	}
	return s.mutate(ctx, id, adjType, reason, func(current int) int {
		next := current + delta
		if next < 0 {
			return 0
		}
		return next
	})
}

// SetThreshold updates the low stock threshold without touching quantity.
func (s *Service) SetThreshold(ctx context.Context, id string, threshold int) (domain.InventoryItem, error) {
	if threshold < 0 {
		return domain.InventoryItem{}, ErrInvalidInput
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	item.LowStockThreshold = threshold
	item.UpdatedAt = s.clock()
	if err := s.repo.SaveItem(ctx, item); err != nil {
		return domain.InventoryItem{}, s.translate(err)
	}
	return item, nil
}

// Adjustments returns the newest audit records for an item.
func (s *Service) Adjustments(ctx context.Context, id string, limit int) ([]domain.InventoryAdjustment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	adjustments, err := s.repo.ListAdjustments(ctx, id, limit)
	if err != nil {
		return nil, s.translate(err)
	}
	return adjustments, nil
}

func (s *Service) mutate(ctx context.Context, id string, adjType domain.AdjustmentType, reason string, apply func(current int) int) (domain.InventoryItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	previous := item.Quantity
	item.Quantity = apply(previous)
	item.UpdatedAt = s.clock()
	if err := s.repo.SaveItem(ctx, item); err != nil {
		return domain.InventoryItem{}, s.translate(err)
	}

	adjustment := domain.InventoryAdjustment{
		ID:               s.newID(),
		ItemID:           item.ID,
		SKU:              item.SKU,
		AdjustmentType:   adjType,
		QuantityChange:   item.Quantity - previous,
		PreviousQuantity: previous,
		NewQuantity:      item.Quantity,
		Reason:           strings.TrimSpace(reason),
		CreatedAt:        s.clock(),
	}
	if err := s.repo.AppendAdjustment(ctx, adjustment); err != nil {
		// The quantity change is already applied; losing the audit row is
		// logged rather than unwound.
		s.logger(ctx, "inventory.audit_append_failed", map[string]any{
			"itemId": item.ID,
			"error":  err.Error(),
		})
	}
	return item, nil
}

func (s *Service) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case repositories.IsNotFound(err):
		return ErrNotFound
	case repositories.IsUnavailable(err):
		return ErrUnavailable
	default:
		return err
	}
}
