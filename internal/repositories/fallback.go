package repositories

import (
	"context"

	"github.com/threadloom/api/internal/domain"
)

// FallbackInventoryRepository tries the durable backend first and serves
// from the volatile store when the backend is unavailable. Successful
// durable reads and writes are mirrored into the volatile store so the
// fallback holds last-known state. The fallback's contents do not survive
// a restart; that durability gap is accepted for this non-critical path.
type FallbackInventoryRepository struct {
	durable  InventoryRepository
	volatile InventoryRepository
}

// NewFallbackInventoryRepository pairs a durable repository with a
// volatile one. A nil durable repository degrades to volatile-only mode.
func NewFallbackInventoryRepository(durable, volatile InventoryRepository) *FallbackInventoryRepository {
	return &FallbackInventoryRepository{durable: durable, volatile: volatile}
}

// GetItem reads durable-first, falling back on outage.
func (r *FallbackInventoryRepository) GetItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	if r.durable == nil {
		return r.volatile.GetItem(ctx, id)
	}
	item, err := r.durable.GetItem(ctx, id)
	if err != nil {
		if IsUnavailable(err) {
			return r.volatile.GetItem(ctx, id)
		}
		return domain.InventoryItem{}, err
	}
	_ = r.volatile.SaveItem(ctx, item)
	return item, nil
}

// ListItems reads durable-first, falling back to last-known state on outage.
func (r *FallbackInventoryRepository) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	if r.durable == nil {
		return r.volatile.ListItems(ctx)
	}
	items, err := r.durable.ListItems(ctx)
	if err != nil {
		if IsUnavailable(err) {
			return r.volatile.ListItems(ctx)
		}
		return nil, err
	}
	for _, item := range items {
		_ = r.volatile.SaveItem(ctx, item)
	}
	return items, nil
}

// SaveItem writes durable-first; on outage the write lands in the
// volatile store so the admin UI stays consistent with what it showed.
func (r *FallbackInventoryRepository) SaveItem(ctx context.Context, item domain.InventoryItem) error {
	if r.durable == nil {
		return r.volatile.SaveItem(ctx, item)
	}
	if err := r.durable.SaveItem(ctx, item); err != nil {
		if IsUnavailable(err) {
			return r.volatile.SaveItem(ctx, item)
		}
		return err
	}
	_ = r.volatile.SaveItem(ctx, item)
	return nil
}

// AppendAdjustment always records the audit entry somewhere, even when the
// durable store is down.
func (r *FallbackInventoryRepository) AppendAdjustment(ctx context.Context, adj domain.InventoryAdjustment) error {
	if r.durable == nil {
		return r.volatile.AppendAdjustment(ctx, adj)
	}
	if err := r.durable.AppendAdjustment(ctx, adj); err != nil {
		if IsUnavailable(err) {
			return r.volatile.AppendAdjustment(ctx, adj)
		}
		return err
	}
	return nil
}

// ListAdjustments reads durable-first, falling back on outage.
func (r *FallbackInventoryRepository) ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.InventoryAdjustment, error) {
	if r.durable == nil {
		return r.volatile.ListAdjustments(ctx, itemID, limit)
	}
	adjustments, err := r.durable.ListAdjustments(ctx, itemID, limit)
	if err != nil && IsUnavailable(err) {
		return r.volatile.ListAdjustments(ctx, itemID, limit)
	}
	return adjustments, err
}
