package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/api/internal/domain"
)

// InventoryRepository stores the stock ledger and its audit trail.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository wraps the pool in an inventory repository.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// GetItem loads one ledger row by ID.
func (r *InventoryRepository) GetItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, sku, product_name, bundle_name, quantity, reserved, low_stock_threshold, track_inventory, updated_at
		FROM inventory_items WHERE id = $1`, id)
	var item domain.InventoryItem
	err := row.Scan(&item.ID, &item.SKU, &item.ProductName, &item.BundleName,
		&item.Quantity, &item.Reserved, &item.LowStockThreshold, &item.TrackInventory, &item.UpdatedAt)
	if err != nil {
		return domain.InventoryItem{}, wrapError("inventory: get item", err)
	}
	return item, nil
}

// ListItems returns the full ledger ordered by SKU.
func (r *InventoryRepository) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sku, product_name, bundle_name, quantity, reserved, low_stock_threshold, track_inventory, updated_at
		FROM inventory_items ORDER BY sku`)
	if err != nil {
		return nil, wrapError("inventory: list items", err)
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ID, &item.SKU, &item.ProductName, &item.BundleName,
			&item.Quantity, &item.Reserved, &item.LowStockThreshold, &item.TrackInventory, &item.UpdatedAt); err != nil {
			return nil, wrapError("inventory: scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("inventory: list items", err)
	}
	return items, nil
}

// SaveItem upserts one ledger row.
func (r *InventoryRepository) SaveItem(ctx context.Context, item domain.InventoryItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inventory_items (id, sku, product_name, bundle_name, quantity, reserved, low_stock_threshold, track_inventory, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			product_name = EXCLUDED.product_name,
			bundle_name = EXCLUDED.bundle_name,
			quantity = EXCLUDED.quantity,
			reserved = EXCLUDED.reserved,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			track_inventory = EXCLUDED.track_inventory,
			updated_at = EXCLUDED.updated_at`,
		item.ID, item.SKU, item.ProductName, item.BundleName,
		item.Quantity, item.Reserved, item.LowStockThreshold, item.TrackInventory, item.UpdatedAt,
	)
	if err != nil {
		return wrapError("inventory: save item", err)
	}
	return nil
}

// AppendAdjustment writes one append-only audit record.
func (r *InventoryRepository) AppendAdjustment(ctx context.Context, adj domain.InventoryAdjustment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inventory_adjustments (id, item_id, sku, adjustment_type, quantity_change, previous_quantity, new_quantity, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		adj.ID, adj.ItemID, adj.SKU, string(adj.AdjustmentType),
		adj.QuantityChange, adj.PreviousQuantity, adj.NewQuantity, adj.Reason, adj.CreatedAt,
	)
	if err != nil {
		return wrapError("inventory: append adjustment", err)
	}
	return nil
}

// ListAdjustments returns the newest audit records for an item.
func (r *InventoryRepository) ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.InventoryAdjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, sku, adjustment_type, quantity_change, previous_quantity, new_quantity, reason, created_at
		FROM inventory_adjustments WHERE item_id = $1 ORDER BY created_at DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, wrapError("inventory: list adjustments", err)
	}
	defer rows.Close()

	adjustments := make([]domain.InventoryAdjustment, 0, limit)
	for rows.Next() {
		var adj domain.InventoryAdjustment
		var adjType string
		if err := rows.Scan(&adj.ID, &adj.ItemID, &adj.SKU, &adjType,
			&adj.QuantityChange, &adj.PreviousQuantity, &adj.NewQuantity, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, wrapError("inventory: scan adjustment", err)
		}
		adj.AdjustmentType = domain.AdjustmentType(adjType)
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("inventory: list adjustments", err)
	}
	return adjustments, nil
}
