// Package memory provides the in-process inventory fallback used when the
// persistent store is unreachable.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/repositories"
)

// VolatileInventoryStore is an in-process InventoryRepository. Its contents
// do not survive a restart; it exists so the admin inventory UI keeps
// functioning through a database outage.
type VolatileInventoryStore struct {
	mu          sync.RWMutex
	items       map[string]domain.InventoryItem
	adjustments map[string][]domain.InventoryAdjustment
}

// NewVolatileInventoryStore builds an empty volatile store.
func NewVolatileInventoryStore() *VolatileInventoryStore {
	return &VolatileInventoryStore{
		items:       make(map[string]domain.InventoryItem),
		adjustments: make(map[string][]domain.InventoryAdjustment),
	}
}

// Seed loads initial items without producing audit records.
func (s *VolatileInventoryStore) Seed(items []domain.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.ID] = item
	}
}

// GetItem returns one item or a not-found repository error.
func (s *VolatileInventoryStore) GetItem(_ context.Context, id string) (domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return domain.InventoryItem{}, repositories.NewNotFound("memory: get item", errors.New("inventory item not found"))
	}
	return item, nil
}

// ListItems returns all items ordered by SKU.
func (s *VolatileInventoryStore) ListItems(context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

// SaveItem upserts one item.
func (s *VolatileInventoryStore) SaveItem(_ context.Context, item domain.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

// AppendAdjustment records one audit entry in process memory.
func (s *VolatileInventoryStore) AppendAdjustment(_ context.Context, adj domain.InventoryAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[adj.ItemID] = append(s.adjustments[adj.ItemID], adj)
	return nil
}

// ListAdjustments returns the newest audit entries for an item.
func (s *VolatileInventoryStore) ListAdjustments(_ context.Context, itemID string, limit int) ([]domain.InventoryAdjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.adjustments[itemID]
	out := make([]domain.InventoryAdjustment, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}
