package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/repositories"
	"github.com/threadloom/api/internal/repositories/memory"
)

func testClock() time.Time {
	return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, repo repositories.InventoryRepository) *Service {
	t.Helper()
	seq := 0
	svc, err := NewService(ServiceDeps{
		Repository: repo,
		Clock:      testClock,
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("adj-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seededStore() *memory.VolatileInventoryStore {
	store := memory.NewVolatileInventoryStore()
	store.Seed([]domain.InventoryItem{
		{ID: "inv-1", SKU: "TL-BND-LOVE", ProductName: "Love Pack", Quantity: 20, Reserved: 3, LowStockThreshold: 5, TrackInventory: true},
		{ID: "inv-2", SKU: "TL-BND-STUDIO", ProductName: "Studio Pack", Quantity: 2, Reserved: 6, LowStockThreshold: 5, TrackInventory: true},
	})
	return store
}

func TestAvailableNeverNegative(t *testing.T) {
	svc := newTestService(t, seededStore())

	item, err := svc.Get(context.Background(), "inv-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Available() != 0 {
		t.Fatalf("reserved > quantity must report available 0, got %d", item.Available())
	}
	if item.Status() != domain.StockOutOfStock {
		t.Fatalf("expected out_of_stock, got %s", item.Status())
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		quantity, reserved, threshold int
		want                          domain.StockStatus
	}{
		{20, 3, 5, domain.StockInStock},
		{8, 3, 5, domain.StockLowStock},
		{3, 3, 5, domain.StockOutOfStock},
		{5, 0, 5, domain.StockLowStock},
	}
	for _, tc := range cases {
		item := domain.InventoryItem{Quantity: tc.quantity, Reserved: tc.reserved, LowStockThreshold: tc.threshold}
		if got := item.Status(); got != tc.want {
			t.Fatalf("qty=%d reserved=%d threshold=%d: expected %s, got %s",
				tc.quantity, tc.reserved, tc.threshold, tc.want, got)
		}
	}
}

func TestSetQuantityWritesAdjustment(t *testing.T) {
	store := seededStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	item, err := svc.SetQuantity(ctx, "inv-1", 12, "cycle count")
	if err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if item.Quantity != 12 {
		t.Fatalf("expected quantity 12, got %d", item.Quantity)
	}

	adjustments, err := svc.Adjustments(ctx, "inv-1", 10)
	if err != nil {
		t.Fatalf("Adjustments: %v", err)
	}
	if len(adjustments) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(adjustments))
	}
	adj := adjustments[0]
	if adj.AdjustmentType != domain.AdjustmentSet || adj.PreviousQuantity != 20 || adj.NewQuantity != 12 || adj.QuantityChange != -8 {
		t.Fatalf("unexpected adjustment %+v", adj)
	}
	if adj.Reason != "cycle count" {
		t.Fatalf("expected reason recorded, got %q", adj.Reason)
	}
}

func TestAdjustFloorsAtZero(t *testing.T) {
	svc := newTestService(t, seededStore())

	item, err := svc.Adjust(context.Background(), "inv-1", -50, domain.AdjustmentRemove, "damaged stock")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if item.Quantity != 0 {
		t.Fatalf("expected floor at 0, got %d", item.Quantity)
	}
}

func TestAdjustInfersType(t *testing.T) {
	store := seededStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.Adjust(ctx, "inv-1", 5, "", "restock"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	adjustments, _ := svc.Adjustments(ctx, "inv-1", 1)
	if adjustments[0].AdjustmentType != domain.AdjustmentAdd {
		t.Fatalf("expected inferred add type, got %s", adjustments[0].AdjustmentType)
	}
}

func TestMutationRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, seededStore())
	ctx := context.Background()

	if _, err := svc.SetQuantity(ctx, "inv-1", -1, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Adjust(ctx, "inv-1", 0, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// unavailableRepo simulates a durable backend outage for every operation.
type unavailableRepo struct{}

func (unavailableRepo) GetItem(context.Context, string) (domain.InventoryItem, error) {
	return domain.InventoryItem{}, repositories.NewUnavailable("stub", errors.New("connection refused"))
}
func (unavailableRepo) ListItems(context.Context) ([]domain.InventoryItem, error) {
	return nil, repositories.NewUnavailable("stub", errors.New("connection refused"))
}
func (unavailableRepo) SaveItem(context.Context, domain.InventoryItem) error {
	return repositories.NewUnavailable("stub", errors.New("connection refused"))
}
func (unavailableRepo) AppendAdjustment(context.Context, domain.InventoryAdjustment) error {
	return repositories.NewUnavailable("stub", errors.New("connection refused"))
}
func (unavailableRepo) ListAdjustments(context.Context, string, int) ([]domain.InventoryAdjustment, error) {
	return nil, repositories.NewUnavailable("stub", errors.New("connection refused"))
}

func TestFallbackServesVolatileStateDuringOutage(t *testing.T) {
	volatile := seededStore()
	repo := repositories.NewFallbackInventoryRepository(unavailableRepo{}, volatile)
	svc := newTestService(t, repo)
	ctx := context.Background()

	// Mutations land in the volatile store and still produce audit records.
	item, err := svc.SetQuantity(ctx, "inv-1", 7, "outage edit")
	if err != nil {
		t.Fatalf("SetQuantity during outage: %v", err)
	}
	if item.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", item.Quantity)
	}

	items, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List during outage: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected last-known 2 items, got %d", len(items))
	}

	adjustments, err := svc.Adjustments(ctx, "inv-1", 10)
	if err != nil {
		t.Fatalf("Adjustments during outage: %v", err)
	}
	if len(adjustments) != 1 {
		t.Fatalf("expected audit record despite outage, got %d", len(adjustments))
	}
}
