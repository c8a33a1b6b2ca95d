package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/payments"
	"github.com/threadloom/api/internal/repositories"
)

// memOrderRepo enforces payment-reference uniqueness the way the database
// unique index does.
type memOrderRepo struct {
	mu     sync.Mutex
	seq    int64
	byRef  map[string]domain.Order
	numErr error
	insErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{byRef: map[string]domain.Order{}}
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.insErr != nil {
		return r.insErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[order.PaymentRef]; exists {
		return repositories.NewConflict("orders.insert", errors.New("duplicate payment ref"))
	}
	r.byRef[order.PaymentRef] = order
	return nil
}

func (r *memOrderRepo) FindByPaymentRef(_ context.Context, paymentRef string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byRef[paymentRef]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("orders.find", errors.New("no order for payment ref"))
	}
	return order, nil
}

func (r *memOrderRepo) MarkFulfilled(_ context.Context, orderNumber, trackingNumber string, at time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ref, order := range r.byRef {
		if order.OrderNumber == orderNumber {
			order.Status = domain.OrderFulfilled
			order.TrackingNumber = trackingNumber
			order.FulfilledAt = &at
			r.byRef[ref] = order
			return order, nil
		}
	}
	return domain.Order{}, repositories.NewNotFound("orders.fulfill", errors.New("no order for number"))
}

func (r *memOrderRepo) NextOrderNumber(_ context.Context) (int64, error) {
	if r.numErr != nil {
		return 0, r.numErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq, nil
}

type memCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]domain.Customer
	err       error
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{customers: map[string]domain.Customer{}}
}

func (r *memCustomerRepo) RecordOrder(_ context.Context, email, name string, total int64, acceptsMarketing bool) (domain.Customer, error) {
	if r.err != nil {
		return domain.Customer{}, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.customers[email]
	c.Email = email
	if c.Name == "" {
		c.Name = name
	}
	c.OrdersCount++
	c.TotalSpent += total
	c.AcceptsMarketing = c.AcceptsMarketing || acceptsMarketing
	r.customers[email] = c
	return c, nil
}

func (r *memCustomerRepo) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[email]
	if !ok {
		return domain.Customer{}, repositories.NewNotFound("customers.find", errors.New("no customer for email"))
	}
	return c, nil
}

type capturedEvents struct {
	mu     sync.Mutex
	events []domain.ConversionEvent
}

func (c *capturedEvents) PurchaseCompleted(_ context.Context, event domain.ConversionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturedEvents) all() []domain.ConversionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ConversionEvent(nil), c.events...)
}

func testRecord(paymentRef string) PaymentRecord {
	return PaymentRecord{
		PaymentRef: paymentRef,
		Amount:     3495,
		Currency:   "usd",
		Email:      "buyer@example.com",
		Name:       "Quinn Harper",
		Metadata: map[string]string{
			payments.MetaItems:    `[{"bundle_id":"love-pack","bundle_name":"Love Pack","design_id":"wildflower","design_name":"Wildflower","quantity":1,"price":3000}]`,
			payments.MetaSource:   "elements",
			payments.MetaSubtotal: "3000",
			payments.MetaShipping: "495",
			payments.MetaEventID:  "evt-abc",
			payments.MetaClickID:  "fb.1.99",
		},
		CompletedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func newTestMaterializer(t *testing.T, deps MaterializerDeps) *Materializer {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 3, 14, 9, 31, 0, 0, time.UTC) }
	}
	var n int
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { n++; return fmt.Sprintf("order-%d", n) }
	}
	m, err := NewMaterializer(deps)
	if err != nil {
		t.Fatalf("NewMaterializer: %v", err)
	}
	return m
}

func TestMaterializeCreatesOrderAndCustomer(t *testing.T) {
	ordersRepo := newMemOrderRepo()
	customers := newMemCustomerRepo()
	events := &capturedEvents{}
	m := newTestMaterializer(t, MaterializerDeps{
		Orders:    ordersRepo,
		Customers: customers,
		Analytics: events,
	})

	order, err := m.Materialize(context.Background(), testRecord("pi_1"))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if order.OrderNumber != "TL-001" {
		t.Errorf("order number = %q, want TL-001", order.OrderNumber)
	}
	if order.Status != domain.OrderUnfulfilled {
		t.Errorf("status = %q, want unfulfilled", order.Status)
	}
	if want := order.Subtotal + order.Shipping + order.Insurance - order.Discount; order.Total != want {
		t.Errorf("total = %d, components sum to %d", order.Total, want)
	}

	c, err := customers.FindByEmail(context.Background(), "buyer@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if c.OrdersCount != 1 || c.TotalSpent != 3495 {
		t.Errorf("customer stats = %d orders / %d spent", c.OrdersCount, c.TotalSpent)
	}

	got := events.all()
	if len(got) != 1 {
		t.Fatalf("conversion events = %d, want 1", len(got))
	}
	if got[0].EventID != "evt-abc" || got[0].Name != "Purchase" || got[0].Value != 3495 {
		t.Errorf("event = %+v", got[0])
	}
}

func TestMaterializeDuplicateDeliveryCreatesOneOrder(t *testing.T) {
	ordersRepo := newMemOrderRepo()
	customers := newMemCustomerRepo()
	m := newTestMaterializer(t, MaterializerDeps{Orders: ordersRepo, Customers: customers})

	record := testRecord("pi_dup")
	first, err := m.Materialize(context.Background(), record)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := m.Materialize(context.Background(), record)
	if err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}
	if first.OrderNumber != second.OrderNumber {
		t.Errorf("replay returned a different order: %q vs %q", first.OrderNumber, second.OrderNumber)
	}
	if len(ordersRepo.byRef) != 1 {
		t.Errorf("order rows = %d, want exactly 1", len(ordersRepo.byRef))
	}
	// The replay must not double-count customer stats.
	c, _ := customers.FindByEmail(context.Background(), "buyer@example.com")
	if c.OrdersCount != 1 {
		t.Errorf("orders count = %d after replay, want 1", c.OrdersCount)
	}
}

func TestMaterializeConcurrentDeliveries(t *testing.T) {
	ordersRepo := newMemOrderRepo()
	customers := newMemCustomerRepo()
	m := newTestMaterializer(t, MaterializerDeps{Orders: ordersRepo, Customers: customers})

	record := testRecord("pi_race")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Materialize(context.Background(), record); err != nil {
				t.Errorf("Materialize: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(ordersRepo.byRef) != 1 {
		t.Fatalf("order rows = %d, want exactly 1", len(ordersRepo.byRef))
	}
}

func TestMaterializeMissingMetadataAborts(t *testing.T) {
	ordersRepo := newMemOrderRepo()
	m := newTestMaterializer(t, MaterializerDeps{Orders: ordersRepo, Customers: newMemCustomerRepo()})

	record := testRecord("pi_bare")
	record.Metadata = map[string]string{payments.MetaSource: "elements"}
	if _, err := m.Materialize(context.Background(), record); !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("err = %v, want ErrMissingMetadata", err)
	}
	if len(ordersRepo.byRef) != 0 {
		t.Fatal("no order should exist without item metadata")
	}
}

func TestMaterializeInsertFailureSkipsSideEffects(t *testing.T) {
	ordersRepo := newMemOrderRepo()
	ordersRepo.insErr = repositories.NewUnavailable("orders", errors.New("connection refused"))
	customers := newMemCustomerRepo()
	events := &capturedEvents{}
	m := newTestMaterializer(t, MaterializerDeps{
		Orders:    ordersRepo,
		Customers: customers,
		Analytics: events,
	})

	if _, err := m.Materialize(context.Background(), testRecord("pi_down")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(customers.customers) != 0 {
		t.Error("customer was mutated despite failed insert")
	}
	if len(events.all()) != 0 {
		t.Error("conversion event fired despite failed insert")
	}
}

func TestMaterializeCustomerFailureKeepsOrder(t *testing.T) {
	ordersRepo := newMemOrderRepo()
	customers := newMemCustomerRepo()
	customers.err = repositories.NewUnavailable("customers", errors.New("connection reset"))
	m := newTestMaterializer(t, MaterializerDeps{Orders: ordersRepo, Customers: customers})

	order, err := m.Materialize(context.Background(), testRecord("pi_cust"))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, ferr := ordersRepo.FindByPaymentRef(context.Background(), order.PaymentRef); ferr != nil {
		t.Fatalf("order missing after customer failure: %v", ferr)
	}
}

func TestParseDraftMetadataShapes(t *testing.T) {
	record := testRecord("pi_meta")
	record.Email = ""
	record.Name = ""
	record.Metadata[payments.MetaCustomerEmail] = "Meta@Example.com"
	record.Metadata[payments.MetaCustomerName] = "Meta Buyer"
	record.Metadata[payments.MetaShippingAddress] = `{"line1":"1 Loom St","city":"Portland","postal_code":"97201","country":"US"}`

	d, err := parseDraft(record)
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if d.Email != "meta@example.com" {
		t.Errorf("email = %q, want fallback from metadata", d.Email)
	}
	if d.Name != "Meta Buyer" {
		t.Errorf("name = %q", d.Name)
	}
	if d.ShippingAddr == nil || d.ShippingAddr.City != "Portland" {
		t.Errorf("shipping address not decoded: %+v", d.ShippingAddr)
	}
	if d.Attribution.ClickID != "fb.1.99" || d.Attribution.EventID != "evt-abc" {
		t.Errorf("attribution = %+v", d.Attribution)
	}
}
