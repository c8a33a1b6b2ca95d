package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/threadloom/api/internal/domain"
)

type captureShippingMailer struct {
	sent chan domain.Order
	err  error
}

func newCaptureShippingMailer() *captureShippingMailer {
	return &captureShippingMailer{sent: make(chan domain.Order, 1)}
}

func (m *captureShippingMailer) SendShippingNotice(_ context.Context, order domain.Order) error {
	m.sent <- order
	return m.err
}

func newFulfilledRepo(t *testing.T) *memOrderRepo {
	t.Helper()
	repo := newMemOrderRepo()
	m := newTestMaterializer(t, MaterializerDeps{Orders: repo, Customers: newMemCustomerRepo()})
	if _, err := m.Materialize(context.Background(), testRecord("pi_f1")); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return repo
}

func TestFulfillStampsOrderAndSendsNotice(t *testing.T) {
	repo := newFulfilledRepo(t)
	mailer := newCaptureShippingMailer()
	f, err := NewFulfillment(FulfillmentDeps{
		Orders: repo,
		Mailer: mailer,
		Clock:  func() time.Time { return time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewFulfillment: %v", err)
	}

	order, err := f.Fulfill(context.Background(), "TL-001", " 1ZTRACK99 ")
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if order.Status != domain.OrderFulfilled {
		t.Errorf("status = %q, want fulfilled", order.Status)
	}
	if order.TrackingNumber != "1ZTRACK99" {
		t.Errorf("tracking number = %q, want trimmed 1ZTRACK99", order.TrackingNumber)
	}
	if order.FulfilledAt == nil || !order.FulfilledAt.Equal(time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("fulfilled at = %v", order.FulfilledAt)
	}

	select {
	case mailed := <-mailer.sent:
		if mailed.OrderNumber != "TL-001" || mailed.TrackingNumber != "1ZTRACK99" {
			t.Errorf("shipping notice for %+v", mailed)
		}
	case <-time.After(time.Second):
		t.Fatal("shipping notice was never sent")
	}
}

func TestFulfillUnknownOrderNumber(t *testing.T) {
	f, err := NewFulfillment(FulfillmentDeps{Orders: newMemOrderRepo()})
	if err != nil {
		t.Fatalf("NewFulfillment: %v", err)
	}
	_, err = f.Fulfill(context.Background(), "TL-999", "1Z")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFulfillRequiresTrackingNumber(t *testing.T) {
	f, err := NewFulfillment(FulfillmentDeps{Orders: newFulfilledRepo(t)})
	if err != nil {
		t.Fatalf("NewFulfillment: %v", err)
	}
	if _, err := f.Fulfill(context.Background(), "TL-001", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFulfillToleratesMailFailure(t *testing.T) {
	mailer := newCaptureShippingMailer()
	mailer.err = errors.New("mail api down")
	f, err := NewFulfillment(FulfillmentDeps{Orders: newFulfilledRepo(t), Mailer: mailer})
	if err != nil {
		t.Fatalf("NewFulfillment: %v", err)
	}

	order, err := f.Fulfill(context.Background(), "TL-001", "1Z")
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if order.Status != domain.OrderFulfilled {
		t.Errorf("status = %q, want fulfilled despite mail failure", order.Status)
	}
	<-mailer.sent
}
