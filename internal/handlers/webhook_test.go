package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/orders"
	"github.com/threadloom/api/internal/repositories"
)

type fakeOrderRepo struct {
	mu    sync.Mutex
	seq   int64
	byRef map[string]domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byRef: map[string]domain.Order{}}
}

func (r *fakeOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[order.PaymentRef]; exists {
		return repositories.NewConflict("orders.insert", errors.New("duplicate payment ref"))
	}
	r.byRef[order.PaymentRef] = order
	return nil
}

func (r *fakeOrderRepo) FindByPaymentRef(_ context.Context, paymentRef string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byRef[paymentRef]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("orders.find", errors.New("no order"))
	}
	return order, nil
}

func (r *fakeOrderRepo) MarkFulfilled(_ context.Context, orderNumber, trackingNumber string, at time.Time) (domain.Order, error) {
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

func (r *fakeOrderRepo) NextOrderNumber(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq, nil
}

type fakeCustomerRepo struct{}

func (fakeCustomerRepo) RecordOrder(_ context.Context, email, name string, total int64, _ bool) (domain.Customer, error) {
	return domain.Customer{Email: email, Name: name, OrdersCount: 1, TotalSpent: total}, nil
}

func (fakeCustomerRepo) FindByEmail(context.Context, string) (domain.Customer, error) {
	return domain.Customer{}, repositories.NewNotFound("customers.find", errors.New("no customer"))
}

func newWebhookRouter(t *testing.T, repo *fakeOrderRepo, verify eventVerifier) chi.Router {
	t.Helper()
	materializer, err := orders.NewMaterializer(orders.MaterializerDeps{
		Orders:    repo,
		Customers: fakeCustomerRepo{},
	})
	if err != nil {
		t.Fatalf("NewMaterializer: %v", err)
	}
	h := NewWebhookHandlers("whsec_test", materializer)
	if verify != nil {
		h.verify = verify
	}

	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func intentEvent(t *testing.T, paymentRef string) []byte {
	t.Helper()
	intent := map[string]any{
		"id":            paymentRef,
		"amount":        3495,
		"currency":      "usd",
		"receipt_email": "buyer@example.com",
		"metadata": map[string]string{
			"items":    `[{"bundle_id":"love-pack","bundle_name":"Love Pack","design_id":"wildflower","design_name":"Wildflower","quantity":1,"price":3000}]`,
			"source":   "elements",
			"subtotal": "3000",
			"shipping": "495",
		},
	}
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	event, err := json.Marshal(map[string]any{
		"id":      "evt_1",
		"type":    "payment_intent.succeeded",
		"created": 1765700000,
		"data":    map[string]any{"object": json.RawMessage(raw)},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return event
}

func passVerifier(payload []byte, _ string, _ string) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	repo := newFakeOrderRepo()
	router := newWebhookRouter(t, repo, func([]byte, string, string) (stripe.Event, error) {
		return stripe.Event{}, errors.New("signature mismatch")
	})

	req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(intentEvent(t, "pi_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if len(repo.byRef) != 0 {
		t.Fatal("order created despite failed signature verification")
	}
}

func TestWebhookMaterializesIntentSucceeded(t *testing.T) {
	repo := newFakeOrderRepo()
	router := newWebhookRouter(t, repo, passVerifier)

	req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(intentEvent(t, "pi_2")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["received"] {
		t.Fatalf("response = %v, want received true", resp)
	}

	order, ok := repo.byRef["pi_2"]
	if !ok {
		t.Fatal("no order materialized")
	}
	if order.OrderNumber != "TL-001" || order.Total != 3495 {
		t.Errorf("order = %+v", order)
	}
}

func TestWebhookReplayAcknowledgedWithoutDuplicate(t *testing.T) {
	repo := newFakeOrderRepo()
	router := newWebhookRouter(t, repo, passVerifier)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(intentEvent(t, "pi_replay")))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d", i, rr.Code)
		}
	}

	if len(repo.byRef) != 1 {
		t.Fatalf("order rows = %d, want exactly 1", len(repo.byRef))
	}
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	repo := newFakeOrderRepo()
	router := newWebhookRouter(t, repo, passVerifier)

	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_x",
		"type": "customer.created",
		"data": map[string]any{"object": map[string]any{}},
	})
	req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 acknowledgement", rr.Code)
	}
	if len(repo.byRef) != 0 {
		t.Fatal("order created for unrelated event type")
	}
}

func TestWebhookMissingMetadataStillAcknowledged(t *testing.T) {
	repo := newFakeOrderRepo()
	router := newWebhookRouter(t, repo, passVerifier)

	raw, _ := json.Marshal(map[string]any{"id": "pi_bare", "amount": 1000, "currency": "usd"})
	payload, _ := json.Marshal(map[string]any{
		"id":      "evt_bare",
		"type":    "payment_intent.succeeded",
		"created": 1765700000,
		"data":    map[string]any{"object": json.RawMessage(raw)},
	})
	req := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(repo.byRef) != 0 {
		t.Fatal("order created without item metadata")
	}
}
