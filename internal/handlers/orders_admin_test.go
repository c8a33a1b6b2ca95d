package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/orders"
)

func newFulfillRouter(t *testing.T, repo *fakeOrderRepo) chi.Router {
	t.Helper()
	fulfillment, err := orders.NewFulfillment(orders.FulfillmentDeps{Orders: repo})
	if err != nil {
		t.Fatalf("NewFulfillment: %v", err)
	}
	r := chi.NewRouter()
	NewOrderAdminHandlers(fulfillment).Routes(r)
	return r
}

func seedOrder(repo *fakeOrderRepo, orderNumber, paymentRef string) {
	repo.byRef[paymentRef] = domain.Order{
		ID:            "order-1",
		OrderNumber:   orderNumber,
		CustomerEmail: "buyer@example.com",
		Total:         3495,
		Status:        domain.OrderUnfulfilled,
		PaymentRef:    paymentRef,
	}
}

func postFulfill(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestFulfillOrderEndpoint(t *testing.T) {
	repo := newFakeOrderRepo()
	seedOrder(repo, "TL-001", "pi_sh1")
	router := newFulfillRouter(t, repo)

	rec := postFulfill(t, router, "/orders/TL-001/fulfill", map[string]string{"trackingNumber": "1ZTRACK99"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OrderNumber    string `json:"orderNumber"`
		Status         string `json:"status"`
		TrackingNumber string `json:"trackingNumber"`
		FulfilledAt    string `json:"fulfilledAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(domain.OrderFulfilled) {
		t.Errorf("status = %q, want fulfilled", resp.Status)
	}
	if resp.TrackingNumber != "1ZTRACK99" {
		t.Errorf("tracking number = %q", resp.TrackingNumber)
	}
	if resp.FulfilledAt == "" {
		t.Error("expected fulfilledAt to be set")
	}
}

func TestFulfillOrderEndpointRequiresTracking(t *testing.T) {
	repo := newFakeOrderRepo()
	seedOrder(repo, "TL-001", "pi_sh2")
	router := newFulfillRouter(t, repo)

	rec := postFulfill(t, router, "/orders/TL-001/fulfill", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFulfillOrderEndpointUnknownOrder(t *testing.T) {
	router := newFulfillRouter(t, newFakeOrderRepo())

	rec := postFulfill(t, router, "/orders/TL-404/fulfill", map[string]string{"trackingNumber": "1Z"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFulfillOrderEndpointUnconfigured(t *testing.T) {
	r := chi.NewRouter()
	NewOrderAdminHandlers(nil).Routes(r)

	rec := postFulfill(t, r, "/orders/TL-001/fulfill", map[string]string{"trackingNumber": "1Z"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
