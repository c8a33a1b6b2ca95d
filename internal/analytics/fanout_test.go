package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/threadloom/api/internal/domain"
)

func testEvent() domain.ConversionEvent {
	return domain.ConversionEvent{
		EventID:     "evt-123",
		Name:        "Purchase",
		Value:       3495,
		Currency:    "usd",
		Email:       "Buyer@Example.com",
		ClickID:     "fb.1.99",
		BrowserID:   "fb.1.11",
		ClientID:    "555.666",
		OrderNumber: "TL-007",
		OccurredAt:  time.Date(2026, 3, 14, 9, 31, 0, 0, time.UTC),
	}
}

func resultFor(t *testing.T, results []Result, destination string) Result {
	t.Helper()
	for _, r := range results {
		if r.Destination == destination {
			return r
		}
	}
	t.Fatalf("no result for destination %q in %+v", destination, results)
	return Result{}
}

func TestDeliverSkipsUnconfiguredDestinations(t *testing.T) {
	f := NewFanout(Config{})

	results := f.Deliver(context.Background(), testEvent())
	if got := resultFor(t, results, "meta"); got.Status != StatusSkipped {
		t.Errorf("meta status = %q, want skipped", got.Status)
	}
	if got := resultFor(t, results, "ga4"); got.Status != StatusSkipped {
		t.Errorf("ga4 status = %q, want skipped", got.Status)
	}
}

func TestDeliverMetaPayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/px_1/events") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("access_token"); got != "tok_1" {
			t.Errorf("access_token = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFanout(Config{
		MetaPixelID:     "px_1",
		MetaAccessToken: "tok_1",
		MetaEndpoint:    srv.URL,
	})
	results := f.Deliver(context.Background(), testEvent())
	if got := resultFor(t, results, "meta"); got.Status != StatusSent {
		t.Fatalf("meta status = %q (%s), want sent", got.Status, got.Detail)
	}

	data := body["data"].([]any)[0].(map[string]any)
	if data["event_id"] != "evt-123" {
		t.Errorf("event_id = %v", data["event_id"])
	}
	userData := data["user_data"].(map[string]any)
	em := userData["em"].([]any)[0].(string)
	if len(em) != 64 || strings.ContainsAny(em, "@ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		t.Errorf("email not hashed: %q", em)
	}
	custom := data["custom_data"].(map[string]any)
	if custom["value"].(float64) != 34.95 {
		t.Errorf("value = %v, want 34.95", custom["value"])
	}
}

func TestDeliverGA4Payload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("measurement_id") != "G-TEST" || q.Get("api_secret") != "sec_1" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := NewFanout(Config{
		GAMeasurementID: "G-TEST",
		GAAPISecret:     "sec_1",
		GAEndpoint:      srv.URL,
	})
	results := f.Deliver(context.Background(), testEvent())
	if got := resultFor(t, results, "ga4"); got.Status != StatusSent {
		t.Fatalf("ga4 status = %q (%s), want sent", got.Status, got.Detail)
	}

	if body["client_id"] != "555.666" {
		t.Errorf("client_id = %v", body["client_id"])
	}
	params := body["events"].([]any)[0].(map[string]any)["params"].(map[string]any)
	if params["transaction_id"] != "TL-007" || params["event_id"] != "evt-123" {
		t.Errorf("params = %+v", params)
	}
}

func TestDeliverFailureIsIsolated(t *testing.T) {
	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad pixel", http.StatusBadRequest)
	}))
	defer metaSrv.Close()
	gaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer gaSrv.Close()

	f := NewFanout(Config{
		MetaPixelID:     "px_1",
		MetaAccessToken: "tok_1",
		MetaEndpoint:    metaSrv.URL,
		GAMeasurementID: "G-TEST",
		GAAPISecret:     "sec_1",
		GAEndpoint:      gaSrv.URL,
	})
	results := f.Deliver(context.Background(), testEvent())
	if got := resultFor(t, results, "meta"); got.Status != StatusFailed {
		t.Errorf("meta status = %q, want failed", got.Status)
	}
	if got := resultFor(t, results, "ga4"); got.Status != StatusSent {
		t.Errorf("ga4 status = %q, want sent despite meta failure", got.Status)
	}
}

func TestPurchaseCompletedDoesNotBlock(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFanout(Config{
		MetaPixelID:     "px_1",
		MetaAccessToken: "tok_1",
		MetaEndpoint:    srv.URL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.PurchaseCompleted(ctx, testEvent())
	// Cancelling the request context must not cancel the delivery.
	cancel()
	f.Wait()

	if calls.Load() != 1 {
		t.Fatalf("meta calls = %d, want 1", calls.Load())
	}
}
