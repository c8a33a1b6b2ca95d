// Package analytics delivers server-side conversion events to the ad
// platforms. Every delivery shares the event ID the browser pixel already
// reported so each platform can deduplicate the client and server copies.
// Delivery is best effort: failures are logged and swallowed, never
// surfaced to the checkout flow.
package analytics

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/threadloom/api/internal/domain"
)

// Delivery statuses reported per destination.
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

const (
	defaultMetaEndpoint = "https://graph.facebook.com/v19.0"
	defaultGAEndpoint   = "https://www.google-analytics.com/mp/collect"
)

// Result records the outcome of one destination delivery.
type Result struct {
	Destination string
	Status      string
	Detail      string
}

// Config holds destination credentials. Any credential left empty degrades
// that destination to skipped rather than failing the event.
type Config struct {
	MetaPixelID     string
	MetaAccessToken string
	GAMeasurementID string
	GAAPISecret     string

	// Endpoint overrides for tests.
	MetaEndpoint string
	GAEndpoint   string

	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Fanout dispatches purchase events to the configured destinations.
type Fanout struct {
	cfg     Config
	client  *http.Client
	timeout time.Duration
	logger  func(context.Context, string, map[string]any)
	wg      sync.WaitGroup
}

// NewFanout applies defaults; a zero Config is valid and skips everything.
func NewFanout(cfg Config) *Fanout {
	if cfg.MetaEndpoint == "" {
		cfg.MetaEndpoint = defaultMetaEndpoint
	}
	if cfg.GAEndpoint == "" {
		cfg.GAEndpoint = defaultGAEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Fanout{cfg: cfg, client: client, timeout: timeout, logger: logger}
}

// PurchaseCompleted dispatches the event to all destinations without
// blocking the caller. The deliveries run concurrently with the webhook
// response being written.
func (f *Fanout) PurchaseCompleted(ctx context.Context, event domain.ConversionEvent) {
	if f == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		sendCtx, cancel := context.WithTimeout(detached, f.timeout)
		defer cancel()
		for _, res := range f.Deliver(sendCtx, event) {
			f.logger(sendCtx, "analytics.delivery", map[string]any{
				"destination": res.Destination,
				"status":      res.Status,
				"detail":      res.Detail,
				"eventID":     event.EventID,
			})
		}
	}()
}

// Wait blocks until all in-flight deliveries finish. Used at shutdown.
func (f *Fanout) Wait() {
	if f != nil {
		f.wg.Wait()
	}
}

// Deliver runs every destination synchronously and reports per-destination
// outcomes. Destination failures never affect each other.
func (f *Fanout) Deliver(ctx context.Context, event domain.ConversionEvent) []Result {
	results := make([]Result, 0, 2)
	results = append(results, f.deliverMeta(ctx, event))
	results = append(results, f.deliverGA(ctx, event))
	return results
}

func (f *Fanout) deliverMeta(ctx context.Context, event domain.ConversionEvent) Result {
	if f.cfg.MetaPixelID == "" || f.cfg.MetaAccessToken == "" {
		return Result{Destination: "meta", Status: StatusSkipped, Detail: "no access token"}
	}

	userData := map[string]any{}
	if event.Email != "" {
		userData["em"] = []string{hashIdentifier(event.Email)}
	}
	if event.ClickID != "" {
		userData["fbc"] = event.ClickID
	}
	if event.BrowserID != "" {
		userData["fbp"] = event.BrowserID
	}
	payload := map[string]any{
		"data": []map[string]any{{
			"event_name":    "Purchase",
			"event_time":    event.OccurredAt.Unix(),
			"event_id":      event.EventID,
			"action_source": "website",
			"user_data":     userData,
			"custom_data": map[string]any{
				"currency": strings.ToUpper(event.Currency),
				"value":    minorToDecimal(event.Value),
			},
		}},
	}

	url := fmt.Sprintf("%s/%s/events?access_token=%s", f.cfg.MetaEndpoint, f.cfg.MetaPixelID, f.cfg.MetaAccessToken)
	if err := f.post(ctx, url, payload); err != nil {
		return Result{Destination: "meta", Status: StatusFailed, Detail: err.Error()}
	}
	return Result{Destination: "meta", Status: StatusSent}
}

func (f *Fanout) deliverGA(ctx context.Context, event domain.ConversionEvent) Result {
	if f.cfg.GAMeasurementID == "" || f.cfg.GAAPISecret == "" {
		return Result{Destination: "ga4", Status: StatusSkipped, Detail: "no api secret"}
	}

	clientID := event.ClientID
	if clientID == "" {
		// GA requires a client ID; without the browser's we can still
		// record the purchase under a synthetic one.
		clientID = fmt.Sprintf("server.%s", event.EventID)
	}
	payload := map[string]any{
		"client_id": clientID,
		"events": []map[string]any{{
			"name": "purchase",
			"params": map[string]any{
				"transaction_id": event.OrderNumber,
				"value":          minorToDecimal(event.Value),
				"currency":       strings.ToUpper(event.Currency),
				"event_id":       event.EventID,
			},
		}},
	}

	url := fmt.Sprintf("%s?measurement_id=%s&api_secret=%s", f.cfg.GAEndpoint, f.cfg.GAMeasurementID, f.cfg.GAAPISecret)
	if err := f.post(ctx, url, payload); err != nil {
		return Result{Destination: "ga4", Status: StatusFailed, Detail: err.Error()}
	}
	return Result{Destination: "ga4", Status: StatusSent}
}

func (f *Fanout) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func hashIdentifier(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}

func minorToDecimal(v int64) float64 {
	return float64(v) / 100
}
