// Package notifications sends customer-facing transactional email through
// an HTTP email API. Sends are best effort; a failed confirmation never
// unwinds the order it describes.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/threadloom/api/internal/domain"
)

const defaultEndpoint = "https://api.resend.com/emails"

// MailerConfig configures the email API client. An empty APIKey disables
// sending; SendOrderConfirmation becomes a logged no-op.
type MailerConfig struct {
	APIKey      string
	FromAddress string
	Endpoint    string
	HTTPClient  *http.Client
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// Mailer delivers order lifecycle email.
type Mailer struct {
	cfg    MailerConfig
	client *http.Client
	logger func(context.Context, string, map[string]any)
}

// NewMailer applies defaults.
func NewMailer(cfg MailerConfig) *Mailer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.FromAddress == "" {
		cfg.FromAddress = "Threadloom <orders@threadloom.shop>"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Mailer{cfg: cfg, client: client, logger: logger}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendOrderConfirmation emails the order summary to the customer.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	if m.cfg.APIKey == "" {
		m.logger(ctx, "notifications.email_skipped", map[string]any{
			"orderNumber": order.OrderNumber,
			"reason":      "no api key",
		})
		return nil
	}
	if order.CustomerEmail == "" {
		return nil
	}
	return m.send(ctx, emailRequest{
		From:    m.cfg.FromAddress,
		To:      []string{order.CustomerEmail},
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		HTML:    confirmationBody(order),
	})
}

// SendShippingNotice emails the tracking number once an order ships.
func (m *Mailer) SendShippingNotice(ctx context.Context, order domain.Order) error {
	if m.cfg.APIKey == "" || order.CustomerEmail == "" {
		return nil
	}
	return m.send(ctx, emailRequest{
		From:    m.cfg.FromAddress,
		To:      []string{order.CustomerEmail},
		Subject: fmt.Sprintf("Order %s is on its way", order.OrderNumber),
		HTML:    shippingBody(order),
	})
}

func (m *Mailer) send(ctx context.Context, req emailRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notifications: email api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func confirmationBody(order domain.Order) string {
	var b strings.Builder
	name := order.CustomerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "<p>Hi %s,</p>", name)
	fmt.Fprintf(&b, "<p>Thanks for your order <strong>%s</strong>.</p>", order.OrderNumber)
	b.WriteString("<ul>")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<li>%s &times; %d &mdash; %s (%s)</li>",
			item.BundleName, item.Quantity, item.DesignName, formatMinor(item.Price))
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Subtotal: %s<br>Shipping: %s<br>", formatMinor(order.Subtotal), formatMinor(order.Shipping))
	if order.Insurance > 0 {
		fmt.Fprintf(&b, "Insurance: %s<br>", formatMinor(order.Insurance))
	}
	if order.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -%s<br>", formatMinor(order.Discount))
	}
	fmt.Fprintf(&b, "<strong>Total: %s</strong></p>", formatMinor(order.Total))
	return b.String()
}

func shippingBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Order <strong>%s</strong> has shipped.</p>", order.OrderNumber)
	if order.TrackingNumber != "" {
		fmt.Fprintf(&b, "<p>Tracking number: %s</p>", order.TrackingNumber)
	}
	return b.String()
}

func formatMinor(v int64) string {
	return fmt.Sprintf("$%d.%02d", v/100, v%100)
}
