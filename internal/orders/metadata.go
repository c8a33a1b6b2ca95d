package orders

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/threadloom/api/internal/domain"
	"github.com/threadloom/api/internal/payments"
)

// ErrMissingMetadata indicates a payment confirmation arrived without the
// item metadata needed to materialize an order.
var ErrMissingMetadata = errors.New("orders: missing order metadata")

// PaymentRecord is the provider-neutral view of a confirmed payment. Both
// webhook shapes, the hosted checkout session and the custom Elements
// payment intent, reduce to this before materialization.
type PaymentRecord struct {
	PaymentRef      string
	Amount          int64
	Currency        string
	Email           string
	Name            string
	ShippingAddress *domain.Address
	Metadata        map[string]string
	CompletedAt     time.Time
}

type metadataItem struct {
	BundleID   string `json:"bundle_id"`
	BundleName string `json:"bundle_name"`
	DesignID   string `json:"design_id"`
	DesignName string `json:"design_name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

// draft is the fully-parsed order content, before a number is assigned.
type draft struct {
	Email            string
	Name             string
	Items            []domain.OrderItem
	Subtotal         int64
	Shipping         int64
	Insurance        int64
	Discount         int64
	Total            int64
	ShippingAddr     *domain.Address
	Source           string
	AcceptsMarketing bool
	Attribution      domain.ConversionEvent
}

// parseDraft turns a payment record's metadata into order content. The
// metadata was written by the checkout orchestrator, so the paid amount is
// the authoritative total and the components are read back for the ledger.
func parseDraft(record PaymentRecord) (draft, error) {
	raw := strings.TrimSpace(record.Metadata[payments.MetaItems])
	if raw == "" {
		return draft{}, ErrMissingMetadata
	}
	var decoded []metadataItem
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || len(decoded) == 0 {
		return draft{}, ErrMissingMetadata
	}

	items := make([]domain.OrderItem, 0, len(decoded))
	for _, it := range decoded {
		items = append(items, domain.OrderItem{
			BundleID:   it.BundleID,
			BundleName: it.BundleName,
			DesignID:   it.DesignID,
			DesignName: it.DesignName,
			Quantity:   it.Quantity,
			Price:      it.Price,
		})
	}

	d := draft{
		Items:     items,
		Subtotal:  metaAmount(record.Metadata, payments.MetaSubtotal),
		Shipping:  metaAmount(record.Metadata, payments.MetaShipping),
		Insurance: metaAmount(record.Metadata, payments.MetaInsuranceAmount),
		Discount:  metaAmount(record.Metadata, payments.MetaDiscountAmount),
		Total:     record.Amount,
		Source:    strings.TrimSpace(record.Metadata[payments.MetaSource]),
	}

	d.Email = strings.ToLower(strings.TrimSpace(record.Email))
	if d.Email == "" {
		d.Email = strings.ToLower(strings.TrimSpace(record.Metadata[payments.MetaCustomerEmail]))
	}
	d.Name = strings.TrimSpace(record.Name)
	if d.Name == "" {
		d.Name = strings.TrimSpace(record.Metadata[payments.MetaCustomerName])
	}

	d.ShippingAddr = record.ShippingAddress
	if d.ShippingAddr == nil {
		if encoded := record.Metadata[payments.MetaShippingAddress]; encoded != "" {
			var addr domain.Address
			if err := json.Unmarshal([]byte(encoded), &addr); err == nil {
				d.ShippingAddr = &addr
			}
		}
	}

	d.Attribution = domain.ConversionEvent{
		EventID:   strings.TrimSpace(record.Metadata[payments.MetaEventID]),
		Value:     record.Amount,
		Currency:  record.Currency,
		Email:     d.Email,
		ClickID:   strings.TrimSpace(record.Metadata[payments.MetaClickID]),
		BrowserID: strings.TrimSpace(record.Metadata[payments.MetaBrowserID]),
		ClientID:  strings.TrimSpace(record.Metadata[payments.MetaClientID]),
	}
	return d, nil
}

func metaAmount(metadata map[string]string, key string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(metadata[key]), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
