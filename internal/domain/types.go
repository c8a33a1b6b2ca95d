package domain

import "time"

// Bundle is a purchasable price tier defined in the static catalog. Prices
// are integer minor currency units and never mutated at runtime.
type Bundle struct {
	ID          string
	Name        string
	SKU         string
	Price       int64
	CompareAt   int64
	Description string
	Badge       string
}

// Design is the decorative half of a purchasable line item.
type Design struct {
	ID        string
	Name      string
	Thumbnail string
	Image     string
}

// CartItem is a client-submitted line selection. The Price field is a
// client-side cache for display only; totals are always recomputed from
// the catalog.
type CartItem struct {
	ID       string
	DesignID string
	BundleID string
	Quantity int
	Price    int64
}

// ShippingMethod enumerates the supported delivery tiers.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// Valid reports whether the method is one of the supported tiers.
func (m ShippingMethod) Valid() bool {
	return m == ShippingStandard || m == ShippingExpress
}

// Address is the structured shipping destination captured at checkout.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderStatus tracks fulfillment progress of a materialized order.
type OrderStatus string

const (
	OrderUnfulfilled OrderStatus = "unfulfilled"
	OrderProcessing  OrderStatus = "processing"
	OrderFulfilled   OrderStatus = "fulfilled"
	OrderCancelled   OrderStatus = "cancelled"
)

// OrderItem is the immutable snapshot of a purchased line recorded on the
// order at materialization time.
type OrderItem struct {
	BundleID   string `json:"bundle_id"`
	BundleName string `json:"bundle_name"`
	DesignID   string `json:"design_id"`
	DesignName string `json:"design_name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

// Order is created exactly once per confirmed payment and never deleted.
// PaymentRef holds the external payment identifier and doubles as the
// idempotency key for webhook redelivery.
type Order struct {
	ID             string
	OrderNumber    string
	CustomerEmail  string
	CustomerName   string
	Items          []OrderItem
	Subtotal       int64
	Shipping       int64
	Insurance      int64
	Discount       int64
	Total          int64
	Status         OrderStatus
	ShippingAddr   *Address
	TrackingNumber string
	PaymentRef     string
	Source         string
	FulfilledAt    *time.Time
	CreatedAt      time.Time
}

// Customer aggregates lifetime purchase stats keyed by email. Counters are
// monotonic and incremented atomically at the storage layer.
type Customer struct {
	Email            string
	Name             string
	OrdersCount      int
	TotalSpent       int64
	AcceptsMarketing bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StockStatus classifies availability relative to the low stock threshold.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// InventoryItem records on-hand and reserved quantities for a SKU.
type InventoryItem struct {
	ID                string
	SKU               string
	ProductName       string
	BundleName        string
	Quantity          int
	Reserved          int
	LowStockThreshold int
	TrackInventory    bool
	UpdatedAt         time.Time
}

// Available is the sellable quantity, never reported negative.
func (i InventoryItem) Available() int {
	available := i.Quantity - i.Reserved
	if available < 0 {
		return 0
	}
	return available
}

// Status derives the stock classification from availability and threshold.
func (i InventoryItem) Status() StockStatus {
	available := i.Available()
	switch {
	case available <= 0:
		return StockOutOfStock
	case available <= i.LowStockThreshold:
		return StockLowStock
	default:
		return StockInStock
	}
}

// AdjustmentType labels the kind of inventory mutation in the audit trail.
type AdjustmentType string

const (
	AdjustmentSet     AdjustmentType = "set"
	AdjustmentAdd     AdjustmentType = "add"
	AdjustmentRemove  AdjustmentType = "remove"
	AdjustmentRestock AdjustmentType = "restock"
)

// InventoryAdjustment is an append-only audit record written for every
// inventory mutation, including ones served by the volatile fallback store.
type InventoryAdjustment struct {
	ID               string
	ItemID           string
	SKU              string
	AdjustmentType   AdjustmentType
	QuantityChange   int
	PreviousQuantity int
	NewQuantity      int
	Reason           string
	CreatedAt        time.Time
}

// DiscountResult is the transient outcome of validating a discount code.
// Amount is always clamped to [0, subtotal].
type DiscountResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Amount  int64  `json:"amount"`
}

// ConversionEvent carries a purchase (or view/add-to-cart) conversion to
// the attribution destinations. EventID is shared by the browser pixel and
// every server-side delivery so the ad platform can deduplicate.
type ConversionEvent struct {
	EventID     string
	Name        string
	Value       int64
	Currency    string
	Email       string
	ClickID     string
	BrowserID   string
	ClientID    string
	OrderNumber string
	OccurredAt  time.Time
}
