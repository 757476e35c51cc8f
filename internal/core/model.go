package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
	ProductArchived ProductStatus = "archived"
)

// Product is the catalog record as seen by the inventory core. Catalog field
// editing lives elsewhere; this core reads stock/status/price/cost and writes
// stock_quantity only.
type Product struct {
	ID                string          `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Status            ProductStatus   `json:"status"`
	Image             string          `json:"image"`
	Metal             string          `json:"metal"`
	Purity            string          `json:"purity"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	Currency          string          `json:"currency"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	StockQuantity     int             `json:"stock_quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	IsUniqueItem      bool            `json:"is_unique_item"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Reservation is a time-boxed, session-scoped hold against a product's stock.
// Expiry is expressed by deletion: rows past expires_at are removed by the
// sweep, never flipped to an "expired" state.
type Reservation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	SessionID string    `json:"session_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Availability is the reservation-aware stock view for one product.
type Availability struct {
	StockQuantity int  `json:"stock_quantity"`
	Reserved      int  `json:"reserved"`
	Available     int  `json:"available"`
	IsSoldOut     bool `json:"isSoldOut"`
}

type LedgerEventType string

const (
	EventReceive     LedgerEventType = "receive"
	EventSale        LedgerEventType = "sale"
	EventAdjust      LedgerEventType = "adjust"
	EventReturn      LedgerEventType = "return"
	EventTransferIn  LedgerEventType = "transfer_in"
	EventTransferOut LedgerEventType = "transfer_out"
)

// LedgerEntry is one immutable row of the stock audit trail. RunningBalance
// is the product's stock_quantity immediately after the event.
type LedgerEntry struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	SKU            string          `json:"sku"`
	ProductName    string          `json:"product_name"`
	EventType      LedgerEventType `json:"event_type"`
	QuantityChange int             `json:"quantity_change"`
	RunningBalance int             `json:"running_balance"`
	ReferenceID    string          `json:"reference_id"`
	ReferenceType  string          `json:"reference_type"`
	Notes          string          `json:"notes"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Order statuses. Cancellation is permitted from the first three only.
const (
	OrderPending    = "pending"
	OrderConfirmed  = "confirmed"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// OrderItem is the frozen sale-time snapshot of one ordered product. Later
// catalog edits never touch it.
type OrderItem struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	UnitCost  decimal.Decimal `json:"cost"`
	Image     string          `json:"image,omitempty"`
	Category  string          `json:"category,omitempty"`
}

type Address struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

type Order struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"order_number"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	CustomerName   string          `json:"customer_name"`
	CustomerEmail  string          `json:"customer_email"`
	CustomerPhone  string          `json:"customer_phone"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"payment_status"`
	PaymentMethod  string          `json:"payment_method"`
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	TaxTotal       decimal.Decimal `json:"tax_total"`
	ShippingTotal  decimal.Decimal `json:"shipping_total"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	CouponCode     *string         `json:"coupon_code,omitempty"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	ShippingAddr   Address         `json:"shipping_address"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const (
	CouponPercent = "percent"
	CouponFixed   = "fixed"
)

type Coupon struct {
	ID            string              `json:"id"`
	Code          string              `json:"code"`
	Description   string              `json:"description"`
	Type          string              `json:"type"`
	Value         decimal.Decimal     `json:"value"`
	MinOrderValue decimal.Decimal     `json:"min_order_value"`
	MaxDiscount   decimal.NullDecimal `json:"max_discount"`
	UsageLimit    *int                `json:"usage_limit,omitempty"`
	UsageCount    int                 `json:"usage_count"`
	IsActive      bool                `json:"is_active"`
	CreatedAt     time.Time           `json:"created_at"`
}

const (
	CartActive    = "active"
	CartRecovered = "recovered"
	CartConverted = "converted"
)

// CartItem is one line of an abandoned cart snapshot.
type CartItem struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type AbandonedCart struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	CustomerName   string          `json:"customer_name"`
	SessionID      string          `json:"session_id"`
	Items          []CartItem      `json:"items"`
	CartTotal      decimal.Decimal `json:"cart_total"`
	ReminderCount  int             `json:"reminder_count"`
	LastReminderAt *time.Time      `json:"last_reminder_at,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
