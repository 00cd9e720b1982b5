package entity

import (
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/money"
)

const (
	// UnlimitedStock marks a product whose stock is not tracked.
	UnlimitedStock = -1

	// CouponValue is deducted from an order once per card discount redemption.
	CouponValue money.Cents = 200

	// MaxCardDiscountCount caps coupon redemptions on one order.
	MaxCardDiscountCount = 100

	// EditWindow is how long after creation a line item may be edited or deleted.
	EditWindow = 5 * time.Minute
)

// Product is a sellable item of the catalog.
type Product struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Price    money.Cents `json:"price"`
	Stock    int         `json:"stock"`
	Version  int         `json:"version"`
}

// IsUnlimited reports whether the product is exempt from stock tracking.
func (p Product) IsUnlimited() bool {
	return p.Stock == UnlimitedStock
}

// HasStock reports whether qty units can be taken from the product.
func (p Product) HasStock(qty money.Quantity) bool {
	return p.IsUnlimited() || p.Stock >= qty.Int()
}

// PaymentMethod is how an order was settled.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// Order groups the line items of one sale.
type Order struct {
	ID                string        `json:"id"`
	SessionID         string        `json:"session_id"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	CardDiscountCount int           `json:"card_discount_count"`
	Items             []LineItem    `json:"items"`
	CreatedAt         time.Time     `json:"created_at"`
}

// ActiveItems returns the items that are not deleted, in insertion order.
func (o Order) ActiveItems() []LineItem {
	active := make([]LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		if !item.IsDeleted() {
			active = append(active, item)
		}
	}
	return active
}

// RegisterSession is the open-to-close span during which sales are recorded.
type RegisterSession struct {
	ID       string     `json:"id"`
	OpenedAt time.Time  `json:"opened_at"`
	OpenedBy string     `json:"opened_by"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	ClosedBy string     `json:"closed_by,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

// IsOpen reports whether sales may still be recorded in the session.
func (s RegisterSession) IsOpen() bool {
	return s.ClosedAt == nil
}

// RegisterClosing is the immutable summary written when a session closes.
type RegisterClosing struct {
	ID                   string      `json:"id"`
	SessionID            string      `json:"session_id"`
	ClosedAt             time.Time   `json:"closed_at"`
	ClosedBy             string      `json:"closed_by"`
	Notes                string      `json:"notes"`
	OrderCount           int         `json:"order_count"`
	CashOrders           int         `json:"cash_orders"`
	CashTotal            money.Cents `json:"cash_total"`
	CardOrders           int         `json:"card_orders"`
	CardTotal            money.Cents `json:"card_total"`
	TreatsCount          int         `json:"treats_count"`
	TreatsTotal          money.Cents `json:"treats_total"`
	CardDiscounts        int         `json:"card_discounts"`
	DiscountTotal        money.Cents `json:"discount_total"`
	TotalBeforeDiscounts money.Cents `json:"total_before_discounts"`
	FinalAmount          money.Cents `json:"final_amount"`
}

// --- Commands ---

// SaleItem is one requested line of a sale.
type SaleItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	IsTreat   bool   `json:"is_treat"`
}

// RecordSale is a command to record a new order in a register session.
type RecordSale struct {
	SessionID         string        `json:"session_id"`
	Items             []SaleItem    `json:"items"`
	CardDiscountCount int           `json:"card_discount_count"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
}

// EditLineItem is a command to change a sold line item. Nil fields are left unchanged.
// ExpectedVersion pins the item version the caller last read.
type EditLineItem struct {
	LineItemID      string  `json:"line_item_id"`
	ProductID       *string `json:"product_id,omitempty"`
	Quantity        *int    `json:"quantity,omitempty"`
	IsTreat         *bool   `json:"is_treat,omitempty"`
	ExpectedVersion *int    `json:"version,omitempty"`
}
