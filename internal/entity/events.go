package entity

import (
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/money"
)

// Stream types of the audit log.
const (
	StreamSession  = "session"
	StreamOrder    = "order"
	StreamLineItem = "line_item"
	StreamProduct  = "product"
)

// EventStoreRecord represents an event stored in the audit log.
type EventStoreRecord struct {
	ID         string    `json:"id"`
	StreamID   string    `json:"stream_id"`
	StreamType string    `json:"stream_type"`
	Version    int       `json:"version"`
	EventType  string    `json:"event_type"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event represents a domain event.
type Event interface {
	EventType() string
}

// PendingEvent is an event waiting to be appended to a stream.
type PendingEvent struct {
	StreamID   string
	StreamType string
	Event      Event
}

// --- Events ---

// SessionOpened is emitted when a register session starts.
type SessionOpened struct {
	SessionID string    `json:"session_id"`
	OpenedBy  string    `json:"opened_by"`
	OpenedAt  time.Time `json:"opened_at"`
}

func (e SessionOpened) EventType() string { return "SessionOpened" }

// SessionClosed is emitted with the closing record of a session.
type SessionClosed struct {
	Closing RegisterClosing `json:"closing"`
}

func (e SessionClosed) EventType() string { return "SessionClosed" }

// SaleRecorded is emitted when an order and its line items are created.
type SaleRecorded struct {
	SessionID         string        `json:"session_id"`
	OrderID           string        `json:"order_id"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	CardDiscountCount int           `json:"card_discount_count"`
	Items             []LineItem    `json:"items"`
	FinalAmount       money.Cents   `json:"final_amount"`
	RecordedAt        time.Time     `json:"recorded_at"`
}

func (e SaleRecorded) EventType() string { return "SaleRecorded" }

// LineItemCreated is the first event of every line item stream.
type LineItemCreated struct {
	Item LineItem `json:"item"`
}

func (e LineItemCreated) EventType() string { return "LineItemCreated" }

// LineItemEdited records the item before and after an edit.
type LineItemEdited struct {
	SessionID string    `json:"session_id"`
	Before    LineItem  `json:"before"`
	After     LineItem  `json:"after"`
	EditedAt  time.Time `json:"edited_at"`
}

func (e LineItemEdited) EventType() string { return "LineItemEdited" }

// LineItemDeleted records the item as it was when deleted.
type LineItemDeleted struct {
	SessionID string    `json:"session_id"`
	Item      LineItem  `json:"item"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (e LineItemDeleted) EventType() string { return "LineItemDeleted" }

// OrderRemoved is emitted when the last active item of an order is deleted.
type OrderRemoved struct {
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	RemovedAt time.Time `json:"removed_at"`
}

func (e OrderRemoved) EventType() string { return "OrderRemoved" }

// ProductStockUpdated is emitted when a finite stock changes.
type ProductStockUpdated struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	NewStock  int    `json:"new_stock"`
}

func (e ProductStockUpdated) EventType() string { return "ProductStockUpdated" }
