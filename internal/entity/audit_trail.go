package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry is one decoded event of an audit stream.
type AuditEntry struct {
	Version   int       `json:"version"`
	EventType string    `json:"event_type"`
	Event     Event     `json:"event"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditTrail is the replayed history of one line item.
type AuditTrail struct {
	LineItemID string       `json:"line_item_id"`
	Entries    []AuditEntry `json:"entries"`
	Current    *LineItem    `json:"current,omitempty"`
}

// NewAuditTrail creates an empty trail for a line item.
func NewAuditTrail(lineItemID string) *AuditTrail {
	return &AuditTrail{LineItemID: lineItemID}
}

// ApplyEvent appends e to the trail and advances the item state it describes.
func (a *AuditTrail) ApplyEvent(e Event, version int, at time.Time) error {
	switch e := e.(type) {
	case LineItemCreated:
		item := e.Item
		a.Current = &item
	case LineItemEdited:
		item := e.After
		a.Current = &item
	case LineItemDeleted:
		item := e.Item
		a.Current = &item
	default:
		return fmt.Errorf("unknown event type for line item trail: %s", e.EventType())
	}
	a.Entries = append(a.Entries, AuditEntry{Version: version, EventType: e.EventType(), Event: e, CreatedAt: at})
	return nil
}

// Rehydrate rebuilds the trail from stored records.
func (a *AuditTrail) Rehydrate(records []EventStoreRecord) error {
	for _, rec := range records {
		var err error
		switch rec.EventType {
		case "LineItemCreated":
			var e LineItemCreated
			if err = json.Unmarshal(rec.Payload, &e); err == nil {
				err = a.ApplyEvent(e, rec.Version, rec.CreatedAt)
			}
		case "LineItemEdited":
			var e LineItemEdited
			if err = json.Unmarshal(rec.Payload, &e); err == nil {
				err = a.ApplyEvent(e, rec.Version, rec.CreatedAt)
			}
		case "LineItemDeleted":
			var e LineItemDeleted
			if err = json.Unmarshal(rec.Payload, &e); err == nil {
				err = a.ApplyEvent(e, rec.Version, rec.CreatedAt)
			}
		default:
			return fmt.Errorf("unknown event type in line item stream: %s", rec.EventType)
		}
		if err != nil {
			return fmt.Errorf("failed to apply line item event from stream: %w", err)
		}
	}
	return nil
}
