package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Subscriber defines an interface for subscribing to a message topic.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error)
}

// Envelope is the wire form of a domain event on the broker.
type Envelope struct {
	EventType  string          `json:"event_type"`
	StreamID   string          `json:"stream_id"`
	StreamType string          `json:"stream_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps a pending event for publishing.
func NewEnvelope(pe entity.PendingEvent, at time.Time) (Envelope, error) {
	data, err := json.Marshal(pe.Event)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal event %s: %w", pe.Event.EventType(), err)
	}
	return Envelope{
		EventType:  pe.Event.EventType(),
		StreamID:   pe.StreamID,
		StreamType: pe.StreamType,
		OccurredAt: at,
		Data:       data,
	}, nil
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishEvent(context.Context, string, string, any) error { return nil }
