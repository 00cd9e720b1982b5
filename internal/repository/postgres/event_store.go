package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/google/uuid"
)

func (t *txStore) AppendEvents(ctx context.Context, at time.Time, events []entity.PendingEvent) error {
	if len(events) == 0 {
		return nil
	}

	versions := make(map[string]int)
	for _, pe := range events {
		version, ok := versions[pe.StreamID]
		if !ok {
			err := t.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1", pe.StreamID).Scan(&version)
			if err != nil {
				return fmt.Errorf("failed to get current stream version: %w", err)
			}
		}
		version++
		versions[pe.StreamID] = version

		payload, err := json.Marshal(pe.Event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", pe.Event.EventType(), err)
		}

		_, err = t.q.ExecContext(ctx,
			"INSERT INTO events (id, stream_id, stream_type, version, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			uuid.NewString(), pe.StreamID, pe.StreamType, version, pe.Event.EventType(), payload, at,
		)
		if isUniqueViolation(err, "") {
			return fmt.Errorf("stream %s at version %d: %w", pe.StreamID, version, entity.ErrConcurrentModification)
		}
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %w", pe.Event.EventType(), err)
		}
	}
	return nil
}

func (s *store) LoadEvents(ctx context.Context, streamID string) ([]entity.EventStoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, stream_id, stream_type, version, event_type, payload, created_at FROM events WHERE stream_id = $1 ORDER BY version ASC", streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var events []entity.EventStoreRecord
	for rows.Next() {
		var record entity.EventStoreRecord
		if err := rows.Scan(&record.ID, &record.StreamID, &record.StreamType, &record.Version, &record.EventType, &record.Payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event record: %w", err)
		}
		events = append(events, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}
