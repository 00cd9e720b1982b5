package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
)

// auditLogHandler decodes register events from the broker and writes them to the log.
func auditLogHandler(logger *slog.Logger) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var env messaging.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return fmt.Errorf("failed to unmarshal event envelope: %w", err)
		}
		logger.InfoContext(ctx, "Audit: register event",
			"event_type", env.EventType,
			"stream_type", env.StreamType,
			"stream_id", env.StreamID,
			"occurred_at", env.OccurredAt,
		)
		return nil
	}
}
