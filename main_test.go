package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dacrab/clubos-legacy-sub000/internal/config"
	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
)

func TestAuditLogHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := auditLogHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	env, err := messaging.NewEnvelope(entity.PendingEvent{
		StreamID:   "s-1",
		StreamType: entity.StreamSession,
		Event:      entity.SessionOpened{SessionID: "s-1", OpenedBy: "alice"},
	}, time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), payload))
	assert.Contains(t, buf.String(), "event_type=SessionOpened")
	assert.Contains(t, buf.String(), "stream_id=s-1")

	assert.Error(t, handler(context.Background(), []byte("{")))
}

func TestOpenStore_MemorySeeds(t *testing.T) {
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, config.Config{StorageDriver: config.StorageMemory})
	require.NoError(t, err)
	defer closeStore()

	require.NoError(t, seedProducts(ctx, store))
	require.NoError(t, seedProducts(ctx, store))

	products, err := store.FindProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, len(defaultCatalog()))
}
