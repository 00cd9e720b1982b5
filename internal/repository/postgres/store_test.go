package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	for _, code := range []pq.ErrorCode{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := mapError(fmt.Errorf("exec: %w", &pq.Error{Code: code}))
		assert.ErrorIs(t, err, entity.ErrConcurrentModification, code)
	}

	plain := errors.New("connection refused")
	assert.Equal(t, plain, mapError(plain))
	assert.NotErrorIs(t, mapError(&pq.Error{Code: "23502"}), entity.ErrConcurrentModification)
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: codeUniqueViolation, Constraint: "register_sessions_one_open"}
	assert.True(t, isUniqueViolation(err, "register_sessions_one_open"))
	assert.True(t, isUniqueViolation(err, ""))
	assert.False(t, isUniqueViolation(err, "other"))
	assert.False(t, isUniqueViolation(errors.New("x"), ""))
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows, "order", "o-1"), entity.ErrNotFound)
	assert.NotErrorIs(t, notFound(errors.New("timeout"), "order", "o-1"), entity.ErrNotFound)
}

// openTestDB connects to TEST_DATABASE_URL or skips.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := InitDB(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("UPDATE register_sessions SET closed_at = NOW() WHERE closed_at IS NULL")
	require.NoError(t, err)
	return db
}

func TestStore_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewStore(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	productID := "test-" + uuid.NewString()
	_, err := db.Exec("INSERT INTO products (id, name, price_cents, stock) VALUES ($1, 'Test latte', 350, 4)", productID)
	require.NoError(t, err)

	sessionID := uuid.NewString()
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateSession(ctx, entity.RegisterSession{ID: sessionID, OpenedAt: now, OpenedBy: "test"})
	}))

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateSession(ctx, entity.RegisterSession{ID: uuid.NewString(), OpenedAt: now, OpenedBy: "test"})
	})
	assert.ErrorIs(t, err, entity.ErrSessionAlreadyOpen)

	orderID := uuid.NewString()
	item := entity.LineItem{
		ID: uuid.NewString(), OrderID: orderID, ProductID: productID, ProductName: "Test latte",
		UnitPrice: 350, Quantity: 2, State: entity.LineItemActive, CreatedAt: now, Version: 1,
	}
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := tx.UpdateProductStock(ctx, productID, p.Stock-2, p.Version); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, entity.Order{
			ID: orderID, SessionID: sessionID, PaymentMethod: entity.PaymentCash, CreatedAt: now,
			Items: []entity.LineItem{item},
		})
	}))

	orders, err := s.FindSessionOrders(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, item.UnitPrice, orders[0].Items[0].UnitPrice)

	p, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
	assert.Equal(t, 2, p.Version)

	deleted := item
	deletedAt := now.Add(time.Minute)
	deleted.State = entity.LineItemDeleted
	deleted.DeletedAt = &deletedAt
	deleted.Version = 2
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.UpdateLineItem(ctx, deleted, 1); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, orderID)
	}))

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateLineItem(ctx, deleted, 1)
	})
	assert.ErrorIs(t, err, entity.ErrConcurrentModification)

	stored, err := s.GetLineItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
	_, err = s.GetOrder(ctx, orderID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.AppendEvents(ctx, now, []entity.PendingEvent{
			{StreamID: item.ID, StreamType: entity.StreamLineItem, Event: entity.LineItemCreated{Item: item}},
			{StreamID: item.ID, StreamType: entity.StreamLineItem, Event: entity.LineItemDeleted{Item: deleted}},
		})
	}))
	events, err := s.LoadEvents(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Version)

	closedAt := now.Add(time.Hour)
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session.ClosedAt = &closedAt
		session.ClosedBy = "test"
		if err := tx.CloseSession(ctx, session); err != nil {
			return err
		}
		return tx.CreateClosing(ctx, entity.RegisterClosing{ID: uuid.NewString(), SessionID: sessionID, ClosedAt: closedAt, ClosedBy: "test"})
	}))

	closings, err := s.FindRecentClosings(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, closings)
}
