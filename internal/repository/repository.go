package repository

import (
	"context"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
)

// Store is the single injected persistence boundary of the register.
// Lookups of missing rows return an error wrapping entity.ErrNotFound.
type Store interface {
	Reader

	// WithinTx runs fn in one transaction. Any error returned by fn rolls back every
	// write fn made, stock adjustments included.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// SeedProducts inserts initial products if none exist.
	SeedProducts(ctx context.Context, products []entity.Product) error
}

// Reader serves the read side. Each call observes a committed, internally consistent state.
type Reader interface {
	FindProducts(ctx context.Context) ([]entity.Product, error)
	GetProduct(ctx context.Context, id string) (entity.Product, error)
	GetOpenSession(ctx context.Context) (entity.RegisterSession, error)
	GetSession(ctx context.Context, id string) (entity.RegisterSession, error)
	GetOrder(ctx context.Context, id string) (entity.Order, error)
	FindSessionOrders(ctx context.Context, sessionID string) ([]entity.Order, error)
	GetLineItem(ctx context.Context, id string) (entity.LineItem, error)
	FindRecentClosings(ctx context.Context, limit int) ([]entity.RegisterClosing, error)
	LoadEvents(ctx context.Context, streamID string) ([]entity.EventStoreRecord, error)
}

// ProductStockStore is the slice of a transaction the stock ledger needs.
type ProductStockStore interface {
	// GetProductForUpdate reads a product and locks it until the transaction ends.
	GetProductForUpdate(ctx context.Context, id string) (entity.Product, error)
	// UpdateProductStock writes stock if the product is still at expectedVersion, and
	// fails with entity.ErrConcurrentModification otherwise.
	UpdateProductStock(ctx context.Context, id string, stock, expectedVersion int) error
}

// Tx is the write side available inside WithinTx.
type Tx interface {
	ProductStockStore

	GetSessionForUpdate(ctx context.Context, id string) (entity.RegisterSession, error)
	// CreateSession fails with entity.ErrSessionAlreadyOpen when another session is open.
	CreateSession(ctx context.Context, session entity.RegisterSession) error
	CloseSession(ctx context.Context, session entity.RegisterSession) error
	CreateClosing(ctx context.Context, closing entity.RegisterClosing) error

	// CreateOrder inserts the order together with its line items.
	CreateOrder(ctx context.Context, order entity.Order) error
	GetOrder(ctx context.Context, id string) (entity.Order, error)
	FindSessionOrders(ctx context.Context, sessionID string) ([]entity.Order, error)
	// DeleteOrder removes the order row. Its line items stay for audit.
	DeleteOrder(ctx context.Context, id string) error

	GetLineItemForUpdate(ctx context.Context, id string) (entity.LineItem, error)
	// UpdateLineItem persists item if the stored row is still at expectedVersion, and
	// fails with entity.ErrConcurrentModification otherwise. The stored version becomes
	// item.Version.
	UpdateLineItem(ctx context.Context, item entity.LineItem, expectedVersion int) error

	// AppendEvents adds events to the audit log, each at the next version of its stream.
	AppendEvents(ctx context.Context, at time.Time, events []entity.PendingEvent) error
}
