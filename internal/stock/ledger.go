// Package stock applies compensating stock adjustments to products.
package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/money"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository"
)

// Adjustment is the outcome of one stock change. Applied is false for unlimited products.
type Adjustment struct {
	ProductID string
	Delta     int
	NewStock  int
	Applied   bool
}

// Event returns the stock event for a, or nil when nothing changed.
func (a Adjustment) Event() entity.Event {
	if !a.Applied {
		return nil
	}
	return entity.ProductStockUpdated{ProductID: a.ProductID, Delta: a.Delta, NewStock: a.NewStock}
}

// Ledger increments and decrements finite product stock inside a transaction.
type Ledger struct{}

// NewLedger creates a Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Increment returns qty units to the product. It never fails on amount.
func (l *Ledger) Increment(ctx context.Context, store repository.ProductStockStore, productID string, qty money.Quantity) (Adjustment, error) {
	return l.apply(ctx, store, productID, qty.Int())
}

// Decrement takes qty units from the product and fails with entity.ErrNegativeStock if
// the stock would go below zero.
func (l *Ledger) Decrement(ctx context.Context, store repository.ProductStockStore, productID string, qty money.Quantity) (Adjustment, error) {
	return l.apply(ctx, store, productID, -qty.Int())
}

func (l *Ledger) apply(ctx context.Context, store repository.ProductStockStore, productID string, delta int) (Adjustment, error) {
	product, err := store.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Adjustment{}, fmt.Errorf("failed to load product %s: %w", productID, err)
	}

	adj := Adjustment{ProductID: productID, Delta: delta, NewStock: product.Stock}
	if product.IsUnlimited() || delta == 0 {
		return adj, nil
	}

	next := product.Stock + delta
	if next < 0 {
		return adj, fmt.Errorf("%w: product %s has %d, requested %d", entity.ErrNegativeStock, productID, product.Stock, -delta)
	}

	if err := store.UpdateProductStock(ctx, productID, next, product.Version); err != nil {
		return adj, fmt.Errorf("failed to update stock of product %s: %w", productID, err)
	}

	slog.Debug("Stock adjusted", "product_id", productID, "delta", delta, "stock", next)
	adj.NewStock = next
	adj.Applied = true
	return adj, nil
}
