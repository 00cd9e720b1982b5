package entity

import (
	"fmt"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/money"
)

// LineItemState is the lifecycle tag of a line item.
type LineItemState string

const (
	LineItemActive  LineItemState = "active"
	LineItemEdited  LineItemState = "edited"
	LineItemDeleted LineItemState = "deleted"
)

// LineItem is a sold product within an order.
//
// Name and unit price are snapshots taken at sale (or edit) time. The Original* fields
// hold the pre-edit baseline and are written only on the Active -> Edited transition.
type LineItem struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"order_id"`
	ProductID   string         `json:"product_id"`
	ProductName string         `json:"product_name"`
	UnitPrice   money.Cents    `json:"unit_price"`
	Quantity    money.Quantity `json:"quantity"`
	IsTreat     bool           `json:"is_treat"`
	State       LineItemState  `json:"state"`
	CreatedAt   time.Time      `json:"created_at"`

	OriginalProductID   string         `json:"original_product_id,omitempty"`
	OriginalProductName string         `json:"original_product_name,omitempty"`
	OriginalQuantity    money.Quantity `json:"original_quantity,omitempty"`
	EditedAt            *time.Time     `json:"edited_at,omitempty"`
	DeletedAt           *time.Time     `json:"deleted_at,omitempty"`

	Version int `json:"version"`
}

// NewLineItem snapshots product into a fresh active line item.
func NewLineItem(id, orderID string, product Product, quantity int, isTreat bool, now time.Time) (LineItem, error) {
	qty, err := money.NewQuantity(quantity)
	if err != nil {
		return LineItem{}, err
	}
	if !product.HasStock(qty) {
		return LineItem{}, fmt.Errorf("%w: product %s has %d, requested %d", ErrOutOfStock, product.ID, product.Stock, quantity)
	}

	return LineItem{
		ID:          id,
		OrderID:     orderID,
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		Quantity:    qty,
		IsTreat:     isTreat,
		State:       LineItemActive,
		CreatedAt:   now,
		Version:     1,
	}, nil
}

// IsDeleted reports whether the item is excluded from totals.
func (li LineItem) IsDeleted() bool {
	return li.State == LineItemDeleted
}

// IsEdited reports whether the item was edited at least once, even if deleted later.
func (li LineItem) IsEdited() bool {
	return li.EditedAt != nil
}

// Editable reports whether now is still inside the edit window.
func (li LineItem) Editable(now time.Time) bool {
	return now.Sub(li.CreatedAt) < EditWindow
}

// LineTotal is the revenue of the item: zero for treats.
func (li LineItem) LineTotal() money.Cents {
	if li.IsTreat {
		return 0
	}
	return li.UnitPrice.Mul(li.Quantity)
}

// WouldBeTotal is price times quantity regardless of the treat flag.
func (li LineItem) WouldBeTotal() money.Cents {
	return li.UnitPrice.Mul(li.Quantity)
}

func (li LineItem) checkMutable(now time.Time) error {
	if li.IsDeleted() {
		return fmt.Errorf("%w: %s", ErrAlreadyDeleted, li.ID)
	}
	if !li.Editable(now) {
		return fmt.Errorf("%w: item %s created at %s", ErrEditWindowExpired, li.ID, li.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// Edit replaces product, quantity and treat flag. Price and name are re-snapshotted from
// product.
func (li *LineItem) Edit(product Product, quantity int, isTreat bool, now time.Time) error {
	if err := li.checkMutable(now); err != nil {
		return err
	}
	qty, err := money.NewQuantity(quantity)
	if err != nil {
		return err
	}

	if li.State == LineItemActive {
		li.OriginalProductID = li.ProductID
		li.OriginalProductName = li.ProductName
		li.OriginalQuantity = li.Quantity
	}

	li.ProductID = product.ID
	li.ProductName = product.Name
	li.UnitPrice = product.Price
	li.Quantity = qty
	li.IsTreat = isTreat
	li.State = LineItemEdited
	li.EditedAt = &now
	return nil
}

// Delete moves the item to the terminal Deleted state.
func (li *LineItem) Delete(now time.Time) error {
	if err := li.checkMutable(now); err != nil {
		return err
	}
	li.State = LineItemDeleted
	li.DeletedAt = &now
	return nil
}
