// Package totals folds orders and line items into the amounts shown on the register and
// written into closing records. Every function here is pure.
package totals

import (
	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/money"
)

// OrderTotals are the amounts of a single order.
type OrderTotals struct {
	GrossSubtotal  money.Cents `json:"gross_subtotal"`
	DiscountAmount money.Cents `json:"discount_amount"`
	FinalAmount    money.Cents `json:"final_amount"`
	TreatCount     int         `json:"treat_count"`
	TreatsValue    money.Cents `json:"treats_value"`
	ItemCount      int         `json:"item_count"`
}

// ComputeOrderTotals folds the non-deleted items of order.
//
// FinalAmount = max(0, GrossSubtotal - CardDiscountCount * CouponValue).
func ComputeOrderTotals(order entity.Order) OrderTotals {
	var t OrderTotals
	for _, item := range order.Items {
		if item.IsDeleted() {
			continue
		}
		t.ItemCount++
		if item.IsTreat {
			t.TreatCount++
			t.TreatsValue += item.WouldBeTotal()
			continue
		}
		t.GrossSubtotal += item.LineTotal()
	}

	t.DiscountAmount = entity.CouponValue.Times(order.CardDiscountCount)
	t.FinalAmount = (t.GrossSubtotal - t.DiscountAmount).ClampZero()
	return t
}
