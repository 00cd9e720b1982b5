package totals

import (
	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/money"
)

// SessionTotals are the running amounts of a register session.
type SessionTotals struct {
	TotalBeforeDiscounts money.Cents `json:"total_before_discounts"`
	CardDiscounts        int         `json:"card_discounts"`
	DiscountTotal        money.Cents `json:"discount_total"`
	FinalAmount          money.Cents `json:"final_amount"`
	Treats               int         `json:"treats"`
	TreatsAmount         money.Cents `json:"treats_amount"`
	OrderCount           int         `json:"order_count"`
	CashOrders           int         `json:"cash_orders"`
	CashTotal            money.Cents `json:"cash_total"`
	CardOrders           int         `json:"card_orders"`
	CardTotal            money.Cents `json:"card_total"`
}

// Add accumulates the totals of one order.
func (s *SessionTotals) Add(method entity.PaymentMethod, cardDiscountCount int, o OrderTotals) {
	s.OrderCount++
	s.TotalBeforeDiscounts += o.GrossSubtotal
	s.CardDiscounts += cardDiscountCount
	s.DiscountTotal += o.DiscountAmount
	s.FinalAmount += o.FinalAmount
	s.Treats += o.TreatCount
	s.TreatsAmount += o.TreatsValue

	switch method {
	case entity.PaymentCard:
		s.CardOrders++
		s.CardTotal += o.FinalAmount
	default:
		s.CashOrders++
		s.CashTotal += o.FinalAmount
	}
}

// ComputeSessionTotals folds every order that still has an active item. No orders yields
// zero totals.
//
// FinalAmount is the sum of per-order final amounts, so an order whose coupons exceed its
// subtotal never eats into another order's revenue.
func ComputeSessionTotals(orders []entity.Order) SessionTotals {
	var s SessionTotals
	for _, order := range orders {
		o := ComputeOrderTotals(order)
		if o.ItemCount == 0 {
			continue
		}
		s.Add(order.PaymentMethod, order.CardDiscountCount, o)
	}
	return s
}

// Closing builds the immutable closing record of a session from its totals.
func (s SessionTotals) Closing(id string, session entity.RegisterSession) entity.RegisterClosing {
	c := entity.RegisterClosing{
		ID:                   id,
		SessionID:            session.ID,
		ClosedBy:             session.ClosedBy,
		Notes:                session.Notes,
		OrderCount:           s.OrderCount,
		CashOrders:           s.CashOrders,
		CashTotal:            s.CashTotal,
		CardOrders:           s.CardOrders,
		CardTotal:            s.CardTotal,
		TreatsCount:          s.Treats,
		TreatsTotal:          s.TreatsAmount,
		CardDiscounts:        s.CardDiscounts,
		DiscountTotal:        s.DiscountTotal,
		TotalBeforeDiscounts: s.TotalBeforeDiscounts,
		FinalAmount:          s.FinalAmount,
	}
	if session.ClosedAt != nil {
		c.ClosedAt = *session.ClosedAt
	}
	return c
}
