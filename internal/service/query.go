package service

import (
	"context"
	"fmt"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/totals"
)

const defaultClosingsLimit = 20

// OrderView is an order with its computed totals.
type OrderView struct {
	entity.Order
	Totals totals.OrderTotals `json:"totals"`
}

// SessionView is a session with its running totals.
type SessionView struct {
	Session entity.RegisterSession `json:"session"`
	Totals  totals.SessionTotals   `json:"totals"`
}

// GetProducts returns the catalog.
func (s *RegisterService) GetProducts(ctx context.Context) ([]entity.Product, error) {
	return s.store.FindProducts(ctx)
}

// CurrentSession returns the open session with its totals, or entity.ErrNotFound.
func (s *RegisterService) CurrentSession(ctx context.Context) (SessionView, error) {
	session, err := s.store.GetOpenSession(ctx)
	if err != nil {
		return SessionView{}, fmt.Errorf("failed to load open session: %w", err)
	}
	t, err := s.SessionTotals(ctx, session.ID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{Session: session, Totals: t}, nil
}

// SessionTotals folds every order of a session.
func (s *RegisterService) SessionTotals(ctx context.Context, sessionID string) (totals.SessionTotals, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return totals.SessionTotals{}, fmt.Errorf("failed to load session: %w", err)
	}
	orders, err := s.store.FindSessionOrders(ctx, sessionID)
	if err != nil {
		return totals.SessionTotals{}, fmt.Errorf("failed to load session orders: %w", err)
	}
	return totals.ComputeSessionTotals(orders), nil
}

// ListSessionOrders returns the orders of a session in creation order.
func (s *RegisterService) ListSessionOrders(ctx context.Context, sessionID string) ([]OrderView, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	orders, err := s.store.FindSessionOrders(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session orders: %w", err)
	}
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, OrderView{Order: o, Totals: totals.ComputeOrderTotals(o)})
	}
	return views, nil
}

// OrderTotals returns an order with its totals.
func (s *RegisterService) OrderTotals(ctx context.Context, orderID string) (OrderView, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return OrderView{}, fmt.Errorf("failed to load order: %w", err)
	}
	return OrderView{Order: order, Totals: totals.ComputeOrderTotals(order)}, nil
}

// LineItemHistory replays the audit stream of a line item.
func (s *RegisterService) LineItemHistory(ctx context.Context, lineItemID string) (*entity.AuditTrail, error) {
	records, err := s.store.LoadEvents(ctx, lineItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line item history: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("line item %s: %w", lineItemID, entity.ErrNotFound)
	}

	trail := entity.NewAuditTrail(lineItemID)
	if err := trail.Rehydrate(records); err != nil {
		return nil, fmt.Errorf("failed to rehydrate line item history: %w", err)
	}
	return trail, nil
}

// RecentClosings returns the latest closing summaries, newest first.
func (s *RegisterService) RecentClosings(ctx context.Context, limit int) ([]entity.RegisterClosing, error) {
	if limit <= 0 {
		limit = defaultClosingsLimit
	}
	return s.store.FindRecentClosings(ctx, limit)
}
