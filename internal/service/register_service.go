// Package service implements the register mutations and their read side.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/lock"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
	"github.com/dacrab/clubos-legacy-sub000/internal/money"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository"
	"github.com/dacrab/clubos-legacy-sub000/internal/stock"
	"github.com/dacrab/clubos-legacy-sub000/internal/totals"
)

// Clock is the source of server time for window checks and timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Result is the outcome envelope returned to the UI tier.
type Result struct {
	Success bool             `json:"success"`
	Error   entity.ErrorKind `json:"error,omitempty"`
}

// ResultOf converts an operation error into a Result.
func ResultOf(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	return Result{Error: entity.KindOf(err)}
}

// Options tunes a RegisterService.
type Options struct {
	Topic      string
	MaxRetries int
	Clock      Clock
}

// RegisterService orchestrates register sessions, sales and line item corrections.
type RegisterService struct {
	store      repository.Store
	ledger     *stock.Ledger
	locker     lock.Locker
	publisher  messaging.Publisher
	clock      Clock
	topic      string
	maxRetries int
}

func NewRegisterService(
	store repository.Store,
	ledger *stock.Ledger,
	locker lock.Locker,
	publisher messaging.Publisher,
	opts Options,
) *RegisterService {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if publisher == nil {
		publisher = messaging.Nop{}
	}
	return &RegisterService{
		store:      store,
		ledger:     ledger,
		locker:     locker,
		publisher:  publisher,
		clock:      opts.Clock,
		topic:      opts.Topic,
		maxRetries: opts.MaxRetries,
	}
}

// txFunc is one attempt of a mutation. It returns the events to append and publish.
type txFunc func(ctx context.Context, tx repository.Tx, now time.Time) ([]entity.PendingEvent, error)

// mutate runs fn under the session lock in one transaction, appends its events and
// publishes them once committed. Conflicts are retried unless the caller pinned a version.
func (s *RegisterService) mutate(ctx context.Context, sessionID string, pinned bool, fn txFunc) error {
	release, err := s.locker.Acquire(ctx, lock.SessionKey(sessionID))
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	defer release()

	var (
		events []entity.PendingEvent
		now    time.Time
	)
	for attempt := 0; ; attempt++ {
		now = s.clock.Now()
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			evs, err := fn(ctx, tx, now)
			if err != nil {
				return err
			}
			if err := tx.AppendEvents(ctx, now, evs); err != nil {
				return fmt.Errorf("failed to append events: %w", err)
			}
			events = evs
			return nil
		})
		if err == nil || pinned || attempt >= s.maxRetries || !errors.Is(err, entity.ErrConcurrentModification) {
			break
		}
		slog.Warn("Service: Retrying after concurrent modification", "session_id", sessionID, "attempt", attempt+1)
	}
	if err != nil {
		return err
	}

	s.publish(ctx, sessionID, events, now)
	return nil
}

func (s *RegisterService) publish(ctx context.Context, key string, events []entity.PendingEvent, at time.Time) {
	for _, pe := range events {
		env, err := messaging.NewEnvelope(pe, at)
		if err == nil {
			err = s.publisher.PublishEvent(ctx, s.topic, key, env)
		}
		if err != nil {
			slog.Error("Failed to publish event", "event_type", pe.Event.EventType(), "stream_id", pe.StreamID, "err", err)
		}
	}
}

func stockEvent(adj stock.Adjustment) []entity.PendingEvent {
	e := adj.Event()
	if e == nil {
		return nil
	}
	return []entity.PendingEvent{{StreamID: adj.ProductID, StreamType: entity.StreamProduct, Event: e}}
}

func openSession(ctx context.Context, tx repository.Tx, id string) (entity.RegisterSession, error) {
	session, err := tx.GetSessionForUpdate(ctx, id)
	if err != nil {
		return entity.RegisterSession{}, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.IsOpen() {
		return entity.RegisterSession{}, fmt.Errorf("session %s: %w", id, entity.ErrSessionClosed)
	}
	return session, nil
}

// OpenSession starts a register session. Only one session may be open at a time.
func (s *RegisterService) OpenSession(ctx context.Context, openedBy string) (entity.RegisterSession, error) {
	if openedBy == "" {
		return entity.RegisterSession{}, fmt.Errorf("%w: opened_by is required", entity.ErrInvalidRequest)
	}
	slog.Info("Service: Opening register session", "opened_by", openedBy)

	session := entity.RegisterSession{ID: uuid.NewString(), OpenedBy: openedBy}
	err := s.mutate(ctx, session.ID, false, func(ctx context.Context, tx repository.Tx, now time.Time) ([]entity.PendingEvent, error) {
		session.OpenedAt = now
		if err := tx.CreateSession(ctx, session); err != nil {
			return nil, err
		}
		return []entity.PendingEvent{{
			StreamID:   session.ID,
			StreamType: entity.StreamSession,
			Event:      entity.SessionOpened{SessionID: session.ID, OpenedBy: openedBy, OpenedAt: now},
		}}, nil
	})
	if err != nil {
		return entity.RegisterSession{}, err
	}
	return session, nil
}

// CloseSession closes a session and writes its closing summary in the same transaction.
func (s *RegisterService) CloseSession(ctx context.Context, sessionID, closedBy, notes string) (entity.RegisterClosing, error) {
	if closedBy == "" {
		return entity.RegisterClosing{}, fmt.Errorf("%w: closed_by is required", entity.ErrInvalidRequest)
	}
	slog.Info("Service: Closing register session", "session_id", sessionID, "closed_by", closedBy)

	var closing entity.RegisterClosing
	err := s.mutate(ctx, sessionID, false, func(ctx context.Context, tx repository.Tx, now time.Time) ([]entity.PendingEvent, error) {
		session, err := openSession(ctx, tx, sessionID)
		if err != nil {
			return nil, err
		}
		orders, err := tx.FindSessionOrders(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session orders: %w", err)
		}

		session.ClosedAt = &now
		session.ClosedBy = closedBy
		session.Notes = notes
		if err := tx.CloseSession(ctx, session); err != nil {
			return nil, err
		}

		closing = totals.ComputeSessionTotals(orders).Closing(uuid.NewString(), session)
		if err := tx.CreateClosing(ctx, closing); err != nil {
			return nil, err
		}
		return []entity.PendingEvent{{
			StreamID:   sessionID,
			StreamType: entity.StreamSession,
			Event:      entity.SessionClosed{Closing: closing},
		}}, nil
	})
	if err != nil {
		return entity.RegisterClosing{}, err
	}

	slog.Info("Register session closed", "session_id", sessionID, "orders", closing.OrderCount, "final_amount", closing.FinalAmount)
	return closing, nil
}

// RecordSale creates one order with its line items and takes their stock. Any failure
// leaves stock untouched and is reported as entity.ErrSaleFailed wrapping the cause.
func (s *RegisterService) RecordSale(ctx context.Context, cmd entity.RecordSale) (entity.Order, error) {
	slog.Info("Service: Recording sale", "session_id", cmd.SessionID, "items", len(cmd.Items))

	order, err := s.recordSale(ctx, cmd)
	if err != nil {
		slog.Warn("Sale failed", "session_id", cmd.SessionID, "err", err)
		return entity.Order{}, fmt.Errorf("%w: %w", entity.ErrSaleFailed, err)
	}
	return order, nil
}

func (s *RegisterService) recordSale(ctx context.Context, cmd entity.RecordSale) (entity.Order, error) {
	if len(cmd.Items) == 0 {
		return entity.Order{}, fmt.Errorf("%w: sale must have at least one item", entity.ErrInvalidRequest)
	}
	if cmd.PaymentMethod == "" {
		cmd.PaymentMethod = entity.PaymentCash
	}
	if !cmd.PaymentMethod.Valid() {
		return entity.Order{}, fmt.Errorf("%w: unknown payment method %q", entity.ErrInvalidRequest, cmd.PaymentMethod)
	}
	if cmd.CardDiscountCount < 0 || cmd.CardDiscountCount > entity.MaxCardDiscountCount {
		return entity.Order{}, fmt.Errorf("%w: card discount count must be between 0 and %d, got %d",
			entity.ErrInvalidRequest, entity.MaxCardDiscountCount, cmd.CardDiscountCount)
	}

	var order entity.Order
	err := s.mutate(ctx, cmd.SessionID, false, func(ctx context.Context, tx repository.Tx, now time.Time) ([]entity.PendingEvent, error) {
		if _, err := openSession(ctx, tx, cmd.SessionID); err != nil {
			return nil, err
		}

		order = entity.Order{
			ID:                uuid.NewString(),
			SessionID:         cmd.SessionID,
			PaymentMethod:     cmd.PaymentMethod,
			CardDiscountCount: cmd.CardDiscountCount,
			CreatedAt:         now,
		}
		var events []entity.PendingEvent
		for _, req := range cmd.Items {
			product, err := tx.GetProductForUpdate(ctx, req.ProductID)
			if err != nil {
				return nil, fmt.Errorf("failed to load product: %w", err)
			}
			item, err := entity.NewLineItem(uuid.NewString(), order.ID, product, req.Quantity, req.IsTreat, now)
			if err != nil {
				return nil, err
			}
			adj, err := s.ledger.Decrement(ctx, tx, product.ID, item.Quantity)
			if errors.Is(err, entity.ErrNegativeStock) {
				return nil, fmt.Errorf("%w: %w", entity.ErrOutOfStock, err)
			}
			if err != nil {
				return nil, err
			}
			order.Items = append(order.Items, item)
			events = append(events, entity.PendingEvent{StreamID: item.ID, StreamType: entity.StreamLineItem, Event: entity.LineItemCreated{Item: item}})
			events = append(events, stockEvent(adj)...)
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		recorded := entity.SaleRecorded{
			SessionID:         order.SessionID,
			OrderID:           order.ID,
			PaymentMethod:     order.PaymentMethod,
			CardDiscountCount: order.CardDiscountCount,
			Items:             order.Items,
			FinalAmount:       totals.ComputeOrderTotals(order).FinalAmount,
			RecordedAt:        now,
		}
		head := entity.PendingEvent{StreamID: order.ID, StreamType: entity.StreamOrder, Event: recorded}
		return append([]entity.PendingEvent{head}, events...), nil
	})
	return order, err
}

// lineItemSession finds the session a line item belongs to.
func (s *RegisterService) lineItemSession(ctx context.Context, lineItemID string) (string, error) {
	item, err := s.store.GetLineItem(ctx, lineItemID)
	if err != nil {
		return "", fmt.Errorf("failed to load line item: %w", err)
	}
	if item.IsDeleted() {
		return "", fmt.Errorf("%w: %s", entity.ErrAlreadyDeleted, lineItemID)
	}
	order, err := s.store.GetOrder(ctx, item.OrderID)
	if err != nil {
		return "", fmt.Errorf("failed to load order of line item %s: %w", lineItemID, err)
	}
	return order.SessionID, nil
}

// EditLineItem changes product, quantity or treat flag of an item inside the edit window
// and moves stock to match. Nothing is committed if any stock change fails.
func (s *RegisterService) EditLineItem(ctx context.Context, cmd entity.EditLineItem) (entity.LineItem, error) {
	slog.Info("Service: Editing line item", "line_item_id", cmd.LineItemID)

	if cmd.Quantity != nil {
		if _, err := money.NewQuantity(*cmd.Quantity); err != nil {
			return entity.LineItem{}, err
		}
	}
	sessionID, err := s.lineItemSession(ctx, cmd.LineItemID)
	if err != nil {
		return entity.LineItem{}, err
	}

	var updated entity.LineItem
	pinned := cmd.ExpectedVersion != nil
	err = s.mutate(ctx, sessionID, pinned, func(ctx context.Context, tx repository.Tx, now time.Time) ([]entity.PendingEvent, error) {
		current, err := tx.GetLineItemForUpdate(ctx, cmd.LineItemID)
		if err != nil {
			return nil, fmt.Errorf("failed to load line item: %w", err)
		}
		if pinned && current.Version != *cmd.ExpectedVersion {
			return nil, fmt.Errorf("line item %s at version %d, expected %d: %w", current.ID, current.Version, *cmd.ExpectedVersion, entity.ErrConcurrentModification)
		}
		if _, err := openSession(ctx, tx, sessionID); err != nil {
			return nil, err
		}

		productID, quantity, isTreat := current.ProductID, current.Quantity.Int(), current.IsTreat
		if cmd.ProductID != nil {
			productID = *cmd.ProductID
		}
		if cmd.Quantity != nil {
			quantity = *cmd.Quantity
		}
		if cmd.IsTreat != nil {
			isTreat = *cmd.IsTreat
		}

		// Validate against a scratch copy before touching stock.
		probe := current
		if err := probe.Edit(entity.Product{ID: productID}, quantity, isTreat, now); err != nil {
			return nil, err
		}

		adjustments, err := s.moveStock(ctx, tx, current, productID, probe.Quantity)
		if err != nil {
			return nil, err
		}

		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("failed to load product: %w", err)
		}
		updated = current
		if err := updated.Edit(product, quantity, isTreat, now); err != nil {
			return nil, err
		}
		updated.Version = current.Version + 1
		if err := tx.UpdateLineItem(ctx, updated, current.Version); err != nil {
			return nil, err
		}

		events := []entity.PendingEvent{{
			StreamID:   updated.ID,
			StreamType: entity.StreamLineItem,
			Event:      entity.LineItemEdited{SessionID: sessionID, Before: current, After: updated, EditedAt: now},
		}}
		for _, adj := range adjustments {
			events = append(events, stockEvent(adj)...)
		}
		return events, nil
	})
	if err != nil {
		return entity.LineItem{}, err
	}
	return updated, nil
}

// moveStock applies the stock side of an edit: a product swap restores the old product and
// takes from the new one, a quantity change on the same product applies the difference.
func (s *RegisterService) moveStock(ctx context.Context, tx repository.Tx, current entity.LineItem, productID string, qty money.Quantity) ([]stock.Adjustment, error) {
	var adjustments []stock.Adjustment
	insufficient := func(err error) error {
		if errors.Is(err, entity.ErrNegativeStock) {
			return fmt.Errorf("%w: %w", entity.ErrInsufficientStock, err)
		}
		return err
	}

	if productID != current.ProductID {
		restored, err := s.ledger.Increment(ctx, tx, current.ProductID, current.Quantity)
		if err != nil {
			return nil, err
		}
		taken, err := s.ledger.Decrement(ctx, tx, productID, qty)
		if err != nil {
			return nil, insufficient(err)
		}
		return append(adjustments, restored, taken), nil
	}

	switch delta := qty.Int() - current.Quantity.Int(); {
	case delta > 0:
		taken, err := s.ledger.Decrement(ctx, tx, productID, money.Quantity(delta))
		if err != nil {
			return nil, insufficient(err)
		}
		adjustments = append(adjustments, taken)
	case delta < 0:
		restored, err := s.ledger.Increment(ctx, tx, productID, money.Quantity(-delta))
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, restored)
	}
	return adjustments, nil
}

// DeleteLineItem removes an item inside the edit window and returns its stock. The order
// is removed together with its last active item.
func (s *RegisterService) DeleteLineItem(ctx context.Context, lineItemID string) (entity.LineItem, error) {
	slog.Info("Service: Deleting line item", "line_item_id", lineItemID)

	sessionID, err := s.lineItemSession(ctx, lineItemID)
	if err != nil {
		return entity.LineItem{}, err
	}

	var deleted entity.LineItem
	err = s.mutate(ctx, sessionID, false, func(ctx context.Context, tx repository.Tx, now time.Time) ([]entity.PendingEvent, error) {
		current, err := tx.GetLineItemForUpdate(ctx, lineItemID)
		if err != nil {
			return nil, fmt.Errorf("failed to load line item: %w", err)
		}
		if _, err := openSession(ctx, tx, sessionID); err != nil {
			return nil, err
		}

		deleted = current
		if err := deleted.Delete(now); err != nil {
			return nil, err
		}
		adj, err := s.ledger.Increment(ctx, tx, current.ProductID, current.Quantity)
		if err != nil {
			return nil, err
		}
		deleted.Version = current.Version + 1
		if err := tx.UpdateLineItem(ctx, deleted, current.Version); err != nil {
			return nil, err
		}

		events := []entity.PendingEvent{{
			StreamID:   deleted.ID,
			StreamType: entity.StreamLineItem,
			Event:      entity.LineItemDeleted{SessionID: sessionID, Item: deleted, DeletedAt: now},
		}}
		events = append(events, stockEvent(adj)...)

		order, err := tx.GetOrder(ctx, deleted.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load order: %w", err)
		}
		if len(order.ActiveItems()) == 0 {
			if err := tx.DeleteOrder(ctx, order.ID); err != nil {
				return nil, fmt.Errorf("failed to delete order: %w", err)
			}
			events = append(events, entity.PendingEvent{
				StreamID:   order.ID,
				StreamType: entity.StreamOrder,
				Event:      entity.OrderRemoved{SessionID: sessionID, OrderID: order.ID, RemovedAt: now},
			})
			slog.Info("Order removed with its last item", "order_id", order.ID)
		}
		return events, nil
	})
	if err != nil {
		return entity.LineItem{}, err
	}
	return deleted, nil
}
