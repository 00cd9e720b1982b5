// Package memory is an in-process repository.Store.
//
// Writers are serialized by one mutex. A transaction records its writes in a private
// overlay on top of the committed state and reads through it; commit copies only the
// overlay entries into the committed state under the read/write lock. Readers never see
// a half-applied write, and the cost of a write does not grow with history.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository"
	"github.com/google/uuid"
)

// orderRecord is an order without its items; items are kept in their own map so they
// outlive a deleted order.
type orderRecord struct {
	order   entity.Order
	itemIDs []string
}

type state struct {
	products      map[string]entity.Product
	sessions      map[string]entity.RegisterSession
	openSessionID string
	orders        map[string]orderRecord
	sessionOrders map[string][]string
	items         map[string]entity.LineItem
	closings      []entity.RegisterClosing
	closedIDs     map[string]bool
	events        map[string][]entity.EventStoreRecord
}

func newState() *state {
	return &state{
		products:      map[string]entity.Product{},
		sessions:      map[string]entity.RegisterSession{},
		orders:        map[string]orderRecord{},
		sessionOrders: map[string][]string{},
		items:         map[string]entity.LineItem{},
		closedIDs:     map[string]bool{},
		events:        map[string][]entity.EventStoreRecord{},
	}
}

// Store keeps the register state in memory.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	st      *state
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against an overlay of the committed state and applies the overlay if
// fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	// The committed state only changes in commit below, which this writer performs, so
	// the draft may read it without the read lock.
	draft := newTx(s.st)
	if err := fn(ctx, draft); err != nil {
		return err
	}

	s.mu.Lock()
	draft.commit()
	s.mu.Unlock()
	return nil
}

// SeedProducts inserts products if the catalog is empty.
func (s *Store) SeedProducts(ctx context.Context, products []entity.Product) error {
	return s.WithinTx(ctx, func(_ context.Context, t repository.Tx) error {
		draft := t.(*tx)
		if len(draft.base.products) > 0 || len(draft.products) > 0 {
			return nil // already seeded
		}
		for _, p := range products {
			if p.Version == 0 {
				p.Version = 1
			}
			draft.products[p.ID] = p
		}
		return nil
	})
}

func (s *Store) FindProducts(_ context.Context) ([]entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]entity.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return committed(s.st).product(id)
}

func (s *Store) GetOpenSession(_ context.Context) (entity.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.st.openSessionID == "" {
		return entity.RegisterSession{}, fmt.Errorf("open session: %w", entity.ErrNotFound)
	}
	return s.st.sessions[s.st.openSessionID], nil
}

func (s *Store) GetSession(_ context.Context, id string) (entity.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return committed(s.st).session(id)
}

func (s *Store) GetOrder(_ context.Context, id string) (entity.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return committed(s.st).order(id)
}

func (s *Store) FindSessionOrders(_ context.Context, sessionID string) ([]entity.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return committed(s.st).sessionOrderList(sessionID), nil
}

func (s *Store) GetLineItem(_ context.Context, id string) (entity.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return committed(s.st).lineItem(id)
}

func (s *Store) FindRecentClosings(_ context.Context, limit int) ([]entity.RegisterClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.st.closings)
	if limit > 0 && n > limit {
		n = limit
	}
	closings := make([]entity.RegisterClosing, 0, n)
	for i := len(s.st.closings) - 1; i >= 0 && len(closings) < n; i-- {
		closings = append(closings, s.st.closings[i])
	}
	return closings, nil
}

func (s *Store) LoadEvents(_ context.Context, streamID string) ([]entity.EventStoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.events[streamID]), nil
}

// tx is the write side handed to WithinTx callbacks. Its maps hold the entries written
// so far; lookups fall back to base.
type tx struct {
	base *state

	products      map[string]entity.Product
	sessions      map[string]entity.RegisterSession
	openSessionID *string
	orders        map[string]orderRecord
	deletedOrders map[string]bool
	sessionOrders map[string][]string
	items         map[string]entity.LineItem
	closings      []entity.RegisterClosing
	events        map[string][]entity.EventStoreRecord
}

var _ repository.Tx = (*tx)(nil)

func newTx(base *state) *tx {
	return &tx{
		base:          base,
		products:      map[string]entity.Product{},
		sessions:      map[string]entity.RegisterSession{},
		orders:        map[string]orderRecord{},
		deletedOrders: map[string]bool{},
		sessionOrders: map[string][]string{},
		items:         map[string]entity.LineItem{},
		events:        map[string][]entity.EventStoreRecord{},
	}
}

// committed is a read-only view of base with an empty overlay.
func committed(base *state) *tx {
	return &tx{base: base}
}

// commit copies the overlay into base. The caller holds the write lock.
func (t *tx) commit() {
	b := t.base
	for id, p := range t.products {
		b.products[id] = p
	}
	for id, session := range t.sessions {
		b.sessions[id] = session
	}
	if t.openSessionID != nil {
		b.openSessionID = *t.openSessionID
	}
	for id, rec := range t.orders {
		b.orders[id] = rec
	}
	for id := range t.deletedOrders {
		delete(b.orders, id)
	}
	for sessionID, ids := range t.sessionOrders {
		b.sessionOrders[sessionID] = append(b.sessionOrders[sessionID], ids...)
	}
	for id, item := range t.items {
		b.items[id] = item
	}
	for _, c := range t.closings {
		b.closings = append(b.closings, c)
		b.closedIDs[c.SessionID] = true
	}
	for streamID, records := range t.events {
		b.events[streamID] = append(b.events[streamID], records...)
	}
}

// --- lookups through the overlay ---

func (t *tx) product(id string) (entity.Product, error) {
	if p, ok := t.products[id]; ok {
		return p, nil
	}
	if p, ok := t.base.products[id]; ok {
		return p, nil
	}
	return entity.Product{}, fmt.Errorf("product %s: %w", id, entity.ErrNotFound)
}

func (t *tx) session(id string) (entity.RegisterSession, error) {
	if session, ok := t.sessions[id]; ok {
		return session, nil
	}
	if session, ok := t.base.sessions[id]; ok {
		return session, nil
	}
	return entity.RegisterSession{}, fmt.Errorf("session %s: %w", id, entity.ErrNotFound)
}

func (t *tx) openSession() string {
	if t.openSessionID != nil {
		return *t.openSessionID
	}
	return t.base.openSessionID
}

func (t *tx) orderRecord(id string) (orderRecord, bool) {
	if t.deletedOrders[id] {
		return orderRecord{}, false
	}
	if rec, ok := t.orders[id]; ok {
		return rec, true
	}
	rec, ok := t.base.orders[id]
	return rec, ok
}

func (t *tx) order(id string) (entity.Order, error) {
	rec, ok := t.orderRecord(id)
	if !ok {
		return entity.Order{}, fmt.Errorf("order %s: %w", id, entity.ErrNotFound)
	}
	order := rec.order
	order.Items = make([]entity.LineItem, 0, len(rec.itemIDs))
	for _, itemID := range rec.itemIDs {
		item, _ := t.lineItem(itemID)
		order.Items = append(order.Items, item)
	}
	return order, nil
}

func (t *tx) sessionOrderList(sessionID string) []entity.Order {
	var orders []entity.Order
	for _, ids := range [][]string{t.base.sessionOrders[sessionID], t.sessionOrders[sessionID]} {
		for _, id := range ids {
			if order, err := t.order(id); err == nil {
				orders = append(orders, order)
			}
		}
	}
	return orders
}

func (t *tx) lineItem(id string) (entity.LineItem, error) {
	if item, ok := t.items[id]; ok {
		return item, nil
	}
	if item, ok := t.base.items[id]; ok {
		return item, nil
	}
	return entity.LineItem{}, fmt.Errorf("line item %s: %w", id, entity.ErrNotFound)
}

// --- repository.Tx ---

func (t *tx) GetProductForUpdate(_ context.Context, id string) (entity.Product, error) {
	return t.product(id)
}

func (t *tx) UpdateProductStock(_ context.Context, id string, stock, expectedVersion int) error {
	p, err := t.product(id)
	if err != nil {
		return err
	}
	if p.Version != expectedVersion {
		return fmt.Errorf("product %s at version %d, expected %d: %w", id, p.Version, expectedVersion, entity.ErrConcurrentModification)
	}
	p.Stock = stock
	p.Version++
	t.products[id] = p
	return nil
}

func (t *tx) GetSessionForUpdate(_ context.Context, id string) (entity.RegisterSession, error) {
	return t.session(id)
}

func (t *tx) CreateSession(_ context.Context, session entity.RegisterSession) error {
	if open := t.openSession(); open != "" {
		return fmt.Errorf("session %s: %w", open, entity.ErrSessionAlreadyOpen)
	}
	t.sessions[session.ID] = session
	if session.IsOpen() {
		id := session.ID
		t.openSessionID = &id
	}
	return nil
}

func (t *tx) CloseSession(_ context.Context, session entity.RegisterSession) error {
	existing, err := t.session(session.ID)
	if err != nil {
		return err
	}
	if !existing.IsOpen() {
		return fmt.Errorf("session %s: %w", session.ID, entity.ErrSessionClosed)
	}
	t.sessions[session.ID] = session
	if !session.IsOpen() && t.openSession() == session.ID {
		none := ""
		t.openSessionID = &none
	}
	return nil
}

func (t *tx) CreateClosing(_ context.Context, closing entity.RegisterClosing) error {
	closed := t.base.closedIDs[closing.SessionID] || slices.ContainsFunc(t.closings, func(c entity.RegisterClosing) bool {
		return c.SessionID == closing.SessionID
	})
	if closed {
		return fmt.Errorf("closing for session %s: %w", closing.SessionID, entity.ErrSessionClosed)
	}
	t.closings = append(t.closings, closing)
	return nil
}

func (t *tx) CreateOrder(_ context.Context, order entity.Order) error {
	if _, exists := t.orderRecord(order.ID); exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	rec := orderRecord{order: order}
	rec.order.Items = nil
	for _, item := range order.Items {
		t.items[item.ID] = item
		rec.itemIDs = append(rec.itemIDs, item.ID)
	}
	t.orders[order.ID] = rec
	t.sessionOrders[order.SessionID] = append(t.sessionOrders[order.SessionID], order.ID)
	return nil
}

func (t *tx) GetOrder(_ context.Context, id string) (entity.Order, error) {
	return t.order(id)
}

func (t *tx) FindSessionOrders(_ context.Context, sessionID string) ([]entity.Order, error) {
	return t.sessionOrderList(sessionID), nil
}

func (t *tx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.orderRecord(id); !ok {
		return fmt.Errorf("order %s: %w", id, entity.ErrNotFound)
	}
	delete(t.orders, id)
	t.deletedOrders[id] = true
	return nil
}

func (t *tx) GetLineItemForUpdate(_ context.Context, id string) (entity.LineItem, error) {
	return t.lineItem(id)
}

func (t *tx) UpdateLineItem(_ context.Context, item entity.LineItem, expectedVersion int) error {
	stored, err := t.lineItem(item.ID)
	if err != nil {
		return err
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("line item %s at version %d, expected %d: %w", item.ID, stored.Version, expectedVersion, entity.ErrConcurrentModification)
	}
	t.items[item.ID] = item
	return nil
}

func (t *tx) AppendEvents(_ context.Context, at time.Time, events []entity.PendingEvent) error {
	for _, pe := range events {
		payload, err := json.Marshal(pe.Event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", pe.Event.EventType(), err)
		}
		version := len(t.base.events[pe.StreamID]) + len(t.events[pe.StreamID]) + 1
		t.events[pe.StreamID] = append(t.events[pe.StreamID], entity.EventStoreRecord{
			ID:         uuid.NewString(),
			StreamID:   pe.StreamID,
			StreamType: pe.StreamType,
			Version:    version,
			EventType:  pe.Event.EventType(),
			Payload:    payload,
			CreatedAt:  at,
		})
	}
	return nil
}
