package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/lib/pq"
)

const lineItemColumns = `id, order_id, product_id, product_name, unit_price_cents, quantity, is_treat,
	state, created_at, original_product_id, original_product_name, original_quantity,
	edited_at, deleted_at, version`

func scanLineItem(row rowScanner) (entity.LineItem, error) {
	var li entity.LineItem
	var editedAt, deletedAt sql.NullTime
	err := row.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.ProductName, &li.UnitPrice, &li.Quantity, &li.IsTreat,
		&li.State, &li.CreatedAt, &li.OriginalProductID, &li.OriginalProductName, &li.OriginalQuantity,
		&editedAt, &deletedAt, &li.Version)
	if err != nil {
		return entity.LineItem{}, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		li.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		li.DeletedAt = &t
	}
	return li, nil
}

func getOrder(ctx context.Context, q queryer, id string) (entity.Order, error) {
	var o entity.Order
	err := q.QueryRowContext(ctx,
		"SELECT id, session_id, payment_method, card_discount_count, created_at FROM orders WHERE id = $1", id,
	).Scan(&o.ID, &o.SessionID, &o.PaymentMethod, &o.CardDiscountCount, &o.CreatedAt)
	if err != nil {
		return entity.Order{}, notFound(err, "order", id)
	}

	items, err := findOrderItems(ctx, q, []string{id})
	if err != nil {
		return entity.Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

func findSessionOrders(ctx context.Context, q queryer, sessionID string) ([]entity.Order, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, session_id, payment_method, card_discount_count, created_at FROM orders WHERE session_id = $1 ORDER BY created_at, id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	var ids []string
	for rows.Next() {
		var o entity.Order
		if err := rows.Scan(&o.ID, &o.SessionID, &o.PaymentMethod, &o.CardDiscountCount, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	// One query for the items of every order.
	items, err := findOrderItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func findOrderItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]entity.LineItem, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+lineItemColumns+" FROM line_items WHERE order_id = ANY($1) ORDER BY order_id, position",
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]entity.LineItem, len(orderIDs))
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items[li.OrderID] = append(items[li.OrderID], li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order item rows: %w", err)
	}
	return items, nil
}

func (s *store) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	return getOrder(ctx, s.db, id)
}

func (s *store) FindSessionOrders(ctx context.Context, sessionID string) ([]entity.Order, error) {
	return findSessionOrders(ctx, s.db, sessionID)
}

func (s *store) GetLineItem(ctx context.Context, id string) (entity.LineItem, error) {
	li, err := scanLineItem(s.db.QueryRowContext(ctx, "SELECT "+lineItemColumns+" FROM line_items WHERE id = $1", id))
	if err != nil {
		return entity.LineItem{}, notFound(err, "line item", id)
	}
	return li, nil
}

func (t *txStore) CreateOrder(ctx context.Context, o entity.Order) error {
	_, err := t.q.ExecContext(ctx,
		"INSERT INTO orders (id, session_id, payment_method, card_discount_count, created_at) VALUES ($1, $2, $3, $4, $5)",
		o.ID, o.SessionID, o.PaymentMethod, o.CardDiscountCount, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, li := range o.Items {
		_, err = t.q.ExecContext(ctx, `
			INSERT INTO line_items (id, order_id, position, product_id, product_name, unit_price_cents,
				quantity, is_treat, state, created_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			li.ID, o.ID, i, li.ProductID, li.ProductName, li.UnitPrice,
			li.Quantity, li.IsTreat, li.State, li.CreatedAt, li.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}

func (t *txStore) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	return getOrder(ctx, t.q, id)
}

func (t *txStore) FindSessionOrders(ctx context.Context, sessionID string) ([]entity.Order, error) {
	return findSessionOrders(ctx, t.q, sessionID)
}

func (t *txStore) DeleteOrder(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (t *txStore) GetLineItemForUpdate(ctx context.Context, id string) (entity.LineItem, error) {
	li, err := scanLineItem(t.q.QueryRowContext(ctx, "SELECT "+lineItemColumns+" FROM line_items WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return entity.LineItem{}, notFound(err, "line item", id)
	}
	return li, nil
}

func (t *txStore) UpdateLineItem(ctx context.Context, li entity.LineItem, expectedVersion int) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE line_items SET product_id = $1, product_name = $2, unit_price_cents = $3, quantity = $4,
			is_treat = $5, state = $6, original_product_id = $7, original_product_name = $8,
			original_quantity = $9, edited_at = $10, deleted_at = $11, version = $12
		WHERE id = $13 AND version = $14`,
		li.ProductID, li.ProductName, li.UnitPrice, li.Quantity,
		li.IsTreat, li.State, li.OriginalProductID, li.OriginalProductName,
		li.OriginalQuantity, li.EditedAt, li.DeletedAt, li.Version,
		li.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update line item: %w", err)
	}
	return expectOneRow(res, "line item", li.ID, expectedVersion)
}

// expectOneRow turns a version-guarded update that matched nothing into a conflict.
func expectOneRow(res sql.Result, what, id string, expectedVersion int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not at version %d: %w", what, id, expectedVersion, entity.ErrConcurrentModification)
	}
	return nil
}
