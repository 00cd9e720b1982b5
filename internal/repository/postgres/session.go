package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
)

const sessionColumns = "id, opened_at, opened_by, closed_at, closed_by, notes"

func scanSession(row rowScanner) (entity.RegisterSession, error) {
	var s entity.RegisterSession
	var closedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.OpenedAt, &s.OpenedBy, &closedAt, &s.ClosedBy, &s.Notes); err != nil {
		return entity.RegisterSession{}, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		s.ClosedAt = &t
	}
	return s, nil
}

func (s *store) GetOpenSession(ctx context.Context) (entity.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM register_sessions WHERE closed_at IS NULL"))
	if err != nil {
		return entity.RegisterSession{}, notFound(err, "session", "open")
	}
	return session, nil
}

func (s *store) GetSession(ctx context.Context, id string) (entity.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM register_sessions WHERE id = $1", id))
	if err != nil {
		return entity.RegisterSession{}, notFound(err, "session", id)
	}
	return session, nil
}

func (s *store) FindRecentClosings(ctx context.Context, limit int) ([]entity.RegisterClosing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, closed_at, closed_by, notes, order_count,
			cash_orders, cash_total_cents, card_orders, card_total_cents,
			treats_count, treats_total_cents, card_discounts, discount_total_cents,
			total_before_discounts_cents, final_amount_cents
		FROM register_closings ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closings: %w", err)
	}
	defer rows.Close()

	var closings []entity.RegisterClosing
	for rows.Next() {
		var c entity.RegisterClosing
		if err := rows.Scan(&c.ID, &c.SessionID, &c.ClosedAt, &c.ClosedBy, &c.Notes, &c.OrderCount,
			&c.CashOrders, &c.CashTotal, &c.CardOrders, &c.CardTotal,
			&c.TreatsCount, &c.TreatsTotal, &c.CardDiscounts, &c.DiscountTotal,
			&c.TotalBeforeDiscounts, &c.FinalAmount); err != nil {
			return nil, fmt.Errorf("failed to scan closing: %w", err)
		}
		closings = append(closings, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closing rows: %w", err)
	}
	return closings, nil
}

func (t *txStore) GetSessionForUpdate(ctx context.Context, id string) (entity.RegisterSession, error) {
	session, err := scanSession(t.q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM register_sessions WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return entity.RegisterSession{}, notFound(err, "session", id)
	}
	return session, nil
}

func (t *txStore) CreateSession(ctx context.Context, session entity.RegisterSession) error {
	_, err := t.q.ExecContext(ctx,
		"INSERT INTO register_sessions (id, opened_at, opened_by) VALUES ($1, $2, $3)",
		session.ID, session.OpenedAt, session.OpenedBy,
	)
	if isUniqueViolation(err, "register_sessions_one_open") {
		return fmt.Errorf("session %s: %w", session.ID, entity.ErrSessionAlreadyOpen)
	}
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (t *txStore) CloseSession(ctx context.Context, session entity.RegisterSession) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE register_sessions SET closed_at = $1, closed_by = $2, notes = $3 WHERE id = $4 AND closed_at IS NULL",
		session.ClosedAt, session.ClosedBy, session.Notes, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, entity.ErrSessionClosed)
	}
	return nil
}

func (t *txStore) CreateClosing(ctx context.Context, c entity.RegisterClosing) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO register_closings (id, session_id, closed_at, closed_by, notes, order_count,
			cash_orders, cash_total_cents, card_orders, card_total_cents,
			treats_count, treats_total_cents, card_discounts, discount_total_cents,
			total_before_discounts_cents, final_amount_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.SessionID, c.ClosedAt, c.ClosedBy, c.Notes, c.OrderCount,
		c.CashOrders, c.CashTotal, c.CardOrders, c.CardTotal,
		c.TreatsCount, c.TreatsTotal, c.CardDiscounts, c.DiscountTotal,
		c.TotalBeforeDiscounts, c.FinalAmount,
	)
	if isUniqueViolation(err, "") {
		return fmt.Errorf("closing for session %s: %w", c.SessionID, entity.ErrSessionClosed)
	}
	if err != nil {
		return fmt.Errorf("failed to insert closing: %w", err)
	}
	return nil
}
