package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

// InitDB opens, pings and migrates the register database.
func InitDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated")
	return db, nil
}

func migrateDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL DEFAULT 0,
			stock INT NOT NULL DEFAULT 0 CHECK (stock >= -1),
			version INT NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS register_sessions (
			id TEXT PRIMARY KEY,
			opened_at TIMESTAMPTZ NOT NULL,
			opened_by TEXT NOT NULL,
			closed_at TIMESTAMPTZ,
			closed_by TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		);

		-- At most one open session system-wide.
		CREATE UNIQUE INDEX IF NOT EXISTS register_sessions_one_open
			ON register_sessions ((closed_at IS NULL)) WHERE closed_at IS NULL;

		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES register_sessions(id),
			payment_method TEXT NOT NULL DEFAULT 'cash',
			card_discount_count INT NOT NULL DEFAULT 0 CHECK (card_discount_count >= 0),
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS orders_session_id ON orders (session_id, created_at);

		-- No foreign key to orders: items outlive a removed order for audit.
		CREATE TABLE IF NOT EXISTS line_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			position INT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			unit_price_cents BIGINT NOT NULL,
			quantity INT NOT NULL CHECK (quantity >= 1),
			is_treat BOOLEAN NOT NULL DEFAULT FALSE,
			state TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL,
			original_product_id TEXT NOT NULL DEFAULT '',
			original_product_name TEXT NOT NULL DEFAULT '',
			original_quantity INT NOT NULL DEFAULT 0,
			edited_at TIMESTAMPTZ,
			deleted_at TIMESTAMPTZ,
			version INT NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS line_items_order_id ON line_items (order_id, position);

		CREATE TABLE IF NOT EXISTS register_closings (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE REFERENCES register_sessions(id),
			closed_at TIMESTAMPTZ NOT NULL,
			closed_by TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			order_count INT NOT NULL,
			cash_orders INT NOT NULL,
			cash_total_cents BIGINT NOT NULL,
			card_orders INT NOT NULL,
			card_total_cents BIGINT NOT NULL,
			treats_count INT NOT NULL,
			treats_total_cents BIGINT NOT NULL,
			card_discounts INT NOT NULL,
			discount_total_cents BIGINT NOT NULL,
			total_before_discounts_cents BIGINT NOT NULL,
			final_amount_cents BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			stream_type TEXT NOT NULL,
			version INT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (stream_id, version)
		);
	`)
	return err
}
