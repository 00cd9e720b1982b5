package postgres

import (
	"context"
	"fmt"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
)

const productColumns = "id, name, category, price_cents, stock, version"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (entity.Product, error) {
	var p entity.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Version)
	return p, err
}

func (s *store) FindProducts(ctx context.Context) ([]entity.Product, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}
	return products, nil
}

func (s *store) GetProduct(ctx context.Context, id string) (entity.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		return entity.Product{}, notFound(err, "product", id)
	}
	return p, nil
}

func (s *store) SeedProducts(ctx context.Context, products []entity.Product) error {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil // already seeded
	}

	for _, p := range products {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO products (id, name, category, price_cents, stock) VALUES ($1, $2, $3, $4, $5)",
			p.ID, p.Name, p.Category, p.Price, p.Stock,
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

func (t *txStore) GetProductForUpdate(ctx context.Context, id string) (entity.Product, error) {
	p, err := scanProduct(t.q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return entity.Product{}, notFound(err, "product", id)
	}
	return p, nil
}

func (t *txStore) UpdateProductStock(ctx context.Context, id string, stock, expectedVersion int) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE products SET stock = $1, version = version + 1 WHERE id = $2 AND version = $3",
		stock, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	return expectOneRow(res, "product", id, expectedVersion)
}
