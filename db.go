package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dacrab/clubos-legacy-sub000/internal/config"
	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository/memory"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository/postgres"
)

// openStore builds the configured store. The returned close function is never nil.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		slog.Info("Using in-memory storage")
		return memory.NewStore(), func() {}, nil
	}

	db, err := postgres.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}
	return postgres.NewStore(db), func() { closeDB(db) }, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("Failed to close database", "err", err)
	}
}

// defaultCatalog is the product list a fresh register starts with.
func defaultCatalog() []entity.Product {
	return []entity.Product{
		{ID: "prod-espresso", Name: "Espresso", Category: "Coffee", Price: 200, Stock: entity.UnlimitedStock},
		{ID: "prod-freddo", Name: "Freddo Espresso", Category: "Coffee", Price: 300, Stock: entity.UnlimitedStock},
		{ID: "prod-cappuccino", Name: "Cappuccino", Category: "Coffee", Price: 350, Stock: entity.UnlimitedStock},
		{ID: "prod-water", Name: "Water 500ml", Category: "Drinks", Price: 50, Stock: 120},
		{ID: "prod-soda", Name: "Soda", Category: "Drinks", Price: 150, Stock: 48},
		{ID: "prod-juice", Name: "Orange Juice", Category: "Drinks", Price: 250, Stock: 24},
		{ID: "prod-toast", Name: "Toast", Category: "Food", Price: 250, Stock: 30},
		{ID: "prod-croissant", Name: "Croissant", Category: "Food", Price: 200, Stock: 20},
		{ID: "prod-court", Name: "Court Rental (1h)", Category: "Services", Price: 2500, Stock: entity.UnlimitedStock},
	}
}

func seedProducts(ctx context.Context, store repository.Store) error {
	if err := store.SeedProducts(ctx, defaultCatalog()); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	slog.Info("Product catalog ready")
	return nil
}
