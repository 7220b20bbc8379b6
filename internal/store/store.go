package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the Postgres-backed repository. It implements domain.Repo for
// auto-committed operations and domain.TxRunner for transactional ones.
type Store struct {
	queries
	db *sqlx.DB
}

// NewStore connects to the database.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{queries: queries{ext: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside one transaction; the repo handed to fn is bound to it.
func (s *Store) InTx(ctx context.Context, fn func(r domain.Repo) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries implements domain.Repo over either the pool or one transaction.
type queries struct {
	ext sqlx.ExtContext
}

// UpsertCustomer creates or refreshes a customer keyed by external id.
func (q *queries) UpsertCustomer(ctx context.Context, externalID, email, name string) (*models.Customer, error) {
	var customer models.Customer
	err := sqlx.GetContext(ctx, q.ext, &customer, `
		INSERT INTO customers (external_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id)
		DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
		RETURNING *`,
		externalID, email, name)
	if err != nil {
		return nil, fmt.Errorf("upsert customer %s: %w", externalID, err)
	}
	return &customer, nil
}

// UpsertProduct creates or refreshes a product keyed by SKU. Stock is seeded
// only on first insert; re-imports never touch a live stock quantity.
func (q *queries) UpsertProduct(ctx context.Context, sku, name string, priceCents int64, defaultStock int) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product, `
		INSERT INTO products (sku, name, price_cents, stock_qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sku)
		DO UPDATE SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, updated_at = NOW()
		RETURNING *`,
		sku, name, priceCents, defaultStock)
	if err != nil {
		return nil, fmt.Errorf("upsert product %s: %w", sku, err)
	}
	return &product, nil
}

// GetProduct retrieves a product by id.
func (q *queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductsForUpdate row-locks and returns the given products in id order.
func (q *queries) ProductsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}
	query = q.ext.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, q.ext, &products, query, args...)
	return products, err
}

// AdjustStock adds delta to a product's stock quantity.
func (q *queries) AdjustStock(ctx context.Context, productID int64, delta int) error {
	_, err := q.ext.ExecContext(ctx,
		"UPDATE products SET stock_qty = stock_qty + $1, updated_at = NOW() WHERE id = $2",
		delta, productID)
	return err
}
