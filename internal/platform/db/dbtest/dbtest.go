//go:build integration

// Package dbtest opens the PostgreSQL database used by integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/stockplus/stockplus/internal/platform/db"
	"github.com/stockplus/stockplus/migrations"
)

// EnvDSN names the variable holding the integration database DSN.
const EnvDSN = "STOCKPLUS_TEST_PG_DSN"

// Open migrates the database named by EnvDSN and returns a pool closed with the
// test. The test is skipped when the variable is unset.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	_, err := migrations.Up(dsn)
	require.NoError(t, err)

	pool, err := db.New(context.Background(), dsn, db.PoolConfig{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Reset empties every table and restarts the id sequences.
func Reset(t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE idempotency_keys, audit_logs, invoices, sale_items, sales,
product_variants, products RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

// InsertProduct adds a product and returns its id. An empty price stores NULL.
func InsertProduct(t testing.TB, pool *pgxpool.Pool, companyID int64, sku, price string, stock, threshold int) int64 {
	t.Helper()
	var p *string
	if price != "" {
		p = &price
	}
	var id int64
	err := pool.QueryRow(context.Background(), `INSERT INTO products (company_id, name, sku, price, stock, low_stock_threshold)
VALUES ($1, $2, $2, $3::text::numeric, $4, $5) RETURNING id`, companyID, sku, p, stock, threshold).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertVariant adds a variant to a product and returns its id. An empty price stores NULL.
func InsertVariant(t testing.TB, pool *pgxpool.Pool, productID int64, name, price string) int64 {
	t.Helper()
	var p *string
	if price != "" {
		p = &price
	}
	var id int64
	err := pool.QueryRow(context.Background(), `INSERT INTO product_variants (product_id, name, price)
VALUES ($1, $2, $3::text::numeric) RETURNING id`, productID, name, p).Scan(&id)
	require.NoError(t, err)
	return id
}

// Stock reads a product's current stock.
func Stock(t testing.TB, pool *pgxpool.Pool, productID int64) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	require.NoError(t, err)
	return stock
}
