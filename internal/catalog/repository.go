package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader is the read port used by the sale service to price lines.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// Repository reads products straight from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct loads a product with its variants.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, sku, price, stock, low_stock_threshold
FROM products WHERE id = $1`, id).Scan(&p.ID, &p.CompanyID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.LowStockThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name, price FROM product_variants WHERE product_id = $1 ORDER BY id`, id)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: list variants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.Name, &v.Price); err != nil {
			return Product{}, fmt.Errorf("catalog: scan variant: %w", err)
		}
		p.Variants = append(p.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return Product{}, fmt.Errorf("catalog: list variants: %w", err)
	}
	return p, nil
}
