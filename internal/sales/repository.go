package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockplus/stockplus/internal/platform/db"
)

const (
	saleColumns = `id, uid, invoice_number, date, total_amount, payment_method, company_id,
point_of_sale_id, user_id, is_cancelled, cancelled_at, cancelled_by, notes`
	itemColumns = `id, uid, sale_id, product_id, variant_id, quantity, unit_price, discount, total_price`
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, txOpts: opts}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

// GetSale loads a sale and its items.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = listItems(ctx, r.pool, sale.ID)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// GetSaleByInvoiceNumber loads a sale by its invoice number.
func (r *Repository) GetSaleByInvoiceNumber(ctx context.Context, number string) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE invoice_number = $1`, number))
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = listItems(ctx, r.pool, sale.ID)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// ListSales lists sales for a company, optionally narrowed to a point of sale.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales
WHERE company_id = $1 AND ($2::bigint IS NULL OR point_of_sale_id = $2)
ORDER BY date DESC, id DESC
LIMIT $3 OFFSET $4`, filter.CompanyID, filter.PointOfSaleID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("sales: list sales: %w", err)
	}
	defer rows.Close()

	var sales []Sale
	index := map[int64]int{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sales: list sales: %w", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]int64, 0, len(sales))
	for _, s := range sales {
		ids = append(ids, s.ID)
	}
	itemRows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("sales: list items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, err
		}
		pos := index[item.SaleID]
		sales[pos].Items = append(sales[pos].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("sales: list items: %w", err)
	}
	return sales, nil
}

// GetItem loads one sale item.
func (r *Repository) GetItem(ctx context.Context, id int64) (SaleItem, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE id = $1`, id))
}

type txRepository struct {
	q querier
}

func (t *txRepository) LockProducts(ctx context.Context, ids []int64) (map[int64]StockLevel, error) {
	rows, err := t.q.Query(ctx, `SELECT id, company_id, name, stock, low_stock_threshold
FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("sales: lock products: %w", err)
	}
	defer rows.Close()
	levels := make(map[int64]StockLevel, len(ids))
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.ProductID, &l.CompanyID, &l.Name, &l.Stock, &l.LowStockThreshold); err != nil {
			return nil, fmt.Errorf("sales: scan product: %w", err)
		}
		levels[l.ProductID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sales: lock products: %w", err)
	}
	return levels, nil
}

func (t *txRepository) SetStock(ctx context.Context, productID int64, stock int) error {
	_, err := t.q.Exec(ctx, `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, productID, stock)
	if err != nil {
		return fmt.Errorf("sales: set stock: %w", err)
	}
	return nil
}

func (t *txRepository) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE invoice_number = $1)
OR EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sales: check invoice number: %w", err)
	}
	return exists, nil
}

func (t *txRepository) InsertSale(ctx context.Context, sale *Sale) error {
	err := t.q.QueryRow(ctx, `INSERT INTO sales (uid, invoice_number, date, total_amount, payment_method,
company_id, point_of_sale_id, user_id, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		sale.UID, sale.InvoiceNumber, sale.Date, sale.TotalAmount, string(sale.PaymentMethod),
		sale.CompanyID, sale.PointOfSaleID, sale.UserID, sale.Notes,
	).Scan(&sale.ID)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return &DuplicateSaleError{InvoiceNumber: sale.InvoiceNumber}
		}
		return fmt.Errorf("sales: insert sale: %w", err)
	}
	return nil
}

func (t *txRepository) InsertItem(ctx context.Context, item *SaleItem) error {
	err := t.q.QueryRow(ctx, `INSERT INTO sale_items (uid, sale_id, product_id, variant_id, quantity,
unit_price, discount, total_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		item.UID, item.SaleID, item.ProductID, item.VariantID, item.Quantity,
		item.UnitPrice, item.Discount, item.TotalPrice,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("sales: insert item: %w", err)
	}
	return nil
}

func (t *txRepository) LockSale(ctx context.Context, id int64) (Sale, error) {
	return scanSale(t.q.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) ItemSaleID(ctx context.Context, itemID int64) (int64, error) {
	var saleID int64
	err := t.q.QueryRow(ctx, `SELECT sale_id FROM sale_items WHERE id = $1`, itemID).Scan(&saleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSaleItemNotFound
		}
		return 0, fmt.Errorf("sales: resolve item: %w", err)
	}
	return saleID, nil
}

func (t *txRepository) LockItem(ctx context.Context, itemID int64) (SaleItem, error) {
	return scanItem(t.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE id = $1 FOR UPDATE`, itemID))
}

func (t *txRepository) ListItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	return listItems(ctx, t.q, saleID)
}

func (t *txRepository) UpdateItem(ctx context.Context, item SaleItem) error {
	_, err := t.q.Exec(ctx, `UPDATE sale_items SET quantity = $2, discount = $3, total_price = $4
WHERE id = $1`, item.ID, item.Quantity, item.Discount, item.TotalPrice)
	if err != nil {
		return fmt.Errorf("sales: update item: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM sale_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("sales: delete item: %w", err)
	}
	return nil
}

func (t *txRepository) SetSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `UPDATE sales SET total_amount = $2, updated_at = NOW() WHERE id = $1`, saleID, total)
	if err != nil {
		return fmt.Errorf("sales: set total: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateSaleHeader(ctx context.Context, sale Sale) error {
	_, err := t.q.Exec(ctx, `UPDATE sales SET payment_method = $2, point_of_sale_id = $3, notes = $4, updated_at = NOW()
WHERE id = $1`, sale.ID, string(sale.PaymentMethod), sale.PointOfSaleID, sale.Notes)
	if err != nil {
		return fmt.Errorf("sales: update header: %w", err)
	}
	return nil
}

func (t *txRepository) MarkCancelled(ctx context.Context, saleID int64, actorID *int64, at time.Time) error {
	_, err := t.q.Exec(ctx, `UPDATE sales SET is_cancelled = TRUE, cancelled_at = $2, cancelled_by = $3, updated_at = NOW()
WHERE id = $1`, saleID, at, actorID)
	if err != nil {
		return fmt.Errorf("sales: cancel sale: %w", err)
	}
	return nil
}

func listItems(ctx context.Context, q querier, saleID int64) ([]SaleItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sales: list items: %w", err)
	}
	defer rows.Close()
	items := []SaleItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sales: list items: %w", err)
	}
	return items, nil
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s      Sale
		method string
	)
	err := row.Scan(&s.ID, &s.UID, &s.InvoiceNumber, &s.Date, &s.TotalAmount, &method, &s.CompanyID,
		&s.PointOfSaleID, &s.UserID, &s.IsCancelled, &s.CancelledAt, &s.CancelledBy, &s.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, fmt.Errorf("sales: scan sale: %w", err)
	}
	s.PaymentMethod = PaymentMethod(method)
	return s, nil
}

func scanItem(row pgx.Row) (SaleItem, error) {
	var i SaleItem
	err := row.Scan(&i.ID, &i.UID, &i.SaleID, &i.ProductID, &i.VariantID, &i.Quantity, &i.UnitPrice, &i.Discount, &i.TotalPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SaleItem{}, ErrSaleItemNotFound
		}
		return SaleItem{}, fmt.Errorf("sales: scan item: %w", err)
	}
	return i, nil
}
