package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockplus/stockplus/internal/platform/db"
)

const invoiceColumns = `id, uid, invoice_number, sale_id, company_id, date, due_date, total_amount, tax_amount,
discount_amount, customer_name, customer_email, customer_phone, customer_address, notes, is_paid, payment_date`

// RepositoryPort abstracts invoice persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetByNumber(ctx context.Context, number string) (Invoice, error)
	GetBySale(ctx context.Context, saleID int64) (Invoice, error)
	ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]Invoice, error)
	Update(ctx context.Context, inv Invoice) error
	MarkPaid(ctx context.Context, id int64, at time.Time) (Invoice, error)
}

// Repository stores invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists inv; unique sale_id and invoice_number are enforced by the schema.
func (r *Repository) Insert(ctx context.Context, inv *Invoice) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices (uid, invoice_number, sale_id, company_id, date, due_date,
total_amount, tax_amount, discount_amount, customer_name, customer_email, customer_phone, customer_address, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`,
		inv.UID, inv.InvoiceNumber, inv.SaleID, inv.CompanyID, inv.Date, inv.DueDate,
		inv.TotalAmount, inv.TaxAmount, inv.DiscountAmount,
		inv.Customer.Name, inv.Customer.Email, inv.Customer.Phone, inv.Customer.Address, inv.Notes,
	).Scan(&inv.ID)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrDuplicateInvoice
		}
		return fmt.Errorf("invoices: insert: %w", err)
	}
	return nil
}

// Get loads an invoice by id.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// GetByNumber loads an invoice by number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, number))
}

// GetBySale loads the invoice of a sale.
func (r *Repository) GetBySale(ctx context.Context, saleID int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE sale_id = $1`, saleID))
}

// ListByCompany lists invoices newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE company_id = $1
ORDER BY date DESC, id DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()
	out := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	return out, nil
}

// Update writes the editable columns.
func (r *Repository) Update(ctx context.Context, inv Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET due_date = $2, tax_amount = $3, discount_amount = $4,
customer_name = $5, customer_email = $6, customer_phone = $7, customer_address = $8, notes = $9, updated_at = NOW()
WHERE id = $1`,
		inv.ID, inv.DueDate, inv.TaxAmount, inv.DiscountAmount,
		inv.Customer.Name, inv.Customer.Email, inv.Customer.Phone, inv.Customer.Address, inv.Notes)
	if err != nil {
		return fmt.Errorf("invoices: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// MarkPaid flips is_paid once; a second call reports ErrInvoiceAlreadyPaid.
func (r *Repository) MarkPaid(ctx context.Context, id int64, at time.Time) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `UPDATE invoices SET is_paid = TRUE, payment_date = $2, updated_at = NOW()
WHERE id = $1 AND NOT is_paid
RETURNING `+invoiceColumns, id, at))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return Invoice{}, err
	}
	if _, err := r.Get(ctx, id); err != nil {
		return Invoice{}, err
	}
	return Invoice{}, ErrInvoiceAlreadyPaid
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.UID, &inv.InvoiceNumber, &inv.SaleID, &inv.CompanyID, &inv.Date, &inv.DueDate,
		&inv.TotalAmount, &inv.TaxAmount, &inv.DiscountAmount,
		&inv.Customer.Name, &inv.Customer.Email, &inv.Customer.Phone, &inv.Customer.Address,
		&inv.Notes, &inv.IsPaid, &inv.PaymentDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, fmt.Errorf("invoices: scan: %w", err)
	}
	return inv, nil
}
