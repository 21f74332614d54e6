package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is a snapshot copied onto the invoice at creation.
type Customer struct {
	Name    string `json:"name,omitempty" validate:"max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,phone,max=32"`
	Address string `json:"address,omitempty" validate:"max=500"`
}

// Invoice is the billing record of exactly one sale. TotalAmount is fixed at creation.
type Invoice struct {
	ID             int64           `json:"id"`
	UID            uuid.UUID       `json:"uid"`
	InvoiceNumber  string          `json:"invoice_number"`
	SaleID         int64           `json:"sale_id"`
	CompanyID      int64           `json:"company_id"`
	Date           time.Time       `json:"date"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Customer       Customer        `json:"customer"`
	Notes          string          `json:"notes,omitempty"`
	IsPaid         bool            `json:"is_paid"`
	PaymentDate    *time.Time      `json:"payment_date,omitempty"`
}

// NetAmount is the total after discount.
func (i Invoice) NetAmount() decimal.Decimal {
	return i.TotalAmount.Sub(i.DiscountAmount)
}

// GrandTotal is the net amount plus tax.
func (i Invoice) GrandTotal() decimal.Decimal {
	return i.NetAmount().Add(i.TaxAmount)
}

// CreateInput materialises an invoice from a committed sale.
type CreateInput struct {
	SaleID         int64           `validate:"required,gt=0"`
	CompanyID      int64           `validate:"required,gt=0"`
	InvoiceNumber  string          `validate:"required,max=64"`
	Date           time.Time
	TotalAmount    decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	DueDate        *time.Time
	Customer       Customer
	Notes          string `validate:"max=2000"`
	ActorID        int64
}

// CustomerPatch carries optional customer snapshot changes.
type CustomerPatch struct {
	Name    *string `validate:"omitempty,max=200"`
	Email   *string `validate:"omitempty,email,max=254"`
	Phone   *string `validate:"omitempty,phone,max=32"`
	Address *string `validate:"omitempty,max=500"`
}

// UpdateInput carries administrative edits. TotalAmount is not editable.
type UpdateInput struct {
	DueDate        *time.Time
	TaxAmount      *decimal.Decimal
	DiscountAmount *decimal.Decimal
	Customer       CustomerPatch
	Notes          *string `validate:"omitempty,max=2000"`
	ActorID        int64
}
