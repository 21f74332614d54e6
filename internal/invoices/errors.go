package invoices

import (
	"errors"
	"fmt"
)

var (
	// ErrInvoiceNotFound is returned when a lookup matches nothing.
	ErrInvoiceNotFound = errors.New("invoices: invoice not found")
	// ErrInvoiceAlreadyPaid is returned by MarkAsPaid on a paid invoice; the payment date is kept.
	ErrInvoiceAlreadyPaid = errors.New("invoices: invoice already paid")
	// ErrDuplicateInvoice is returned when the sale or invoice number already has an invoice.
	ErrDuplicateInvoice = errors.New("invoices: invoice already exists")
	// ErrInvalidInvoice wraps validation failures.
	ErrInvalidInvoice = errors.New("invoices: invalid invoice")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInvoice, fmt.Sprintf(format, args...))
}
