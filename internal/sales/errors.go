package sales

import (
	"errors"
	"fmt"

	"github.com/stockplus/stockplus/internal/catalog"
)

var (
	// ErrSaleNotFound is returned when a sale id or invoice number does not resolve.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrSaleItemNotFound is returned when a sale item id does not resolve.
	ErrSaleItemNotFound = errors.New("sales: sale item not found")
	// ErrSaleAlreadyCancelled guards every mutation of a cancelled sale.
	ErrSaleAlreadyCancelled = errors.New("sales: sale already cancelled")
	// ErrInvalidItem wraps item-level validation failures.
	ErrInvalidItem = errors.New("sales: invalid sale item")
	// ErrInvalidSale wraps header-level validation failures.
	ErrInvalidSale = errors.New("sales: invalid sale")
	// ErrEmptySale rejects a checkout without lines.
	ErrEmptySale = errors.New("sales: at least one item is required")
)

// InsufficientStockError reports a line that cannot be served from current stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("sales: insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// DuplicateSaleError reports an invoice number that is already taken.
type DuplicateSaleError struct {
	InvoiceNumber string
}

func (e *DuplicateSaleError) Error() string {
	return fmt.Sprintf("sales: sale with invoice number %s already exists", e.InvoiceNumber)
}

// PriceUnavailableError reports a line whose resolved product or variant price is missing or zero.
type PriceUnavailableError struct {
	ProductID int64
	VariantID *int64
}

func (e *PriceUnavailableError) Unwrap() error { return catalog.ErrPriceUnavailable }

func (e *PriceUnavailableError) Error() string {
	if e.VariantID != nil {
		return fmt.Sprintf("sales: no price for product %d variant %d", e.ProductID, *e.VariantID)
	}
	return fmt.Sprintf("sales: no price for product %d", e.ProductID)
}

func invalidItem(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidItem, msg)
}

func invalidSale(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSale, msg)
}
