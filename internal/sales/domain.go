package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// PAYMENT METHOD
// ============================================================================

// PaymentMethod is how the customer settled a sale.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCheck    PaymentMethod = "check"
	PaymentMobile   PaymentMethod = "mobile"
	PaymentOther    PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCheck, PaymentMobile, PaymentOther:
		return true
	}
	return false
}

// ============================================================================
// SALE AGGREGATE
// ============================================================================

// Sale is a point-of-sale transaction. While not cancelled, TotalAmount equals the
// sum of its items' TotalPrice.
type Sale struct {
	ID            int64           `json:"id"`
	UID           uuid.UUID       `json:"uid"`
	InvoiceNumber string          `json:"invoice_number"`
	Date          time.Time       `json:"date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CompanyID     int64           `json:"company_id"`
	PointOfSaleID *int64          `json:"point_of_sale_id,omitempty"`
	UserID        *int64          `json:"user_id,omitempty"`
	IsCancelled   bool            `json:"is_cancelled"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy   *int64          `json:"cancelled_by,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Items         []SaleItem      `json:"items"`
}

// ItemCount is the number of units sold.
func (s Sale) ItemCount() int {
	n := 0
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// SumItems recomputes the total from the items.
func (s Sale) SumItems() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// MaxQuantity caps a single line and the per-product sum within one sale.
const MaxQuantity = 1_000_000

// SaleItem is one line of a sale. UnitPrice is captured at sale time and never changes.
type SaleItem struct {
	ID         int64           `json:"id"`
	UID        uuid.UUID       `json:"uid"`
	SaleID     int64           `json:"sale_id"`
	ProductID  int64           `json:"product_id"`
	VariantID  *int64          `json:"variant_id,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Discount   decimal.Decimal `json:"discount"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// TotalPrice computes a line total: unit price times quantity minus discount.
func TotalPrice(unitPrice decimal.Decimal, quantity int, discount decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount).Round(2)
}

// Validate checks the line against its own bounds.
func (i SaleItem) Validate() error {
	if i.ProductID <= 0 {
		return invalidItem("product id required")
	}
	if i.Quantity <= 0 {
		return invalidItem("quantity must be greater than zero")
	}
	if i.Quantity > MaxQuantity {
		return invalidItem(fmt.Sprintf("quantity exceeds %d", MaxQuantity))
	}
	if i.UnitPrice.IsNegative() {
		return invalidItem("unit price must not be negative")
	}
	if i.Discount.IsNegative() {
		return invalidItem("discount must not be negative")
	}
	if i.Discount.GreaterThan(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))) {
		return invalidItem("discount exceeds line subtotal")
	}
	return nil
}

// withTotal returns the item with TotalPrice recomputed; caller totals are ignored.
func (i SaleItem) withTotal() SaleItem {
	i.UnitPrice = i.UnitPrice.Round(2)
	i.Discount = i.Discount.Round(2)
	i.TotalPrice = TotalPrice(i.UnitPrice, i.Quantity, i.Discount)
	return i
}

// ============================================================================
// LEDGER INPUTS
// ============================================================================

// Draft is a sale ready to be persisted by the ledger.
type Draft struct {
	CompanyID     int64
	PointOfSaleID *int64
	UserID        *int64
	PaymentMethod PaymentMethod
	Notes         string
	Date          time.Time
	Items         []SaleItem
}

// ItemPatch carries optional changes to a sale item. The unit price is not patchable.
type ItemPatch struct {
	Quantity *int
	Discount *decimal.Decimal
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Quantity == nil && p.Discount == nil
}

// HeaderPatch carries optional changes to an open sale's header fields.
type HeaderPatch struct {
	PaymentMethod *PaymentMethod
	PointOfSaleID *int64
	Notes         *string
}

// Empty reports whether the patch changes nothing.
func (p HeaderPatch) Empty() bool {
	return p.PaymentMethod == nil && p.PointOfSaleID == nil && p.Notes == nil
}

// StockLevel is a product's stock as observed under lock at the end of an operation.
type StockLevel struct {
	ProductID         int64  `json:"product_id"`
	CompanyID         int64  `json:"company_id"`
	Name              string `json:"name"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	CompanyID     int64
	PointOfSaleID *int64
	Limit         int
	Offset        int
}
