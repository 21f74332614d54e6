package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a product id does not resolve inside the catalog.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrVariantNotFound is returned when a variant id does not belong to the product.
	ErrVariantNotFound = errors.New("catalog: variant not found")
	// ErrPriceUnavailable is returned when the resolved price is missing or not positive.
	ErrPriceUnavailable = errors.New("catalog: price unavailable")
)

// Product is the catalog view consumed by the sales core. Stock is read here for
// display only; the sale ledger re-reads it under a row lock.
type Product struct {
	ID                int64               `json:"id"`
	CompanyID         int64               `json:"company_id"`
	Name              string              `json:"name"`
	SKU               string              `json:"sku"`
	Price             decimal.NullDecimal `json:"price"`
	Stock             int                 `json:"stock"`
	LowStockThreshold int                 `json:"low_stock_threshold"`
	Variants          []Variant           `json:"variants"`
}

// Variant is a sellable variation of a product with its own optional price.
type Variant struct {
	ID    int64               `json:"id"`
	Name  string              `json:"name"`
	Price decimal.NullDecimal `json:"price"`
}

// PriceFor resolves the unit price for a sale line. A requested variant must belong
// to the product and its own price is authoritative; without a variant the product
// price applies. A missing or non-positive price yields ErrPriceUnavailable.
func (p Product) PriceFor(variantID *int64) (decimal.Decimal, error) {
	price := p.Price
	if variantID != nil {
		v, ok := p.Variant(*variantID)
		if !ok {
			return decimal.Zero, ErrVariantNotFound
		}
		price = v.Price
	}
	if !price.Valid || !price.Decimal.IsPositive() {
		return decimal.Zero, ErrPriceUnavailable
	}
	return price.Decimal, nil
}

// Variant returns the product's variant with the given id.
func (p Product) Variant(id int64) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// IsLowStock reports whether the remaining stock reached the warning threshold.
func IsLowStock(stock, threshold int) bool {
	return threshold > 0 && stock <= threshold
}
