package notify

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Renderer formats notification messages for a locale.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer builds a renderer for a BCP 47 locale; unknown locales fall back to English.
func NewRenderer(locale string) *Renderer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Renderer{printer: message.NewPrinter(tag)}
}

// Amount formats money with locale grouping and two decimals.
func (r *Renderer) Amount(d decimal.Decimal) string {
	return r.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// SaleCreated renders the checkout confirmation.
func (r *Renderer) SaleCreated(p SaleCreated) string {
	return r.printer.Sprintf("Sale %s recorded: %d item(s), total %s", p.InvoiceNumber, p.ItemCount, r.Amount(p.TotalAmount))
}

// SaleCancelled renders the cancellation notice.
func (r *Renderer) SaleCancelled(p SaleCancelled) string {
	return r.printer.Sprintf("Sale %s cancelled (total %s), stock restored", p.InvoiceNumber, r.Amount(p.TotalAmount))
}

// LowStock renders the low-stock warning.
func (r *Renderer) LowStock(p LowStock) string {
	return r.printer.Sprintf("Low stock: %s has %d unit(s) left (threshold %d)", p.ProductName, p.Stock, p.Threshold)
}
