package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockplus/stockplus/internal/invoices"
)

type checkoutItemRequest struct {
	ProductID int64            `json:"product_id"`
	VariantID *int64           `json:"variant_id"`
	Quantity  int              `json:"quantity"`
	Discount  *decimal.Decimal `json:"discount"`
}

type customerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type checkoutRequest struct {
	CompanyID       int64                 `json:"company_id"`
	PointOfSaleID   *int64                `json:"point_of_sale_id"`
	UserID          *int64                `json:"user_id"`
	PaymentMethod   PaymentMethod         `json:"payment_method"`
	Notes           string                `json:"notes"`
	Items           []checkoutItemRequest `json:"items"`
	GenerateInvoice bool                  `json:"generate_invoice"`
	Customer        *customerRequest      `json:"customer"`
	TaxAmount       *decimal.Decimal      `json:"tax_amount"`
	DiscountAmount  *decimal.Decimal      `json:"discount_amount"`
	DueDate         *time.Time            `json:"due_date"`
}

func (r checkoutRequest) toDomain(idempotencyKey string, actorID int64) CheckoutRequest {
	items := make([]CheckoutItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, CheckoutItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Discount:  orZero(item.Discount),
		})
	}
	return CheckoutRequest{
		CompanyID:       r.CompanyID,
		PointOfSaleID:   r.PointOfSaleID,
		UserID:          r.UserID,
		PaymentMethod:   r.PaymentMethod,
		Notes:           r.Notes,
		Items:           items,
		IdempotencyKey:  idempotencyKey,
		ActorID:         actorID,
		GenerateInvoice: r.GenerateInvoice,
		Customer:        r.Customer.toDomain(),
		TaxAmount:       orZero(r.TaxAmount),
		DiscountAmount:  orZero(r.DiscountAmount),
		DueDate:         r.DueDate,
	}
}

func (c *customerRequest) toDomain() invoices.Customer {
	if c == nil {
		return invoices.Customer{}
	}
	return invoices.Customer{Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address}
}

type addItemRequest struct {
	ProductID int64            `json:"product_id"`
	VariantID *int64           `json:"variant_id"`
	Quantity  int              `json:"quantity"`
	Discount  *decimal.Decimal `json:"discount"`
}

type updateItemRequest struct {
	Quantity *int             `json:"quantity"`
	Discount *decimal.Decimal `json:"discount"`
}

type updateSaleRequest struct {
	PaymentMethod *PaymentMethod `json:"payment_method"`
	PointOfSaleID *int64         `json:"point_of_sale_id"`
	Notes         *string        `json:"notes"`
}

type issueInvoiceRequest struct {
	Customer       *customerRequest `json:"customer"`
	TaxAmount      *decimal.Decimal `json:"tax_amount"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	DueDate        *time.Time       `json:"due_date"`
	Notes          string           `json:"notes"`
}

type listResponse struct {
	Data    []Sale `json:"data"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
