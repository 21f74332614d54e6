package invoices

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stockplus/stockplus/internal/events"
	"github.com/stockplus/stockplus/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages invoices.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	publisher events.Publisher
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. audit and publisher may be nil.
func NewService(repo RepositoryPort, audit AuditPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		publisher: publisher,
		validate:  shared.NewValidator(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create materialises the invoice for a committed sale.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Invoice, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalid("%s", shared.ValidationMessage(err))
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	if input.TotalAmount.IsNegative() {
		return nil, invalid("total amount must not be negative")
	}
	inv := Invoice{
		UID:            uuid.New(),
		InvoiceNumber:  input.InvoiceNumber,
		SaleID:         input.SaleID,
		CompanyID:      input.CompanyID,
		Date:           input.Date,
		DueDate:        input.DueDate,
		TotalAmount:    input.TotalAmount,
		TaxAmount:      input.TaxAmount,
		DiscountAmount: input.DiscountAmount,
		Customer:       input.Customer,
		Notes:          input.Notes,
	}
	if err := checkAmounts(inv); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, &inv); err != nil {
		return nil, err
	}
	s.after(ctx, input.ActorID, "invoice.create", inv, events.InvoiceCreated)
	return &inv, nil
}

// Update applies administrative edits.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (*Invoice, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, invalid("%s", shared.ValidationMessage(err))
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.DueDate != nil {
		due := *input.DueDate
		inv.DueDate = &due
	}
	if input.TaxAmount != nil {
		inv.TaxAmount = *input.TaxAmount
	}
	if input.DiscountAmount != nil {
		inv.DiscountAmount = *input.DiscountAmount
	}
	if input.Notes != nil {
		inv.Notes = *input.Notes
	}
	applyCustomer(&inv.Customer, input.Customer)
	if err := checkAmounts(inv); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.after(ctx, input.ActorID, "invoice.update", inv, events.InvoiceUpdated)
	return &inv, nil
}

// MarkAsPaid records the payment. Paying twice fails with ErrInvoiceAlreadyPaid.
func (s *Service) MarkAsPaid(ctx context.Context, id, actorID int64) (*Invoice, error) {
	inv, err := s.repo.MarkPaid(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.after(ctx, actorID, "invoice.pay", inv, events.InvoicePaid)
	return &inv, nil
}

// Get returns an invoice by id.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetByNumber returns an invoice by number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetBySale returns the invoice of a sale.
func (s *Service) GetBySale(ctx context.Context, saleID int64) (*Invoice, error) {
	inv, err := s.repo.GetBySale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListByCompany pages through a company's invoices.
func (s *Service) ListByCompany(ctx context.Context, companyID int64, page, perPage int) ([]Invoice, error) {
	if companyID <= 0 {
		return nil, invalid("company_id required")
	}
	limit, offset := shared.PageWindow(page, perPage)
	return s.repo.ListByCompany(ctx, companyID, limit, offset)
}

func (s *Service) after(ctx context.Context, actorID int64, action string, inv Invoice, kind string) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta: map[string]any{
				"invoice_number": inv.InvoiceNumber,
				"sale_id":        inv.SaleID,
				"grand_total":    inv.GrandTotal().StringFixed(2),
				"is_paid":        inv.IsPaid,
			},
		})
		if err != nil {
			s.logger.Warn("invoice audit failed", slog.String("action", action), slog.Any("error", err))
		}
	}
	if err := s.publisher.Publish(ctx, events.New(kind, inv.CompanyID, inv.SaleID, inv)); err != nil {
		s.logger.Warn("invoice event publish failed", slog.String("type", kind), slog.Any("error", err))
	}
}

func checkAmounts(inv Invoice) error {
	if inv.TaxAmount.IsNegative() {
		return invalid("tax amount must not be negative")
	}
	if inv.DiscountAmount.IsNegative() {
		return invalid("discount amount must not be negative")
	}
	if inv.DiscountAmount.GreaterThan(inv.TotalAmount) {
		return invalid("discount amount exceeds the sale total")
	}
	if inv.DueDate != nil && dayOf(*inv.DueDate).Before(dayOf(inv.Date)) {
		return invalid("due date must not precede the invoice date")
	}
	return nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func applyCustomer(c *Customer, patch CustomerPatch) {
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Email != nil {
		c.Email = *patch.Email
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
	if patch.Address != nil {
		c.Address = *patch.Address
	}
}
