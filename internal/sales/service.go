package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/stockplus/stockplus/internal/catalog"
	"github.com/stockplus/stockplus/internal/events"
	"github.com/stockplus/stockplus/internal/invoices"
	"github.com/stockplus/stockplus/internal/notify"
	"github.com/stockplus/stockplus/internal/numbering"
	"github.com/stockplus/stockplus/internal/shared"
)

const idempotencyModule = "sales.checkout"

// ============================================================================
// PORTS
// ============================================================================

// LedgerPort is the transactional sale store.
type LedgerPort interface {
	Create(ctx context.Context, draft Draft) (*Sale, []StockLevel, error)
	AddItem(ctx context.Context, saleID int64, item SaleItem) (*SaleItem, []StockLevel, error)
	UpdateItem(ctx context.Context, itemID int64, patch ItemPatch) (*SaleItem, []StockLevel, error)
	UpdateHeader(ctx context.Context, saleID int64, patch HeaderPatch) (*Sale, error)
	DeleteItem(ctx context.Context, itemID int64) error
	Cancel(ctx context.Context, saleID, actorID int64) (*Sale, error)
	Get(ctx context.Context, id int64) (*Sale, error)
	GetByInvoiceNumber(ctx context.Context, number string) (*Sale, error)
	ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]Sale, error)
	ListByPointOfSale(ctx context.Context, companyID, posID int64, limit, offset int) ([]Sale, error)
	GetItem(ctx context.Context, id int64) (*SaleItem, error)
}

// InvoicePort creates invoices for committed sales.
type InvoicePort interface {
	Create(ctx context.Context, input invoices.CreateInput) (*invoices.Invoice, error)
}

// IdempotencyPort guards checkout replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier dispatches best-effort notifications.
type Notifier interface {
	SaleCreated(ctx context.Context, p notify.SaleCreated) error
	SaleCancelled(ctx context.Context, p notify.SaleCancelled) error
	LowStock(ctx context.Context, p notify.LowStock) error
}

// CatalogCache drops cached catalog entries whose stock a committed sale changed.
type CatalogCache interface {
	Invalidate(ctx context.Context, productID int64) error
}

// ============================================================================
// SERVICE
// ============================================================================

// Deps groups the collaborators of Service. Only Ledger and Catalog are required.
type Deps struct {
	Ledger      LedgerPort
	Catalog     catalog.Reader
	Cache       CatalogCache
	Invoices    InvoicePort
	Idempotency IdempotencyPort
	Audit       AuditPort
	Notifier    Notifier
	Events      events.Publisher
	Metrics     *Metrics
	Logger      *slog.Logger
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// CheckoutAttempts bounds whole-checkout retries after an invoice number collision.
	CheckoutAttempts int
	// PriceLookups bounds concurrent catalog reads per checkout.
	PriceLookups int
}

// Service orchestrates checkout and sale maintenance on top of the Ledger.
type Service struct {
	ledger      LedgerPort
	catalog     catalog.Reader
	cache       CatalogCache
	invoices    InvoicePort
	idempotency IdempotencyPort
	audit       AuditPort
	notifier    Notifier
	publisher   events.Publisher
	metrics     *Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	attempts    int
	lookups     int
	now         func() time.Time
}

// NewService builds Service.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	attempts := cfg.CheckoutAttempts
	if attempts <= 0 {
		attempts = 2
	}
	lookups := cfg.PriceLookups
	if lookups <= 0 {
		lookups = 4
	}
	return &Service{
		ledger:      deps.Ledger,
		catalog:     deps.Catalog,
		cache:       deps.Cache,
		invoices:    deps.Invoices,
		idempotency: deps.Idempotency,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		publisher:   publisher,
		metrics:     deps.Metrics,
		logger:      logger,
		validate:    shared.NewValidator(),
		attempts:    attempts,
		lookups:     lookups,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// CHECKOUT
// ============================================================================

// CheckoutItem is one requested line. The unit price comes from the catalog.
type CheckoutItem struct {
	ProductID int64  `validate:"required,gt=0"`
	VariantID *int64 `validate:"omitempty,gt=0"`
	Quantity  int    `validate:"required,gt=0,max=1000000"`
	Discount  decimal.Decimal
}

// CheckoutRequest is a point-of-sale checkout.
type CheckoutRequest struct {
	CompanyID      int64          `validate:"required,gt=0"`
	PointOfSaleID  *int64         `validate:"omitempty,gt=0"`
	UserID         *int64         `validate:"omitempty,gt=0"`
	PaymentMethod  PaymentMethod  `validate:"omitempty,oneof=cash card transfer check mobile other"`
	Notes          string         `validate:"max=2000"`
	Items          []CheckoutItem `validate:"required,min=1,max=500,dive"`
	IdempotencyKey string         `validate:"max=128"`
	ActorID        int64

	GenerateInvoice bool
	Customer        invoices.Customer
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	DueDate         *time.Time
}

// CheckoutResult carries the committed sale and, when requested, its invoice.
// InvoicePending is set when the sale committed but the invoice could not be created.
type CheckoutResult struct {
	Sale           *Sale             `json:"sale"`
	Invoice        *invoices.Invoice `json:"invoice,omitempty"`
	InvoicePending bool              `json:"invoice_pending,omitempty"`
}

// Checkout prices the request, records the sale with its stock decrements and
// optionally issues the invoice. Side effects after the commit never fail the call.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(req); err != nil {
		s.metrics.checkout("invalid", 0)
		return nil, invalidSale(shared.ValidationMessage(err))
	}

	guarded := req.IdempotencyKey != "" && s.idempotency != nil
	if guarded {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyModule); err != nil {
			s.metrics.checkout("replayed", 0)
			return nil, err
		}
	}

	result, err := s.checkout(ctx, req)
	if err != nil {
		if guarded {
			if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), req.IdempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key failed", slog.String("key", req.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		s.metrics.checkout(checkoutOutcome(err), 0)
		return nil, err
	}
	s.metrics.checkout("success", result.Sale.ItemCount())
	return result, nil
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	items, err := s.priceItems(ctx, req.CompanyID, req.Items)
	if err != nil {
		return nil, err
	}
	draft := Draft{
		CompanyID:     req.CompanyID,
		PointOfSaleID: req.PointOfSaleID,
		UserID:        req.UserID,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Items:         items,
	}

	var (
		sale   *Sale
		levels []StockLevel
	)
	for attempt := 1; ; attempt++ {
		sale, levels, err = s.ledger.Create(ctx, draft)
		if err == nil {
			break
		}
		if attempt >= s.attempts || !numberCollision(err) {
			return nil, err
		}
		s.logger.Warn("checkout retrying after invoice number collision",
			slog.Int64("company_id", req.CompanyID), slog.Int("attempt", attempt), slog.Any("error", err))
	}

	result := &CheckoutResult{Sale: sale}
	if req.GenerateInvoice {
		inv, err := s.issue(ctx, sale, IssueInvoiceRequest{
			Customer:       req.Customer,
			TaxAmount:      req.TaxAmount,
			DiscountAmount: req.DiscountAmount,
			DueDate:        req.DueDate,
			ActorID:        req.ActorID,
		})
		if err != nil {
			s.logger.Error("invoice creation failed after checkout",
				slog.Int64("sale_id", sale.ID), slog.String("invoice_number", sale.InvoiceNumber), slog.Any("error", err))
			s.metrics.sideEffectFailed("invoice")
			result.InvoicePending = true
		} else {
			result.Invoice = inv
		}
	}

	s.afterCheckout(ctx, req.ActorID, sale, levels)
	return result, nil
}

// priceItems resolves every line's unit price from the catalog, reading each
// product once with bounded concurrency.
func (s *Service) priceItems(ctx context.Context, companyID int64, lines []CheckoutItem) ([]SaleItem, error) {
	var (
		mu       sync.Mutex
		products = make(map[int64]catalog.Product, len(lines))
	)
	seen := make(map[int64]struct{}, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookups)
	for _, line := range lines {
		if _, dup := seen[line.ProductID]; dup {
			continue
		}
		seen[line.ProductID] = struct{}{}
		id := line.ProductID
		g.Go(func() error {
			product, err := s.catalog.GetProduct(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			products[id] = product
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]SaleItem, 0, len(lines))
	for _, line := range lines {
		item, err := priceLine(products[line.ProductID], companyID, line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func priceLine(product catalog.Product, companyID int64, line CheckoutItem) (SaleItem, error) {
	if product.CompanyID != companyID {
		return SaleItem{}, fmt.Errorf("%w: product %d", catalog.ErrProductNotFound, line.ProductID)
	}
	price, err := product.PriceFor(line.VariantID)
	switch {
	case errors.Is(err, catalog.ErrVariantNotFound):
		return SaleItem{}, fmt.Errorf("%w: variant %d of product %d", catalog.ErrVariantNotFound, *line.VariantID, line.ProductID)
	case errors.Is(err, catalog.ErrPriceUnavailable):
		return SaleItem{}, &PriceUnavailableError{ProductID: line.ProductID, VariantID: line.VariantID}
	case err != nil:
		return SaleItem{}, err
	}
	return SaleItem{
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		Quantity:  line.Quantity,
		UnitPrice: price,
		Discount:  line.Discount,
	}, nil
}

func numberCollision(err error) bool {
	var dup *DuplicateSaleError
	return errors.Is(err, numbering.ErrGenerationExhausted) || errors.As(err, &dup)
}

// ============================================================================
// INVOICES
// ============================================================================

// IssueInvoiceRequest carries the billing details of an invoice issued for a sale.
type IssueInvoiceRequest struct {
	Customer       invoices.Customer
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	DueDate        *time.Time
	Notes          string
	ActorID        int64
}

// IssueInvoice creates the invoice of an existing sale, typically one whose
// checkout reported InvoicePending.
func (s *Service) IssueInvoice(ctx context.Context, saleID int64, req IssueInvoiceRequest) (*invoices.Invoice, error) {
	sale, err := s.ledger.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.IsCancelled {
		return nil, ErrSaleAlreadyCancelled
	}
	return s.issue(ctx, sale, req)
}

func (s *Service) issue(ctx context.Context, sale *Sale, req IssueInvoiceRequest) (*invoices.Invoice, error) {
	if s.invoices == nil {
		return nil, errors.New("sales: invoicing not configured")
	}
	return s.invoices.Create(ctx, invoices.CreateInput{
		SaleID:         sale.ID,
		CompanyID:      sale.CompanyID,
		InvoiceNumber:  sale.InvoiceNumber,
		Date:           sale.Date,
		TotalAmount:    sale.TotalAmount,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
		DueDate:        req.DueDate,
		Customer:       req.Customer,
		Notes:          req.Notes,
		ActorID:        req.ActorID,
	})
}

// ============================================================================
// SALE MAINTENANCE
// ============================================================================

// AddItemRequest appends a catalog-priced line to an open sale.
type AddItemRequest struct {
	ProductID int64  `validate:"required,gt=0"`
	VariantID *int64 `validate:"omitempty,gt=0"`
	Quantity  int    `validate:"required,gt=0,max=1000000"`
	Discount  decimal.Decimal
	ActorID   int64
}

// AddItem prices and appends a line to an open sale.
func (s *Service) AddItem(ctx context.Context, saleID int64, req AddItemRequest) (*SaleItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidItem(shared.ValidationMessage(err))
	}
	sale, err := s.openSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	item, err := priceLine(product, sale.CompanyID, CheckoutItem{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Discount:  req.Discount,
	})
	if err != nil {
		return nil, err
	}
	added, levels, err := s.ledger.AddItem(ctx, saleID, item)
	if err != nil {
		return nil, err
	}
	s.metrics.itemChanged("add")
	s.afterItemChange(ctx, req.ActorID, sale, "sale.item_add", events.SaleItemAdded, added, levels)
	return added, nil
}

// UpdateItem changes quantity or discount of an item of an open sale. The captured
// unit price is kept.
func (s *Service) UpdateItem(ctx context.Context, itemID int64, patch ItemPatch, actorID int64) (*SaleItem, error) {
	if patch.Empty() {
		return nil, invalidItem("nothing to update")
	}
	current, err := s.ledger.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	sale, err := s.openSale(ctx, current.SaleID)
	if err != nil {
		return nil, err
	}
	updated, levels, err := s.ledger.UpdateItem(ctx, itemID, patch)
	if err != nil {
		return nil, err
	}
	s.metrics.itemChanged("update")
	s.afterItemChange(ctx, actorID, sale, "sale.item_update", events.SaleItemUpdated, updated, levels)
	return updated, nil
}

// UpdateSale changes the header fields of an open sale.
func (s *Service) UpdateSale(ctx context.Context, saleID int64, patch HeaderPatch, actorID int64) (*Sale, error) {
	if patch.Empty() {
		return nil, invalidSale("nothing to update")
	}
	if patch.Notes != nil && len(*patch.Notes) > 2000 {
		return nil, invalidSale("notes must be at most 2000 characters")
	}
	sale, err := s.ledger.UpdateHeader(ctx, saleID, patch)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	meta := map[string]any{"invoice_number": sale.InvoiceNumber}
	if patch.PaymentMethod != nil {
		meta["payment_method"] = string(sale.PaymentMethod)
	}
	if patch.PointOfSaleID != nil {
		meta["point_of_sale_id"] = *sale.PointOfSaleID
	}
	if patch.Notes != nil {
		meta["notes"] = sale.Notes
	}
	s.record(ctx, actorID, "sale.update", sale.ID, meta)
	s.publish(ctx, events.New(events.SaleUpdated, sale.CompanyID, sale.ID, sale))
	return sale, nil
}

// RemoveItem deletes an item of an open sale and restores its stock.
func (s *Service) RemoveItem(ctx context.Context, itemID, actorID int64) error {
	current, err := s.ledger.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	sale, err := s.openSale(ctx, current.SaleID)
	if err != nil {
		return err
	}
	if err := s.ledger.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.metrics.itemChanged("remove")
	s.invalidate(context.WithoutCancel(ctx), current.ProductID)
	s.afterItemChange(ctx, actorID, sale, "sale.item_remove", events.SaleItemRemoved, current, nil)
	return nil
}

// Cancel reverses a sale's stock effects and marks it cancelled.
func (s *Service) Cancel(ctx context.Context, saleID, actorID int64) (*Sale, error) {
	sale, err := s.ledger.Cancel(ctx, saleID, actorID)
	if err != nil {
		return nil, err
	}
	s.metrics.cancelled()

	ctx = context.WithoutCancel(ctx)
	for _, item := range sale.Items {
		s.invalidate(ctx, item.ProductID)
	}
	s.record(ctx, actorID, "sale.cancel", sale.ID, map[string]any{
		"invoice_number": sale.InvoiceNumber,
		"total_amount":   sale.TotalAmount.StringFixed(2),
		"items":          len(sale.Items),
	})
	if s.notifier != nil {
		s.sideEffect("notify", s.notifier.SaleCancelled(ctx, notify.SaleCancelled{
			SaleID:        sale.ID,
			CompanyID:     sale.CompanyID,
			InvoiceNumber: sale.InvoiceNumber,
			TotalAmount:   sale.TotalAmount,
			ActorID:       actorID,
			OccurredAt:    s.now(),
		}))
	}
	s.publish(ctx, events.New(events.SaleCancelled, sale.CompanyID, sale.ID, sale))
	return sale, nil
}

func (s *Service) openSale(ctx context.Context, saleID int64) (*Sale, error) {
	sale, err := s.ledger.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.IsCancelled {
		return nil, ErrSaleAlreadyCancelled
	}
	return sale, nil
}

// ============================================================================
// READS
// ============================================================================

// GetSale returns a sale with its items.
func (s *Service) GetSale(ctx context.Context, id int64) (*Sale, error) {
	return s.ledger.Get(ctx, id)
}

// GetSaleByInvoiceNumber returns the sale carrying number.
func (s *Service) GetSaleByInvoiceNumber(ctx context.Context, number string) (*Sale, error) {
	if number == "" {
		return nil, invalidSale("invoice number required")
	}
	return s.ledger.GetByInvoiceNumber(ctx, number)
}

// ListCompanySales pages through a company's sales.
func (s *Service) ListCompanySales(ctx context.Context, companyID int64, page, perPage int) ([]Sale, error) {
	if companyID <= 0 {
		return nil, invalidSale("company id required")
	}
	limit, offset := shared.PageWindow(page, perPage)
	return s.ledger.ListByCompany(ctx, companyID, limit, offset)
}

// ListPointOfSaleSales pages through the sales of one point of sale.
func (s *Service) ListPointOfSaleSales(ctx context.Context, companyID, posID int64, page, perPage int) ([]Sale, error) {
	if companyID <= 0 || posID <= 0 {
		return nil, invalidSale("company id and point of sale id required")
	}
	limit, offset := shared.PageWindow(page, perPage)
	return s.ledger.ListByPointOfSale(ctx, companyID, posID, limit, offset)
}

// ============================================================================
// POST-COMMIT EFFECTS
// ============================================================================

func (s *Service) afterCheckout(ctx context.Context, actorID int64, sale *Sale, levels []StockLevel) {
	ctx = context.WithoutCancel(ctx)
	s.record(ctx, actorID, "sale.create", sale.ID, map[string]any{
		"invoice_number": sale.InvoiceNumber,
		"total_amount":   sale.TotalAmount.StringFixed(2),
		"items":          len(sale.Items),
	})
	if s.notifier != nil {
		s.sideEffect("notify", s.notifier.SaleCreated(ctx, notify.SaleCreated{
			SaleID:        sale.ID,
			CompanyID:     sale.CompanyID,
			PointOfSaleID: sale.PointOfSaleID,
			InvoiceNumber: sale.InvoiceNumber,
			TotalAmount:   sale.TotalAmount,
			ItemCount:     sale.ItemCount(),
			ActorID:       actorID,
			OccurredAt:    s.now(),
		}))
	}
	for _, level := range levels {
		s.invalidate(ctx, level.ProductID)
	}
	s.warnLowStock(ctx, sale.ID, levels)
	s.publish(ctx, events.New(events.SaleCreated, sale.CompanyID, sale.ID, sale))
}

func (s *Service) afterItemChange(ctx context.Context, actorID int64, sale *Sale, action, kind string, item *SaleItem, levels []StockLevel) {
	ctx = context.WithoutCancel(ctx)
	s.record(ctx, actorID, action, sale.ID, map[string]any{
		"item_id":     item.ID,
		"product_id":  item.ProductID,
		"quantity":    item.Quantity,
		"total_price": item.TotalPrice.StringFixed(2),
	})
	for _, level := range levels {
		s.invalidate(ctx, level.ProductID)
	}
	s.warnLowStock(ctx, sale.ID, levels)
	s.publish(ctx, events.New(kind, sale.CompanyID, sale.ID, item))
}

func (s *Service) warnLowStock(ctx context.Context, saleID int64, levels []StockLevel) {
	low := 0
	for _, level := range levels {
		if !catalog.IsLowStock(level.Stock, level.LowStockThreshold) {
			continue
		}
		low++
		if s.notifier == nil {
			continue
		}
		s.sideEffect("notify", s.notifier.LowStock(ctx, notify.LowStock{
			CompanyID:   level.CompanyID,
			ProductID:   level.ProductID,
			ProductName: level.Name,
			Stock:       level.Stock,
			Threshold:   level.LowStockThreshold,
			SaleID:      saleID,
			OccurredAt:  s.now(),
		}))
	}
	s.metrics.lowStockDetected(low)
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	s.sideEffect("cache", s.cache.Invalidate(ctx, productID))
}

func (s *Service) record(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     meta,
	})
	s.sideEffect("audit", err)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	s.sideEffect("event", s.publisher.Publish(ctx, event))
}

func (s *Service) sideEffect(kind string, err error) {
	if err == nil {
		return
	}
	s.metrics.sideEffectFailed(kind)
	s.logger.Warn("post-commit side effect failed", slog.String("kind", kind), slog.Any("error", err))
}
