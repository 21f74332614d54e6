package sales

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockplus/stockplus/internal/catalog"
	"github.com/stockplus/stockplus/internal/events"
	"github.com/stockplus/stockplus/internal/invoices"
	"github.com/stockplus/stockplus/internal/notify"
	"github.com/stockplus/stockplus/internal/numbering"
	"github.com/stockplus/stockplus/internal/platform/httpx"
	"github.com/stockplus/stockplus/internal/shared"
)

// ============================================================================
// FAKES
// ============================================================================

type stubCatalog struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
	reads    int
}

func (c *stubCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

type stubInvoices struct {
	mu      sync.Mutex
	err     error
	created []invoices.CreateInput
}

func (s *stubInvoices) Create(_ context.Context, input invoices.CreateInput) (*invoices.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, prev := range s.created {
		if prev.SaleID == input.SaleID {
			return nil, invoices.ErrDuplicateInvoice
		}
	}
	s.created = append(s.created, input)
	return &invoices.Invoice{
		ID:            int64(len(s.created)),
		SaleID:        input.SaleID,
		CompanyID:     input.CompanyID,
		InvoiceNumber: input.InvoiceNumber,
		TotalAmount:   input.TotalAmount,
		TaxAmount:     input.TaxAmount,
		Customer:      input.Customer,
	}, nil
}

type stubIdempotency struct {
	mu      sync.Mutex
	keys    map[string]bool
	deleted []string
}

func (s *stubIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]bool{}
	}
	if s.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[module+":"+key] = true
	return nil
}

func (s *stubIdempotency) Delete(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, module+":"+key)
	s.deleted = append(s.deleted, key)
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	err       error
	created   []notify.SaleCreated
	cancelled []notify.SaleCancelled
	lowStock  []notify.LowStock
}

func (n *recordingNotifier) SaleCreated(_ context.Context, p notify.SaleCreated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, p)
	return n.err
}

func (n *recordingNotifier) SaleCancelled(_ context.Context, p notify.SaleCancelled) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, p)
	return n.err
}

func (n *recordingNotifier) LowStock(_ context.Context, p notify.LowStock) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowStock = append(n.lowStock, p)
	return n.err
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, e.Type)
	return nil
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []int64
}

func (c *recordingCache) Invalidate(_ context.Context, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, productID)
	return nil
}

// collidingLedger fails the first n creates with an invoice number collision.
type collidingLedger struct {
	*Ledger
	mu    sync.Mutex
	fails int
	err   error
	calls int
}

func (c *collidingLedger) Create(ctx context.Context, draft Draft) (*Sale, []StockLevel, error) {
	c.mu.Lock()
	c.calls++
	if c.fails > 0 {
		c.fails--
		c.mu.Unlock()
		return nil, nil, c.err
	}
	c.mu.Unlock()
	return c.Ledger.Create(ctx, draft)
}

type serviceFixture struct {
	svc       *Service
	store     *memStore
	catalog   *stubCatalog
	invoices  *stubInvoices
	idem      *stubIdempotency
	notifier  *recordingNotifier
	audit     *recordingAudit
	publisher *recordingPublisher
	cache     *recordingCache
	registry  *prometheus.Registry
}

func priced(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(money(v))
}

func newServiceFixture(t *testing.T, ledger func(*memStore) LedgerPort) *serviceFixture {
	t.Helper()
	store := newMemStore()
	store.addProduct(10, companyID, 10, 0)
	store.addProduct(20, companyID, 5, 3)
	store.addProduct(30, companyID, 10, 0)
	store.addProduct(40, 2, 10, 0)

	f := &serviceFixture{
		store: store,
		catalog: &stubCatalog{products: map[int64]catalog.Product{
			10: {ID: 10, CompanyID: companyID, Name: "Coffee", Price: priced("10.00"), Variants: []catalog.Variant{
				{ID: 100, Name: "Large", Price: priced("12.00")},
				{ID: 101, Name: "Unpriced"},
				{ID: 102, Name: "Free", Price: priced("0")},
			}},
			20: {ID: 20, CompanyID: companyID, Name: "Tea", Price: priced("4.50")},
			30: {ID: 30, CompanyID: companyID, Name: "Sample"},
			40: {ID: 40, CompanyID: 2, Name: "Elsewhere", Price: priced("1.00")},
		}},
		invoices:  &stubInvoices{},
		idem:      &stubIdempotency{},
		notifier:  &recordingNotifier{},
		audit:     &recordingAudit{},
		publisher: &recordingPublisher{},
		cache:     &recordingCache{},
		registry:  prometheus.NewRegistry(),
	}
	var port LedgerPort = newTestLedger(store)
	if ledger != nil {
		port = ledger(store)
	}
	f.svc = NewService(Deps{
		Ledger:      port,
		Catalog:     f.catalog,
		Cache:       f.cache,
		Invoices:    f.invoices,
		Idempotency: f.idem,
		Audit:       f.audit,
		Notifier:    f.notifier,
		Events:      f.publisher,
		Metrics:     NewMetrics(f.registry),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, ServiceConfig{CheckoutAttempts: 2, PriceLookups: 2})
	return f
}

func checkoutOf(items ...CheckoutItem) CheckoutRequest {
	return CheckoutRequest{CompanyID: companyID, PaymentMethod: PaymentCard, Items: items, ActorID: 7}
}

func lineOf(productID int64, qty int) CheckoutItem {
	return CheckoutItem{ProductID: productID, Quantity: qty}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// ============================================================================
// CHECKOUT
// ============================================================================

func TestCheckoutResolvesPricesFromCatalog(t *testing.T) {
	f := newServiceFixture(t, nil)
	large := int64(100)
	req := checkoutOf(
		lineOf(10, 2),
		CheckoutItem{ProductID: 10, VariantID: &large, Quantity: 1, Discount: money("1.00")},
	)

	result, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	sale := result.Sale
	require.Len(t, sale.Items, 2)
	require.True(t, money("10.00").Equal(sale.Items[0].UnitPrice))
	require.True(t, money("12.00").Equal(sale.Items[1].UnitPrice))
	require.Equal(t, large, *sale.Items[1].VariantID)
	require.True(t, money("31.00").Equal(sale.TotalAmount))
	require.Equal(t, PaymentCard, sale.PaymentMethod)
	require.Equal(t, 7, f.store.stock(10))
	require.Equal(t, 1, f.catalog.reads)
	require.Nil(t, result.Invoice)
	require.False(t, result.InvoicePending)

	require.Equal(t, []string{"sale.create"}, f.audit.actions)
	require.Equal(t, []string{events.SaleCreated}, f.publisher.kinds)
	require.Len(t, f.notifier.created, 1)
	require.Equal(t, 3, f.notifier.created[0].ItemCount)
	require.Equal(t, 1.0, counterValue(t, f.registry, "stockplus_sales_checkouts_total", map[string]string{"outcome": "success"}))
	require.Equal(t, 3.0, counterValue(t, f.registry, "stockplus_sales_units_total", nil))
}

func TestCheckoutVariantPriceIsAuthoritative(t *testing.T) {
	f := newServiceFixture(t, nil)
	for _, variant := range []int64{101, 102} {
		v := variant
		_, err := f.svc.Checkout(context.Background(), checkoutOf(CheckoutItem{ProductID: 10, VariantID: &v, Quantity: 1}))
		var priceErr *PriceUnavailableError
		require.ErrorAs(t, err, &priceErr, "variant %d", variant)
		require.Equal(t, v, *priceErr.VariantID)
	}

	unknown := int64(999)
	_, err := f.svc.Checkout(context.Background(), checkoutOf(CheckoutItem{ProductID: 10, VariantID: &unknown, Quantity: 1}))
	require.ErrorIs(t, err, catalog.ErrVariantNotFound)
	require.ErrorIs(t, Classify(err), httpx.ErrNotFound)

	require.Equal(t, 10, f.store.stock(10))
	require.Zero(t, f.store.saleCount())
	require.Zero(t, f.store.itemCount())
}

func TestCheckoutRejectsUnpricedProduct(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 1), lineOf(30, 1)))

	var priceErr *PriceUnavailableError
	require.ErrorAs(t, err, &priceErr)
	require.Equal(t, int64(30), priceErr.ProductID)
	require.Equal(t, 10, f.store.stock(10))
	require.Zero(t, f.store.saleCount())
	require.Equal(t, 1.0, counterValue(t, f.registry, "stockplus_sales_checkouts_total", map[string]string{"outcome": "invalid"}))
}

func TestCheckoutRejectsForeignAndUnknownProducts(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(40, 1)))
	require.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = f.svc.Checkout(context.Background(), checkoutOf(lineOf(99, 1)))
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
	require.Equal(t, 10, f.store.stock(40))
	require.Zero(t, f.store.saleCount())
}

func TestCheckoutValidation(t *testing.T) {
	f := newServiceFixture(t, nil)
	cases := map[string]CheckoutRequest{
		"no items":       checkoutOf(),
		"no company":     {Items: []CheckoutItem{lineOf(10, 1)}},
		"zero quantity":  checkoutOf(lineOf(10, 0)),
		"unknown method": {CompanyID: companyID, PaymentMethod: "barter", Items: []CheckoutItem{lineOf(10, 1)}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Checkout(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidSale)
		})
	}

	_, err := f.svc.Checkout(context.Background(), checkoutOf(CheckoutItem{ProductID: 10, Quantity: 1, Discount: money("50")}))
	require.ErrorIs(t, err, ErrInvalidItem)
	require.Equal(t, 10, f.store.stock(10))
}

func TestCheckoutCapsQuantities(t *testing.T) {
	f := newServiceFixture(t, nil)
	huge := int(^uint(0) >> 1)

	_, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(20, huge), lineOf(20, huge)))
	require.ErrorIs(t, err, ErrInvalidSale)

	_, err = f.svc.Checkout(context.Background(), checkoutOf(lineOf(20, MaxQuantity), lineOf(20, 1)))
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = f.svc.AddItem(context.Background(), 1, AddItemRequest{ProductID: 20, Quantity: huge})
	require.ErrorIs(t, err, ErrInvalidItem)

	require.Equal(t, 5, f.store.stock(20))
	require.Zero(t, f.store.saleCount())
}

func TestCheckoutInsufficientStock(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 4), lineOf(20, 6)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(20), stockErr.ProductID)
	require.Equal(t, 10, f.store.stock(10))
	require.Equal(t, 5, f.store.stock(20))
	require.Empty(t, f.notifier.created)
	require.Equal(t, 1.0, counterValue(t, f.registry, "stockplus_sales_checkouts_total", map[string]string{"outcome": "insufficient_stock"}))
}

func TestCheckoutRetriesOnNumberCollision(t *testing.T) {
	cases := map[string]error{
		"exhausted": numbering.ErrGenerationExhausted,
		"duplicate": &DuplicateSaleError{InvoiceNumber: "INV-202601-1-000001"},
	}
	for name, collision := range cases {
		t.Run(name, func(t *testing.T) {
			var flaky *collidingLedger
			f := newServiceFixture(t, func(store *memStore) LedgerPort {
				flaky = &collidingLedger{Ledger: newTestLedger(store), fails: 1, err: collision}
				return flaky
			})
			result, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 1)))
			require.NoError(t, err)
			require.NotZero(t, result.Sale.ID)
			require.Equal(t, 2, flaky.calls)
			require.Equal(t, 9, f.store.stock(10))
		})
	}
}

func TestCheckoutGivesUpAfterConfiguredAttempts(t *testing.T) {
	var flaky *collidingLedger
	f := newServiceFixture(t, func(store *memStore) LedgerPort {
		flaky = &collidingLedger{Ledger: newTestLedger(store), fails: 5, err: numbering.ErrGenerationExhausted}
		return flaky
	})
	_, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 1)))
	require.ErrorIs(t, err, numbering.ErrGenerationExhausted)
	require.Equal(t, 2, flaky.calls)
	require.Equal(t, 10, f.store.stock(10))
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	f := newServiceFixture(t, nil)
	req := checkoutOf(lineOf(10, 1))
	req.IdempotencyKey = "till-3-0001"

	_, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 9, f.store.stock(10))

	failing := checkoutOf(lineOf(10, 100))
	failing.IdempotencyKey = "till-3-0002"
	_, err = f.svc.Checkout(context.Background(), failing)
	require.Error(t, err)
	require.Equal(t, []string{"till-3-0002"}, f.idem.deleted)

	failing.Items = []CheckoutItem{lineOf(10, 1)}
	_, err = f.svc.Checkout(context.Background(), failing)
	require.NoError(t, err)
}

func TestCheckoutIssuesInvoice(t *testing.T) {
	f := newServiceFixture(t, nil)
	req := checkoutOf(lineOf(20, 2))
	req.GenerateInvoice = true
	req.Customer = invoices.Customer{Name: "Ana"}
	req.TaxAmount = money("0.90")

	result, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)
	require.Equal(t, result.Sale.InvoiceNumber, result.Invoice.InvoiceNumber)
	require.True(t, money("9.00").Equal(result.Invoice.TotalAmount))
	require.Equal(t, "Ana", result.Invoice.Customer.Name)
}

func TestCheckoutKeepsSaleWhenInvoiceFails(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.invoices.err = errors.New("invoices table unavailable")
	req := checkoutOf(lineOf(10, 1))
	req.GenerateInvoice = true

	result, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.InvoicePending)
	require.Nil(t, result.Invoice)
	require.Equal(t, 9, f.store.stock(10))

	f.invoices.err = nil
	inv, err := f.svc.IssueInvoice(context.Background(), result.Sale.ID, IssueInvoiceRequest{ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, result.Sale.InvoiceNumber, inv.InvoiceNumber)

	_, err = f.svc.IssueInvoice(context.Background(), result.Sale.ID, IssueInvoiceRequest{})
	require.ErrorIs(t, err, invoices.ErrDuplicateInvoice)
}

func TestCheckoutSurvivesNotifierFailure(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.notifier.err = errors.New("redis down")

	result, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(20, 2)))
	require.NoError(t, err)
	require.NotZero(t, result.Sale.ID)
	require.Equal(t, 3, f.store.stock(20))

	require.Len(t, f.notifier.lowStock, 1)
	warning := f.notifier.lowStock[0]
	require.Equal(t, int64(20), warning.ProductID)
	require.Equal(t, 3, warning.Stock)
	require.Equal(t, 3, warning.Threshold)
	require.Equal(t, result.Sale.ID, warning.SaleID)
	require.Equal(t, 2.0, counterValue(t, f.registry, "stockplus_sales_side_effect_failures_total", map[string]string{"kind": "notify"}))
	require.Equal(t, 1.0, counterValue(t, f.registry, "stockplus_sales_low_stock_detected_total", nil))
}

// ============================================================================
// SALE MAINTENANCE
// ============================================================================

func TestServiceItemLifecycle(t *testing.T) {
	f := newServiceFixture(t, nil)
	result, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 1)))
	require.NoError(t, err)
	saleID := result.Sale.ID

	added, err := f.svc.AddItem(context.Background(), saleID, AddItemRequest{ProductID: 20, Quantity: 1, ActorID: 7})
	require.NoError(t, err)
	require.True(t, money("4.50").Equal(added.UnitPrice))
	require.Equal(t, 4, f.store.stock(20))

	qty := 3
	updated, err := f.svc.UpdateItem(context.Background(), added.ID, ItemPatch{Quantity: &qty}, 7)
	require.NoError(t, err)
	require.True(t, money("13.50").Equal(updated.TotalPrice))
	require.Equal(t, 2, f.store.stock(20))

	sale, err := f.svc.GetSale(context.Background(), saleID)
	require.NoError(t, err)
	require.True(t, money("23.50").Equal(sale.TotalAmount))

	require.NoError(t, f.svc.RemoveItem(context.Background(), added.ID, 7))
	require.Equal(t, 5, f.store.stock(20))

	sale, err = f.svc.GetSale(context.Background(), saleID)
	require.NoError(t, err)
	require.True(t, money("10.00").Equal(sale.TotalAmount))

	_, err = f.svc.UpdateItem(context.Background(), added.ID, ItemPatch{Quantity: &qty}, 7)
	require.ErrorIs(t, err, ErrSaleItemNotFound)
	_, err = f.svc.UpdateItem(context.Background(), result.Sale.Items[0].ID, ItemPatch{}, 7)
	require.ErrorIs(t, err, ErrInvalidItem)

	require.Equal(t, []string{"sale.create", "sale.item_add", "sale.item_update", "sale.item_remove"}, f.audit.actions)
	require.Equal(t, []string{events.SaleCreated, events.SaleItemAdded, events.SaleItemUpdated, events.SaleItemRemoved}, f.publisher.kinds)
	require.Len(t, f.notifier.lowStock, 1)
	require.Equal(t, []int64{10, 20, 20, 20}, f.cache.invalidated)
}

func TestServiceUpdateSale(t *testing.T) {
	f := newServiceFixture(t, nil)
	result, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 2)))
	require.NoError(t, err)
	saleID := result.Sale.ID

	method := PaymentTransfer
	notes := "bank ref 8812"
	sale, err := f.svc.UpdateSale(context.Background(), saleID, HeaderPatch{PaymentMethod: &method, Notes: &notes}, 7)
	require.NoError(t, err)
	require.Equal(t, PaymentTransfer, sale.PaymentMethod)
	require.Equal(t, notes, sale.Notes)
	require.True(t, money("20.00").Equal(sale.TotalAmount))
	require.Equal(t, 8, f.store.stock(10))

	_, err = f.svc.UpdateSale(context.Background(), saleID, HeaderPatch{}, 7)
	require.ErrorIs(t, err, ErrInvalidSale)
	long := strings.Repeat("x", 2001)
	_, err = f.svc.UpdateSale(context.Background(), saleID, HeaderPatch{Notes: &long}, 7)
	require.ErrorIs(t, err, ErrInvalidSale)

	require.Equal(t, []string{"sale.create", "sale.update"}, f.audit.actions)
	require.Equal(t, []string{events.SaleCreated, events.SaleUpdated}, f.publisher.kinds)

	_, err = f.svc.Cancel(context.Background(), saleID, 7)
	require.NoError(t, err)
	_, err = f.svc.UpdateSale(context.Background(), saleID, HeaderPatch{Notes: &notes}, 7)
	require.ErrorIs(t, err, ErrSaleAlreadyCancelled)
	require.Equal(t, []int64{10, 10}, f.cache.invalidated)
}

func TestCancelledSaleRefusesMutations(t *testing.T) {
	f := newServiceFixture(t, nil)
	result, err := f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 2)))
	require.NoError(t, err)
	saleID := result.Sale.ID
	itemID := result.Sale.Items[0].ID

	cancelled, err := f.svc.Cancel(context.Background(), saleID, 7)
	require.NoError(t, err)
	require.True(t, cancelled.IsCancelled)
	require.Equal(t, 10, f.store.stock(10))
	require.Len(t, f.notifier.cancelled, 1)
	require.Equal(t, result.Sale.InvoiceNumber, f.notifier.cancelled[0].InvoiceNumber)

	_, err = f.svc.AddItem(context.Background(), saleID, AddItemRequest{ProductID: 10, Quantity: 1})
	require.ErrorIs(t, err, ErrSaleAlreadyCancelled)
	qty := 1
	_, err = f.svc.UpdateItem(context.Background(), itemID, ItemPatch{Quantity: &qty}, 7)
	require.ErrorIs(t, err, ErrSaleAlreadyCancelled)
	require.ErrorIs(t, f.svc.RemoveItem(context.Background(), itemID, 7), ErrSaleAlreadyCancelled)
	_, err = f.svc.Cancel(context.Background(), saleID, 7)
	require.ErrorIs(t, err, ErrSaleAlreadyCancelled)
	_, err = f.svc.IssueInvoice(context.Background(), saleID, IssueInvoiceRequest{})
	require.ErrorIs(t, err, ErrSaleAlreadyCancelled)

	require.Equal(t, 10, f.store.stock(10))
	require.Equal(t, 1.0, counterValue(t, f.registry, "stockplus_sales_cancellations_total", nil))
}

func TestServiceReads(t *testing.T) {
	f := newServiceFixture(t, nil)
	pos := int64(3)
	req := checkoutOf(lineOf(10, 1))
	req.PointOfSaleID = &pos
	first, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.Checkout(context.Background(), checkoutOf(lineOf(10, 1)))
	require.NoError(t, err)

	byNumber, err := f.svc.GetSaleByInvoiceNumber(context.Background(), first.Sale.InvoiceNumber)
	require.NoError(t, err)
	require.Equal(t, first.Sale.ID, byNumber.ID)

	all, err := f.svc.ListCompanySales(context.Background(), companyID, 1, 20)
	require.NoError(t, err)
	require.Len(t, all, 2)

	atPOS, err := f.svc.ListPointOfSaleSales(context.Background(), companyID, pos, 1, 20)
	require.NoError(t, err)
	require.Len(t, atPOS, 1)

	_, err = f.svc.ListCompanySales(context.Background(), 0, 1, 20)
	require.ErrorIs(t, err, ErrInvalidSale)
	_, err = f.svc.GetSaleByInvoiceNumber(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidSale)
	_, err = f.svc.GetSale(context.Background(), 404)
	require.ErrorIs(t, err, ErrSaleNotFound)
}
