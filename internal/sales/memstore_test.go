package sales

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockplus/stockplus/internal/numbering"
)

// memStore emulates the PostgreSQL store: per-row locks held until the
// transaction ends and an undo log replayed on failure.
type memStore struct {
	mu       sync.Mutex
	products map[int64]StockLevel
	sales    map[int64]Sale
	items    map[int64]SaleItem
	nextSale int64
	nextItem int64

	productLocks map[int64]*sync.Mutex
	saleLocks    map[int64]*sync.Mutex

	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		products:     map[int64]StockLevel{},
		sales:        map[int64]Sale{},
		items:        map[int64]SaleItem{},
		productLocks: map[int64]*sync.Mutex{},
		saleLocks:    map[int64]*sync.Mutex{},
		failOn:       map[string]error{},
	}
}

func (s *memStore) addProduct(id, companyID int64, stock, threshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = StockLevel{ProductID: id, CompanyID: companyID, Name: "product", Stock: stock, LowStockThreshold: threshold}
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) saleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

func (s *memStore) itemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
}

func (s *memStore) check(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failOn[op]
}

func (s *memStore) rowLock(locks map[int64]*sync.Mutex, id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := locks[id]
	if !ok {
		m = &sync.Mutex{}
		locks[id] = m
	}
	return m
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memTx{s: s, products: map[int64]bool{}, sales: map[int64]bool{}}
	err := fn(ctx, tx)
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	return err
}

func (s *memStore) GetSale(_ context.Context, id int64) (Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	sale.Items = s.itemsOf(id)
	return sale, nil
}

func (s *memStore) GetSaleByInvoiceNumber(_ context.Context, number string) (Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sale := range s.sales {
		if sale.InvoiceNumber == number {
			sale.Items = s.itemsOf(sale.ID)
			return sale, nil
		}
	}
	return Sale{}, ErrSaleNotFound
}

func (s *memStore) ListSales(_ context.Context, filter ListFilter) ([]Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Sale
	for _, sale := range s.sales {
		if sale.CompanyID != filter.CompanyID {
			continue
		}
		if filter.PointOfSaleID != nil && (sale.PointOfSaleID == nil || *sale.PointOfSaleID != *filter.PointOfSaleID) {
			continue
		}
		sale.Items = s.itemsOf(sale.ID)
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memStore) GetItem(_ context.Context, id int64) (SaleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return SaleItem{}, ErrSaleItemNotFound
	}
	return item, nil
}

func (s *memStore) itemsOf(saleID int64) []SaleItem {
	items := []SaleItem{}
	for _, item := range s.items {
		if item.SaleID == saleID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

type memTx struct {
	s        *memStore
	undo     []func()
	held     []*sync.Mutex
	products map[int64]bool
	sales    map[int64]bool
}

func (t *memTx) LockProducts(_ context.Context, ids []int64) (map[int64]StockLevel, error) {
	if err := t.s.check("LockProducts"); err != nil {
		return nil, err
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		if t.products[id] {
			continue
		}
		m := t.s.rowLock(t.s.productLocks, id)
		m.Lock()
		t.held = append(t.held, m)
		t.products[id] = true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make(map[int64]StockLevel, len(ids))
	for _, id := range ids {
		if level, ok := t.s.products[id]; ok {
			out[id] = level
		}
	}
	return out, nil
}

func (t *memTx) SetStock(_ context.Context, productID int64, stock int) error {
	if err := t.s.check("SetStock"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev := t.s.products[productID]
	next := prev
	next.Stock = stock
	t.s.products[productID] = next
	t.undo = append(t.undo, func() { t.s.products[productID] = prev })
	return nil
}

func (t *memTx) InvoiceNumberExists(_ context.Context, number string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, sale := range t.s.sales {
		if sale.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertSale(_ context.Context, sale *Sale) error {
	if err := t.s.check("InsertSale"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.sales {
		if existing.InvoiceNumber == sale.InvoiceNumber {
			return &DuplicateSaleError{InvoiceNumber: sale.InvoiceNumber}
		}
	}
	t.s.nextSale++
	sale.ID = t.s.nextSale
	header := *sale
	header.Items = nil
	t.s.sales[sale.ID] = header
	id := sale.ID
	t.undo = append(t.undo, func() { delete(t.s.sales, id) })
	return nil
}

func (t *memTx) InsertItem(_ context.Context, item *SaleItem) error {
	if err := t.s.check("InsertItem"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextItem++
	item.ID = t.s.nextItem
	t.s.items[item.ID] = *item
	id := item.ID
	t.undo = append(t.undo, func() { delete(t.s.items, id) })
	return nil
}

func (t *memTx) LockSale(_ context.Context, id int64) (Sale, error) {
	if !t.sales[id] {
		m := t.s.rowLock(t.s.saleLocks, id)
		m.Lock()
		t.held = append(t.held, m)
		t.sales[id] = true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sale, ok := t.s.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (t *memTx) ItemSaleID(_ context.Context, itemID int64) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	item, ok := t.s.items[itemID]
	if !ok {
		return 0, ErrSaleItemNotFound
	}
	return item.SaleID, nil
}

func (t *memTx) LockItem(_ context.Context, itemID int64) (SaleItem, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	item, ok := t.s.items[itemID]
	if !ok {
		return SaleItem{}, ErrSaleItemNotFound
	}
	return item, nil
}

func (t *memTx) ListItems(_ context.Context, saleID int64) ([]SaleItem, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.itemsOf(saleID), nil
}

func (t *memTx) UpdateItem(_ context.Context, item SaleItem) error {
	if err := t.s.check("UpdateItem"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.items[item.ID]
	if !ok {
		return ErrSaleItemNotFound
	}
	next := prev
	next.Quantity = item.Quantity
	next.Discount = item.Discount
	next.TotalPrice = item.TotalPrice
	t.s.items[item.ID] = next
	t.undo = append(t.undo, func() { t.s.items[item.ID] = prev })
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, itemID int64) error {
	if err := t.s.check("DeleteItem"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.items[itemID]
	if !ok {
		return ErrSaleItemNotFound
	}
	delete(t.s.items, itemID)
	t.undo = append(t.undo, func() { t.s.items[itemID] = prev })
	return nil
}

func (t *memTx) SetSaleTotal(_ context.Context, saleID int64, total decimal.Decimal) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev := t.s.sales[saleID]
	next := prev
	next.TotalAmount = total
	t.s.sales[saleID] = next
	t.undo = append(t.undo, func() { t.s.sales[saleID] = prev })
	return nil
}

func (t *memTx) UpdateSaleHeader(_ context.Context, sale Sale) error {
	if err := t.s.check("UpdateSaleHeader"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.sales[sale.ID]
	if !ok {
		return ErrSaleNotFound
	}
	next := prev
	next.PaymentMethod = sale.PaymentMethod
	next.PointOfSaleID = sale.PointOfSaleID
	next.Notes = sale.Notes
	t.s.sales[sale.ID] = next
	t.undo = append(t.undo, func() { t.s.sales[sale.ID] = prev })
	return nil
}

func (t *memTx) MarkCancelled(_ context.Context, saleID int64, actorID *int64, at time.Time) error {
	if err := t.s.check("MarkCancelled"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev := t.s.sales[saleID]
	next := prev
	next.IsCancelled = true
	next.CancelledAt = &at
	next.CancelledBy = actorID
	t.s.sales[saleID] = next
	t.undo = append(t.undo, func() { t.s.sales[saleID] = prev })
	return nil
}

// counterSequence hands out deterministic invoice suffixes.
type counterSequence struct {
	mu sync.Mutex
	n  int64
}

func (c *counterSequence) Next(context.Context, int64, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

func newTestLedger(store *memStore) *Ledger {
	gen := numbering.NewGenerator(numbering.Options{Sequence: &counterSequence{}})
	return NewLedger(store, gen, LedgerConfig{})
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
