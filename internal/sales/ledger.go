package sales

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockplus/stockplus/internal/catalog"
	"github.com/stockplus/stockplus/internal/numbering"
	"github.com/stockplus/stockplus/internal/platform/db"
)

// Store is the persistence port behind the Ledger.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	GetSaleByInvoiceNumber(ctx context.Context, number string) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, error)
	GetItem(ctx context.Context, id int64) (SaleItem, error)
}

// TxRepository exposes the statements available inside a ledger transaction.
// Lock* methods take row locks held until the transaction ends.
type TxRepository interface {
	// LockProducts locks the given products in ascending id order.
	LockProducts(ctx context.Context, ids []int64) (map[int64]StockLevel, error)
	SetStock(ctx context.Context, productID int64, stock int) error
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)
	InsertSale(ctx context.Context, sale *Sale) error
	InsertItem(ctx context.Context, item *SaleItem) error
	LockSale(ctx context.Context, id int64) (Sale, error)
	ItemSaleID(ctx context.Context, itemID int64) (int64, error)
	LockItem(ctx context.Context, itemID int64) (SaleItem, error)
	ListItems(ctx context.Context, saleID int64) ([]SaleItem, error)
	UpdateItem(ctx context.Context, item SaleItem) error
	DeleteItem(ctx context.Context, itemID int64) error
	SetSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error
	UpdateSaleHeader(ctx context.Context, sale Sale) error
	MarkCancelled(ctx context.Context, saleID int64, actorID *int64, at time.Time) error
}

// NumberGenerator allocates invoice numbers inside a transaction.
type NumberGenerator interface {
	Generate(ctx context.Context, scopeID int64, exists numbering.ExistsFunc) (string, error)
}

// LedgerConfig groups optional ledger settings.
type LedgerConfig struct {
	Retry db.RetryPolicy
	Now   func() time.Time
}

// Ledger is the only writer of sale rows and of stock changes caused by sales.
// Every mutating method runs as one transaction; nothing is applied when it fails.
type Ledger struct {
	store   Store
	numbers NumberGenerator
	retry   db.RetryPolicy
	now     func() time.Time
}

// NewLedger builds a Ledger.
func NewLedger(store Store, numbers NumberGenerator, cfg LedgerConfig) *Ledger {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{store: store, numbers: numbers, retry: cfg.Retry, now: now}
}

func (l *Ledger) run(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, l.retry, func(ctx context.Context) error {
		return l.store.WithTx(ctx, fn)
	})
}

// Create persists a sale and decrements stock for every line, or fails without side effects.
func (l *Ledger) Create(ctx context.Context, draft Draft) (*Sale, []StockLevel, error) {
	if draft.CompanyID <= 0 {
		return nil, nil, invalidSale("company id required")
	}
	if len(draft.Items) == 0 {
		return nil, nil, ErrEmptySale
	}
	method := draft.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	if !method.Valid() {
		return nil, nil, invalidSale(fmt.Sprintf("unknown payment method %q", method))
	}

	items := make([]SaleItem, 0, len(draft.Items))
	requested := make(map[int64]int, len(draft.Items))
	total := decimal.Zero
	for _, raw := range draft.Items {
		item := raw.withTotal()
		if err := item.Validate(); err != nil {
			return nil, nil, err
		}
		items = append(items, item)
		requested[item.ProductID] += item.Quantity
		if requested[item.ProductID] > MaxQuantity {
			return nil, nil, invalidItem(fmt.Sprintf("product %d: quantity exceeds %d", item.ProductID, MaxQuantity))
		}
		total = total.Add(item.TotalPrice)
	}
	ids := sortedKeys(requested)

	date := draft.Date
	if date.IsZero() {
		date = l.now()
	}

	var (
		created *Sale
		levels  []StockLevel
	)
	err := l.run(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		after := make([]StockLevel, 0, len(ids))
		for _, id := range ids {
			level, err := ownedLevel(stock, id, draft.CompanyID)
			if err != nil {
				return err
			}
			if level.Stock < requested[id] {
				return &InsufficientStockError{ProductID: id, Requested: requested[id], Available: level.Stock}
			}
			level.Stock -= requested[id]
			after = append(after, level)
		}
		for _, level := range after {
			if err := tx.SetStock(ctx, level.ProductID, level.Stock); err != nil {
				return err
			}
		}

		number, err := l.numbers.Generate(ctx, draft.CompanyID, tx.InvoiceNumberExists)
		if err != nil {
			return err
		}
		sale := Sale{
			UID:           uuid.New(),
			InvoiceNumber: number,
			Date:          date,
			TotalAmount:   total,
			PaymentMethod: method,
			CompanyID:     draft.CompanyID,
			PointOfSaleID: draft.PointOfSaleID,
			UserID:        draft.UserID,
			Notes:         draft.Notes,
		}
		if err := tx.InsertSale(ctx, &sale); err != nil {
			return err
		}
		sale.Items = make([]SaleItem, 0, len(items))
		for _, item := range items {
			item.SaleID = sale.ID
			item.UID = uuid.New()
			if err := tx.InsertItem(ctx, &item); err != nil {
				return err
			}
			sale.Items = append(sale.Items, item)
		}
		created = &sale
		levels = after
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, levels, nil
}

// AddItem appends a line to an open sale.
func (l *Ledger) AddItem(ctx context.Context, saleID int64, item SaleItem) (*SaleItem, []StockLevel, error) {
	item = item.withTotal()
	if err := item.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		added *SaleItem
		level StockLevel
	)
	err := l.run(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := lockOpenSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		stock, err := tx.LockProducts(ctx, []int64{item.ProductID})
		if err != nil {
			return err
		}
		current, err := ownedLevel(stock, item.ProductID, sale.CompanyID)
		if err != nil {
			return err
		}
		if current.Stock < item.Quantity {
			return &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: current.Stock}
		}
		current.Stock -= item.Quantity
		if err := tx.SetStock(ctx, current.ProductID, current.Stock); err != nil {
			return err
		}

		row := item
		row.SaleID = sale.ID
		row.UID = uuid.New()
		if err := tx.InsertItem(ctx, &row); err != nil {
			return err
		}
		if err := tx.SetSaleTotal(ctx, sale.ID, sale.TotalAmount.Add(row.TotalPrice)); err != nil {
			return err
		}
		added = &row
		level = current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return added, []StockLevel{level}, nil
}

// UpdateItem applies patch to an item, moving only the quantity delta in or out of stock.
func (l *Ledger) UpdateItem(ctx context.Context, itemID int64, patch ItemPatch) (*SaleItem, []StockLevel, error) {
	var (
		updated *SaleItem
		levels  []StockLevel
	)
	err := l.run(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.ItemSaleID(ctx, itemID)
		if err != nil {
			return err
		}
		sale, err := lockOpenSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		old, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}

		next := old
		if patch.Quantity != nil {
			next.Quantity = *patch.Quantity
		}
		if patch.Discount != nil {
			next.Discount = *patch.Discount
		}
		next = next.withTotal()
		if err := next.Validate(); err != nil {
			return err
		}

		var after []StockLevel
		if delta := next.Quantity - old.Quantity; delta != 0 {
			stock, err := tx.LockProducts(ctx, []int64{old.ProductID})
			if err != nil {
				return err
			}
			current, err := ownedLevel(stock, old.ProductID, sale.CompanyID)
			if err != nil {
				return err
			}
			if delta > 0 && current.Stock < delta {
				return &InsufficientStockError{ProductID: old.ProductID, Requested: delta, Available: current.Stock}
			}
			current.Stock -= delta
			if err := tx.SetStock(ctx, current.ProductID, current.Stock); err != nil {
				return err
			}
			after = append(after, current)
		}

		if err := tx.UpdateItem(ctx, next); err != nil {
			return err
		}
		total := sale.TotalAmount.Add(next.TotalPrice).Sub(old.TotalPrice)
		if err := tx.SetSaleTotal(ctx, sale.ID, total); err != nil {
			return err
		}
		updated = &next
		levels = after
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, levels, nil
}

// UpdateHeader changes the payment method, point of sale or notes of an open sale.
// Totals, items and stock are untouched.
func (l *Ledger) UpdateHeader(ctx context.Context, saleID int64, patch HeaderPatch) (*Sale, error) {
	if patch.PaymentMethod != nil && !patch.PaymentMethod.Valid() {
		return nil, invalidSale(fmt.Sprintf("unknown payment method %q", *patch.PaymentMethod))
	}
	if patch.PointOfSaleID != nil && *patch.PointOfSaleID <= 0 {
		return nil, invalidSale("point of sale id must be positive")
	}

	var updated *Sale
	err := l.run(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := lockOpenSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if patch.PaymentMethod != nil {
			sale.PaymentMethod = *patch.PaymentMethod
		}
		if patch.PointOfSaleID != nil {
			sale.PointOfSaleID = patch.PointOfSaleID
		}
		if patch.Notes != nil {
			sale.Notes = *patch.Notes
		}
		if err := tx.UpdateSaleHeader(ctx, sale); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, saleID)
		if err != nil {
			return err
		}
		sale.Items = items
		updated = &sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteItem removes a line from an open sale and credits its quantity back.
func (l *Ledger) DeleteItem(ctx context.Context, itemID int64) error {
	return l.run(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.ItemSaleID(ctx, itemID)
		if err != nil {
			return err
		}
		sale, err := lockOpenSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		stock, err := tx.LockProducts(ctx, []int64{item.ProductID})
		if err != nil {
			return err
		}
		current, ok := stock[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %d", catalog.ErrProductNotFound, item.ProductID)
		}
		if err := tx.SetStock(ctx, item.ProductID, current.Stock+item.Quantity); err != nil {
			return err
		}
		if err := tx.SetSaleTotal(ctx, sale.ID, sale.TotalAmount.Sub(item.TotalPrice)); err != nil {
			return err
		}
		return tx.DeleteItem(ctx, itemID)
	})
}

// Cancel credits back every surviving item and marks the sale cancelled. It is not repeatable.
func (l *Ledger) Cancel(ctx context.Context, saleID, actorID int64) (*Sale, error) {
	var cancelled *Sale
	err := l.run(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := lockOpenSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, saleID)
		if err != nil {
			return err
		}
		credit := make(map[int64]int, len(items))
		for _, item := range items {
			credit[item.ProductID] += item.Quantity
		}
		if len(credit) > 0 {
			ids := sortedKeys(credit)
			stock, err := tx.LockProducts(ctx, ids)
			if err != nil {
				return err
			}
			for _, id := range ids {
				current, ok := stock[id]
				if !ok {
					return fmt.Errorf("%w: product %d", catalog.ErrProductNotFound, id)
				}
				if err := tx.SetStock(ctx, id, current.Stock+credit[id]); err != nil {
					return err
				}
			}
		}

		at := l.now()
		var actor *int64
		if actorID > 0 {
			actor = &actorID
		}
		if err := tx.MarkCancelled(ctx, saleID, actor, at); err != nil {
			return err
		}
		sale.IsCancelled = true
		sale.CancelledAt = &at
		sale.CancelledBy = actor
		sale.Items = items
		cancelled = &sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Get returns a sale with its items.
func (l *Ledger) Get(ctx context.Context, id int64) (*Sale, error) {
	sale, err := l.store.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetByInvoiceNumber returns the sale carrying number.
func (l *Ledger) GetByInvoiceNumber(ctx context.Context, number string) (*Sale, error) {
	sale, err := l.store.GetSaleByInvoiceNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListByCompany lists a company's sales, newest first.
func (l *Ledger) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]Sale, error) {
	return l.store.ListSales(ctx, ListFilter{CompanyID: companyID, Limit: limit, Offset: offset})
}

// ListByPointOfSale lists the sales recorded at one point of sale, newest first.
func (l *Ledger) ListByPointOfSale(ctx context.Context, companyID, posID int64, limit, offset int) ([]Sale, error) {
	return l.store.ListSales(ctx, ListFilter{CompanyID: companyID, PointOfSaleID: &posID, Limit: limit, Offset: offset})
}

// GetItem returns a single sale item.
func (l *Ledger) GetItem(ctx context.Context, id int64) (*SaleItem, error) {
	item, err := l.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func lockOpenSale(ctx context.Context, tx TxRepository, saleID int64) (Sale, error) {
	sale, err := tx.LockSale(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}
	if sale.IsCancelled {
		return Sale{}, ErrSaleAlreadyCancelled
	}
	return sale, nil
}

// ownedLevel returns the locked stock row for id, refusing products of another company.
func ownedLevel(stock map[int64]StockLevel, id, companyID int64) (StockLevel, error) {
	level, ok := stock[id]
	if !ok || (level.CompanyID != 0 && level.CompanyID != companyID) {
		return StockLevel{}, fmt.Errorf("%w: product %d", catalog.ErrProductNotFound, id)
	}
	return level, nil
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
