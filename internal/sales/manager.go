package sales

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
)

// Manager owns every stock-affecting sale operation. All mutations run
// through a single mutex, so stock checks and adjustments of one sale can
// never interleave with another sale's.
type Manager struct {
	mu     sync.Mutex
	stock  store.ProductStockStore
	sales  store.SaleRecordStore
	logger *zap.Logger
}

func NewManager(stock store.ProductStockStore, sales store.SaleRecordStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{stock: stock, sales: sales, logger: logger}
}

// aggregatedItem is one sale line after duplicate product ids have been
// merged, in first-occurrence order.
type aggregatedItem struct {
	productID     string
	quantity      int
	discountCents int64
}

func aggregateItems(items []domain.SaleItemInput) ([]aggregatedItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}

	index := make(map[string]int, len(items))
	aggregated := make([]aggregatedItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, fmt.Errorf("%w: item missing product id", store.ErrValidation)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be positive", store.ErrValidation, item.ProductID)
		}
		if item.DiscountCents < 0 {
			return nil, fmt.Errorf("%w: discount for product %s cannot be negative", store.ErrValidation, item.ProductID)
		}
		if pos, seen := index[item.ProductID]; seen {
			aggregated[pos].quantity += item.Quantity
			aggregated[pos].discountCents += item.DiscountCents
			continue
		}
		index[item.ProductID] = len(aggregated)
		aggregated = append(aggregated, aggregatedItem{
			productID:     item.ProductID,
			quantity:      item.Quantity,
			discountCents: item.DiscountCents,
		})
	}
	return aggregated, nil
}

// checkAvailability resolves every product and collects every shortfall before
// any stock is touched. extraAvailable holds quantities about to be restored
// from an existing sale (updates), counted as available.
func (m *Manager) checkAvailability(ctx context.Context, items []aggregatedItem, extraAvailable map[string]int) (map[string]*domain.Product, error) {
	products := make(map[string]*domain.Product, len(items))
	var shortfalls []store.StockShortfall
	for _, item := range items {
		product, err := m.stock.GetProductByID(ctx, item.productID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, item.productID)
		}
		if err != nil {
			return nil, fmt.Errorf("resolving product %s: %w", item.productID, err)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, item.productID)
		}
		available := product.Stock + extraAvailable[item.productID]
		if item.quantity > available {
			shortfalls = append(shortfalls, store.StockShortfall{
				ProductID: item.productID,
				Requested: item.quantity,
				Available: available,
				Shortfall: item.quantity - available,
			})
		}
		products[item.productID] = product
	}
	if len(shortfalls) > 0 {
		return nil, &store.InsufficientStockError{Shortfalls: shortfalls}
	}
	return products, nil
}

// applyDeltas runs the stock adjustments in order, keeping a compensation log.
// On failure it re-applies the inverse of every delta already committed.
type stockDelta struct {
	productID string
	delta     int
}

func (m *Manager) applyDeltas(ctx context.Context, deltas []stockDelta) error {
	applied := make([]stockDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.delta == 0 {
			continue
		}
		if _, err := m.stock.AdjustStock(ctx, d.productID, d.delta); err != nil {
			m.compensate(ctx, applied)
			return err
		}
		applied = append(applied, d)
	}
	return nil
}

// compensate reverses already-applied deltas in reverse order. A compensation
// failure leaves stock inconsistent and is logged loudly; there is no further
// recovery path at this layer.
func (m *Manager) compensate(ctx context.Context, applied []stockDelta) {
	for i := len(applied) - 1; i >= 0; i-- {
		d := applied[i]
		if _, err := m.stock.AdjustStock(ctx, d.productID, -d.delta); err != nil {
			m.logger.Error("stock compensation failed, quantities inconsistent",
				zap.String("product_id", d.productID),
				zap.Int("delta", -d.delta),
				zap.Error(err))
		}
	}
}

func buildLineItems(items []aggregatedItem, products map[string]*domain.Product) ([]domain.SaleLineItem, int64, error) {
	lines := make([]domain.SaleLineItem, 0, len(items))
	var total int64
	for _, item := range items {
		product := products[item.productID]
		gross := product.PriceCents * int64(item.quantity)
		if item.discountCents > gross {
			return nil, 0, fmt.Errorf("%w: discount exceeds line amount for product %s", store.ErrValidation, item.productID)
		}
		amount := gross - item.discountCents
		lines = append(lines, domain.SaleLineItem{
			ProductID:       item.productID,
			Quantity:        item.quantity,
			UnitPriceCents:  product.PriceCents,
			DiscountCents:   item.discountCents,
			LineAmountCents: amount,
		})
		total += amount
	}
	return lines, total, nil
}

// CreateSale validates the draft, decrements stock for every line, allocates
// an invoice number and persists the sale. On any failure after a stock
// decrement, the applied decrements are re-added before the error surfaces:
// a failed call never changes net stock.
func (m *Manager) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	items, err := aggregateItems(draft.Items)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	products, err := m.checkAvailability(ctx, items, nil)
	if err != nil {
		return nil, err
	}

	lines, total, err := buildLineItems(items, products)
	if err != nil {
		return nil, err
	}

	deltas := make([]stockDelta, 0, len(items))
	for _, item := range items {
		deltas = append(deltas, stockDelta{productID: item.productID, delta: -item.quantity})
	}
	if err := m.applyDeltas(ctx, deltas); err != nil {
		return nil, fmt.Errorf("decrementing stock: %w", err)
	}

	invoiceNumber, err := m.sales.NextInvoiceNumber(ctx)
	if err != nil {
		m.compensate(ctx, deltas)
		return nil, fmt.Errorf("%w: allocating invoice number: %v", store.ErrPersistence, err)
	}

	saleDate := time.Now().UTC()
	if draft.SaleDate != nil {
		saleDate = draft.SaleDate.UTC()
	}
	sale := domain.Sale{
		InvoiceNumber:    invoiceNumber,
		ClientName:       draft.ClientName,
		ArtisanID:        draft.ArtisanID,
		Items:            lines,
		TotalAmountCents: total,
		SaleDate:         saleDate,
		Status:           domain.SaleStatusValidated,
		PaymentMode:      draft.PaymentMode,
	}

	created, err := m.sales.CreateSale(ctx, sale)
	if err != nil {
		m.compensate(ctx, deltas)
		return nil, fmt.Errorf("%w: persisting sale: %v", store.ErrPersistence, err)
	}

	m.logger.Info("sale created",
		zap.String("sale_id", created.ID),
		zap.String("invoice_number", created.InvoiceNumber),
		zap.Int64("total_cents", created.TotalAmountCents))
	return created, nil
}

// UpdateSale applies a partial update. A non-nil patch.Items fully replaces
// the line items: the old quantities are restored, the new ones validated
// against the restored stock and decremented, and the restores rolled back if
// the new items cannot be satisfied. ID and invoice number never change.
func (m *Manager) UpdateSale(ctx context.Context, id string, patch domain.SalePatch) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.sales.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Items = make([]domain.SaleLineItem, len(existing.Items))
	copy(updated.Items, existing.Items)

	if patch.ClientName != nil {
		updated.ClientName = *patch.ClientName
	}
	if patch.PaymentMode != nil {
		updated.PaymentMode = *patch.PaymentMode
	}
	if patch.SaleDate != nil {
		updated.SaleDate = patch.SaleDate.UTC()
	}

	var deltas []stockDelta
	if patch.Items != nil {
		items, err := aggregateItems(patch.Items)
		if err != nil {
			return nil, err
		}

		// Quantities held by the current sale count as available again.
		restorable := make(map[string]int, len(existing.Items))
		for _, line := range existing.Items {
			restorable[line.ProductID] += line.Quantity
		}

		products, err := m.checkAvailability(ctx, items, restorable)
		if err != nil {
			return nil, err
		}

		lines, total, err := buildLineItems(items, products)
		if err != nil {
			return nil, err
		}
		updated.Items = lines
		updated.TotalAmountCents = total

		// Net stock movement per product: restore old, then take new.
		net := make(map[string]int, len(items))
		order := make([]string, 0, len(items)+len(existing.Items))
		for _, line := range existing.Items {
			if _, seen := net[line.ProductID]; !seen {
				order = append(order, line.ProductID)
			}
			net[line.ProductID] += line.Quantity
		}
		for _, item := range items {
			if _, seen := net[item.productID]; !seen {
				order = append(order, item.productID)
			}
			net[item.productID] -= item.quantity
		}
		for _, productID := range order {
			deltas = append(deltas, stockDelta{productID: productID, delta: net[productID]})
		}
		if err := m.applyDeltas(ctx, deltas); err != nil {
			return nil, fmt.Errorf("adjusting stock: %w", err)
		}
	}

	persisted, err := m.sales.UpdateSale(ctx, id, updated)
	if err != nil {
		m.compensate(ctx, deltas)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: sale %s disappeared during update", store.ErrConflict, id)
		}
		return nil, fmt.Errorf("%w: persisting sale update: %v", store.ErrPersistence, err)
	}

	m.logger.Info("sale updated",
		zap.String("sale_id", persisted.ID),
		zap.Bool("items_replaced", patch.Items != nil))
	return persisted, nil
}

// DeleteSale restores the stock held by the sale, then removes the record.
// A restore failure partway through re-decrements the restores already
// applied, leaving stock at its pre-call state. Only a removal failure after
// a complete restore leaves the restored stock in place; that inconsistency
// is logged and surfaced as a persistence error.
func (m *Manager) DeleteSale(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sale, err := m.sales.GetSaleByID(ctx, id)
	if err != nil {
		return err
	}

	restores := make([]stockDelta, 0, len(sale.Items))
	for _, line := range sale.Items {
		restores = append(restores, stockDelta{productID: line.ProductID, delta: line.Quantity})
	}
	if err := m.applyDeltas(ctx, restores); err != nil {
		m.logger.Error("stock restore failed during sale deletion",
			zap.String("sale_id", id),
			zap.Error(err))
		return fmt.Errorf("%w: restoring stock for sale %s: %v", store.ErrPersistence, id, err)
	}

	if err := m.sales.DeleteSale(ctx, id); err != nil {
		m.logger.Error("sale removal failed after stock restore, quantities already re-added",
			zap.String("sale_id", id),
			zap.Error(err))
		return fmt.Errorf("%w: removing sale %s after stock restore: %v", store.ErrPersistence, id, err)
	}

	m.logger.Info("sale deleted", zap.String("sale_id", id), zap.String("invoice_number", sale.InvoiceNumber))
	return nil
}

func (m *Manager) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return m.sales.GetSaleByID(ctx, id)
}

func (m *Manager) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	return m.sales.ListSales(ctx, filter)
}
