package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"retail-backoffice/internal/models"
)

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) Lock(key string) func() {
	m, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type debitKey struct {
	orderID   string
	productID string
}

// MemoryStore is an in-process repository. Product stock is only read or
// written while holding that product's lock, which serialises debits per
// product the way a conditional UPDATE does in Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*models.Product
	orders   map[string]*models.Order
	debits   map[debitKey]models.StockDebit
	events   map[string]string

	productLocks keyedMutex
	now          func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
		debits:   make(map[debitKey]models.StockDebit),
		events:   make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryStore) product(id string) (*models.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok
}

// GetProductByID retrieves a copy of the product
func (m *MemoryStore) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := m.product(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	unlock := m.productLocks.Lock(id)
	defer unlock()
	cp := *p
	return &cp, nil
}

// CreateProduct stores a copy of p
func (m *MemoryStore) CreateProduct(_ context.Context, p *models.Product) error {
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.products[p.ID]; exists {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	m.products[p.ID] = &cp
	return nil
}

// ListProducts filters, sorts and pages the catalog
func (m *MemoryStore) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	matched := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		p, err := m.GetProductByID(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if !f.IncludeInactive && !p.IsActive {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		matched = append(matched, *p)
	}

	less := func(a, b models.Product) bool {
		switch f.SortField {
		case "price":
			return a.Price.LessThan(b.Price)
		case "name":
			return a.Name < b.Name
		case "stock":
			return a.Stock < b.Stock
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if f.SortDesc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateProduct applies a partial update
func (m *MemoryStore) UpdateProduct(ctx context.Context, id string, u models.ProductUpdate) (*models.Product, error) {
	return m.mutateProduct(id, func(p *models.Product) {
		if u.Name != nil {
			p.Name = *u.Name
		}
		if u.Description != nil {
			p.Description = *u.Description
		}
		if u.Price != nil {
			p.Price = *u.Price
		}
		if u.Category != nil {
			p.Category = *u.Category
		}
		if u.ImageURL != nil {
			p.ImageURL = *u.ImageURL
		}
	})
}

// SetProductActive soft-deletes or restores a product
func (m *MemoryStore) SetProductActive(_ context.Context, id string, active bool) (*models.Product, error) {
	return m.mutateProduct(id, func(p *models.Product) { p.IsActive = active })
}

// RestockProduct unconditionally adds quantity to stock
func (m *MemoryStore) RestockProduct(_ context.Context, id string, quantity int) (*models.Product, error) {
	return m.mutateProduct(id, func(p *models.Product) { p.Stock += quantity })
}

func (m *MemoryStore) mutateProduct(id string, fn func(*models.Product)) (*models.Product, error) {
	p, ok := m.product(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	unlock := m.productLocks.Lock(id)
	defer unlock()
	fn(p)
	p.UpdatedAt = m.now()
	cp := *p
	return &cp, nil
}

// DebitStock takes quantity from the product for orderID while holding the
// product's lock.
func (m *MemoryStore) DebitStock(ctx context.Context, orderID, productID string, quantity int) (bool, int, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	p, ok := m.product(productID)
	if !ok {
		return false, 0, nil
	}

	unlock := m.productLocks.Lock(productID)
	defer unlock()

	if p.Stock < quantity {
		return false, p.Stock, nil
	}

	key := debitKey{orderID: orderID, productID: productID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.debits[key]; exists {
		return false, p.Stock, fmt.Errorf("order %s already debited product %s", orderID, productID)
	}
	p.Stock -= quantity
	p.UpdatedAt = m.now()
	m.debits[key] = models.StockDebit{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: m.now(),
	}
	return true, 0, nil
}

// CreditStock returns a debit previously applied for orderID. Crediting a
// debit that does not exist is a no-op.
func (m *MemoryStore) CreditStock(_ context.Context, orderID, productID string, quantity int) error {
	p, ok := m.product(productID)
	if !ok {
		return nil
	}

	unlock := m.productLocks.Lock(productID)
	defer unlock()

	key := debitKey{orderID: orderID, productID: productID}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, exists := m.debits[key]
	if !exists || d.Quantity != quantity {
		return nil
	}
	delete(m.debits, key)
	p.Stock += quantity
	p.UpdatedAt = m.now()
	return nil
}

// ListOrderDebits returns the debits still recorded against an order
func (m *MemoryStore) ListOrderDebits(_ context.Context, orderID string) ([]models.StockDebit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	debits := []models.StockDebit{}
	for k, d := range m.debits {
		if k.orderID == orderID {
			debits = append(debits, d)
		}
	}
	sort.Slice(debits, func(i, j int) bool { return debits[i].CreatedAt.Before(debits[j].CreatedAt) })
	return debits, nil
}

// ListFailedOrdersWithDebits returns failed orders with outstanding debits
func (m *MemoryStore) ListFailedOrdersWithDebits(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	ids := []string{}
	for k := range m.debits {
		o, ok := m.orders[k.orderID]
		if ok && o.Status == models.OrderStatusFailed && !seen[k.orderID] {
			seen[k.orderID] = true
			ids = append(ids, k.orderID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateOrder stores a copy of the order and its items
func (m *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.now()
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

// GetOrderByID returns a copy of the order with display fields resolved
func (m *MemoryStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	o, ok := m.orders[id]
	var cp *models.Order
	if ok {
		cp = copyOrder(o)
	}
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	m.resolveDisplay(ctx, cp)
	return cp, nil
}

// ListOrders returns every order, newest first
func (m *MemoryStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return m.listOrders(ctx, func(*models.Order) bool { return true })
}

// ListStalePendingOrders returns pending, uncommitted orders created more than olderThan ago
func (m *MemoryStore) ListStalePendingOrders(ctx context.Context, olderThan time.Duration) ([]models.Order, error) {
	before := m.now().Add(-olderThan)
	orders, err := m.listOrders(ctx, func(o *models.Order) bool {
		return o.Status == models.OrderStatusPending && !o.StockCommitted && o.CreatedAt.Before(before)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (m *MemoryStore) listOrders(ctx context.Context, keep func(*models.Order) bool) ([]models.Order, error) {
	m.mu.RLock()
	orders := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			orders = append(orders, *copyOrder(o))
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	for i := range orders {
		m.resolveDisplay(ctx, &orders[i])
	}
	return orders, nil
}

// TransitionOrderStatus moves a committed order from one status to another
func (m *MemoryStore) TransitionOrderStatus(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || !o.StockCommitted {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = m.now()
	return true, nil
}

// MarkStockCommitted records that every line of a pending order was debited
func (m *MemoryStore) MarkStockCommitted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.StockCommitted = true
	o.UpdatedAt = m.now()
	return true, nil
}

// MarkOrderFailed moves a pending, uncommitted order to failed
func (m *MemoryStore) MarkOrderFailed(_ context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != models.OrderStatusPending || o.StockCommitted {
		return false, nil
	}
	o.Status = models.OrderStatusFailed
	o.FailureReason = reason
	o.UpdatedAt = m.now()
	return true, nil
}

// IsEventProcessed checks if an event has been processed
func (m *MemoryStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.events[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (m *MemoryStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventID] = eventType
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) resolveDisplay(ctx context.Context, o *models.Order) {
	for i := range o.Items {
		if p, err := m.GetProductByID(ctx, o.Items[i].ProductID); err == nil {
			o.Items[i].ProductName = p.Name
			o.Items[i].ProductCategory = p.Category
		}
	}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = make([]models.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
