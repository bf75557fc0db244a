package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"retail-backoffice/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, m *MemoryStore, id string, stock int) {
	t.Helper()
	require.NoError(t, m.CreateProduct(context.Background(), &models.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString("10.00"),
		Stock:    stock,
		Category: models.CategoryUnisex,
		IsActive: true,
	}))
}

func TestMemoryStore_ConcurrentDebitsNeverOversell(t *testing.T) {
	m := NewMemoryStore()
	seedProduct(t, m, "p1", 5)

	const workers = 50
	var (
		wg      sync.WaitGroup
		success int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, _, err := m.DebitStock(context.Background(), fmt.Sprintf("order-%d", i), "p1", 1)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&success, 1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	p, err := m.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int32(5), success)
	assert.Equal(t, 0, p.Stock)
}

func TestMemoryStore_DebitReportsAvailableOnShortfall(t *testing.T) {
	m := NewMemoryStore()
	seedProduct(t, m, "p1", 1)

	ok, available, err := m.DebitStock(context.Background(), "o1", "p1", 2)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, available)
}

func TestMemoryStore_CreditIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedProduct(t, m, "p1", 5)

	ok, _, err := m.DebitStock(ctx, "o1", "p1", 3)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.CreditStock(ctx, "o1", "p1", 3))
	require.NoError(t, m.CreditStock(ctx, "o1", "p1", 3))
	// A credit for an order that never debited changes nothing.
	require.NoError(t, m.CreditStock(ctx, "o2", "p1", 3))

	p, err := m.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	debits, err := m.ListOrderDebits(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, debits)
}

func TestMemoryStore_FailedOrdersWithDebits(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedProduct(t, m, "p1", 5)

	order := &models.Order{
		ID:          "o1",
		UserID:      "u1",
		TotalAmount: decimal.RequireFromString("20.00"),
		Status:      models.OrderStatusPending,
		Items:       []models.OrderItem{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")}},
	}
	require.NoError(t, m.CreateOrder(ctx, order))
	ok, _, err := m.DebitStock(ctx, "o1", "p1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	failed, err := m.MarkOrderFailed(ctx, "o1", "compensation failed")
	require.NoError(t, err)
	require.True(t, failed)

	ids, err := m.ListFailedOrdersWithDebits(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids)
}

func TestMemoryStore_TransitionRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	order := &models.Order{ID: "o1", Status: models.OrderStatusPending}
	require.NoError(t, m.CreateOrder(ctx, order))

	ok, err := m.TransitionOrderStatus(ctx, "o1", models.OrderStatusPending, models.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.False(t, ok, "uncommitted orders cannot move")

	committed, err := m.MarkStockCommitted(ctx, "o1")
	require.NoError(t, err)
	require.True(t, committed)
	ok, err = m.TransitionOrderStatus(ctx, "o1", models.OrderStatusPending, models.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TransitionOrderStatus(ctx, "o1", models.OrderStatusPending, models.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.False(t, ok, "a stale from-status must not apply")
}

func TestMemoryStore_CommitAndFailAreExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateOrder(ctx, &models.Order{ID: "o1", Status: models.OrderStatusPending}))
	require.NoError(t, m.CreateOrder(ctx, &models.Order{ID: "o2", Status: models.OrderStatusPending}))

	failed, err := m.MarkOrderFailed(ctx, "o1", "interrupted")
	require.NoError(t, err)
	require.True(t, failed)
	committed, err := m.MarkStockCommitted(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, committed, "a failed order cannot be committed")

	committed, err = m.MarkStockCommitted(ctx, "o2")
	require.NoError(t, err)
	require.True(t, committed)
	failed, err = m.MarkOrderFailed(ctx, "o2", "interrupted")
	require.NoError(t, err)
	assert.False(t, failed, "a committed order cannot be failed")
}

func TestMemoryStore_ListProductsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i, price := range []string{"5.00", "15.00", "25.00", "35.00"} {
		require.NoError(t, m.CreateProduct(ctx, &models.Product{
			ID:       fmt.Sprintf("p%d", i),
			Name:     fmt.Sprintf("Item %d", i),
			Price:    decimal.RequireFromString(price),
			Category: models.CategoryMen,
			IsActive: i != 3,
		}))
	}
	minPrice := decimal.RequireFromString("10")

	products, total, err := m.ListProducts(ctx, models.ProductFilter{
		MinPrice:  &minPrice,
		SortField: "price",
		SortDesc:  true,
		Page:      1,
		Limit:     1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 1)
	assert.Equal(t, "p2", products[0].ID)
}
