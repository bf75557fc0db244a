package service

import (
	"context"
	"time"

	"retail-backoffice/internal/models"
	"retail-backoffice/internal/redisclient"
)

// ProductReader looks up catalog entries. Missing products yield an error
// wrapping store.ErrNotFound.
type ProductReader interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// InventoryLedger performs the atomic stock mutations.
type InventoryLedger interface {
	// DebitStock takes quantity from productID for orderID only if enough
	// stock remains. It reports false and the stock available otherwise.
	DebitStock(ctx context.Context, orderID, productID string, quantity int) (bool, int, error)
	// CreditStock reverses the debit recorded for (orderID, productID).
	// Crediting a debit that was never applied does nothing.
	CreditStock(ctx context.Context, orderID, productID string, quantity int) error
	ListOrderDebits(ctx context.Context, orderID string) ([]models.StockDebit, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	TransitionOrderStatus(ctx context.Context, id, from, to string) (bool, error)
	MarkStockCommitted(ctx context.Context, id string) (bool, error)
	MarkOrderFailed(ctx context.Context, id, reason string) (bool, error)
}

type CatalogRepository interface {
	ProductReader
	CreateProduct(ctx context.Context, p *models.Product) error
	ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error)
	UpdateProduct(ctx context.Context, id string, u models.ProductUpdate) (*models.Product, error)
	SetProductActive(ctx context.Context, id string, active bool) (*models.Product, error)
	RestockProduct(ctx context.Context, id string, quantity int) (*models.Product, error)
}

// ReconcileRepository is what the reconciler needs to repair orders left
// behind by crashes or failed compensation.
type ReconcileRepository interface {
	InventoryLedger
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListStalePendingOrders(ctx context.Context, olderThan time.Duration) ([]models.Order, error)
	ListFailedOrdersWithDebits(ctx context.Context) ([]string, error)
	MarkStockCommitted(ctx context.Context, id string) (bool, error)
	MarkOrderFailed(ctx context.Context, id, reason string) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is satisfied by both store.Store and store.MemoryStore.
type Repository interface {
	CatalogRepository
	OrderRepository
	ReconcileRepository
	Ping(ctx context.Context) error
}

// IdempotencyStore tracks Idempotency-Key headers across requests.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key, token string) (redisclient.ClaimResult, error)
	CompleteIdempotencyKey(ctx context.Context, key, token, orderID string) error
	ReleaseIdempotencyKey(ctx context.Context, key, token string) error
}

// EventPublisher emits order lifecycle events.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCompensationRequired(ctx context.Context, event *models.OrderCompensationRequiredEvent) error
}
