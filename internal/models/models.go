package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product categories
const (
	CategoryMen    = "Men"
	CategoryWomen  = "Women"
	CategoryUnisex = "Unisex"
)

// Categories lists the accepted product categories in display order.
var Categories = []string{CategoryMen, CategoryWomen, CategoryUnisex}

// IsValidCategory reports whether c is one of Categories.
func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Product represents a product in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Category    string          `db:"category" json:"category"`
	ImageURL    string          `db:"image_url" json:"imageUrl,omitempty"`
	IsActive    bool            `db:"is_active" json:"isActive"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// Order represents a customer order
type Order struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Status         string          `db:"status" json:"status"`
	StockCommitted bool            `db:"stock_committed" json:"stockCommitted"`
	FailureReason  string          `db:"failure_reason" json:"failureReason,omitempty"`
	IdempotencyKey string          `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
	Items          []OrderItem     `db:"-" json:"lineItems"`
}

// OrderItem is one line of an order. UnitPrice is the price captured when
// the order was placed and never changes afterwards.
type OrderItem struct {
	OrderID   string          `db:"order_id" json:"-"`
	Position  int             `db:"position" json:"-"`
	ProductID string          `db:"product_id" json:"product"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPriceAtOrderTime"`

	// Display fields resolved from the live product on read.
	ProductName     string `db:"-" json:"productName,omitempty"`
	ProductCategory string `db:"-" json:"productCategory,omitempty"`
}

// LineTotal returns UnitPrice × Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StockDebit records stock taken from a product on behalf of an order.
type StockDebit struct {
	OrderID   string    `db:"order_id" json:"order_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category        string
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	IncludeInactive bool
	SortField       string
	SortDesc        bool
	Page            int
	Limit           int
}

// Offset returns the row offset for the filter's page.
func (f ProductFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ProductUpdate carries a partial catalog update; nil fields are left alone.
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
	ImageURL    *string
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
