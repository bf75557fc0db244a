package service

import (
	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/models"

	"github.com/shopspring/decimal"
)

// maxOrderTotal is the largest total an order row can hold.
var maxOrderTotal = decimal.RequireFromString("999999999999.99")

// PriceLineItems snapshots the current price of each product into the order
// lines and returns the order total. products must align with items.
func PriceLineItems(items []LineItemRequest, products []*models.Product) ([]models.OrderItem, decimal.Decimal, error) {
	lines := make([]models.OrderItem, len(items))
	total := decimal.Zero
	for i, item := range items {
		p := products[i]
		lines[i] = models.OrderItem{
			Position:        i,
			ProductID:       p.ID,
			Quantity:        item.Quantity,
			UnitPrice:       p.Price,
			ProductName:     p.Name,
			ProductCategory: p.Category,
		}
		total = total.Add(lines[i].LineTotal())
	}

	if !total.IsPositive() {
		return nil, decimal.Zero, apperr.Validation("totalAmount", "order total must be greater than zero")
	}
	if total.GreaterThan(maxOrderTotal) {
		return nil, decimal.Zero, apperr.Validation("totalAmount", "order total must not exceed %s", maxOrderTotal.StringFixed(2))
	}
	return lines, total, nil
}
