package service

import (
	"context"
	"errors"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/models"
	"retail-backoffice/internal/store"
)

// AvailabilityChecker resolves each line against the catalog. Its verdict is
// advisory: stock may change before the debit, which re-checks atomically.
type AvailabilityChecker struct {
	products ProductReader
}

func NewAvailabilityChecker(products ProductReader) *AvailabilityChecker {
	return &AvailabilityChecker{products: products}
}

// Check returns the product for every line, in input order, or the first
// line's failure.
func (a *AvailabilityChecker) Check(ctx context.Context, items []LineItemRequest) ([]*models.Product, error) {
	products := make([]*models.Product, 0, len(items))
	for _, item := range items {
		p, err := a.products.GetProductByID(ctx, item.Product)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("product %s not found", item.Product)
		}
		if err != nil {
			return nil, apperr.Internal("load product", err)
		}
		if !p.IsActive {
			return nil, apperr.Unavailable(p.ID, p.Name)
		}
		if p.Stock < item.Quantity {
			return nil, apperr.InsufficientStock(p.ID, p.Name, p.Stock, item.Quantity)
		}
		products = append(products, p)
	}
	return products, nil
}
