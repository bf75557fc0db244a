package service

import (
	"fmt"
	"unicode/utf8"

	"retail-backoffice/internal/apperr"

	"github.com/google/uuid"
)

const (
	// MaxLineQuantity caps the quantity of a single line item.
	MaxLineQuantity = 10000
	// MaxIdempotencyKeyLength caps the Idempotency-Key header, in characters.
	MaxIdempotencyKeyLength = 128
)

// LineItemRequest is one requested (product, quantity) pair.
type LineItemRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

// ValidateLineItems checks the shape of a cart and returns the first
// violation. It never touches the datastore.
func ValidateLineItems(items []LineItemRequest) error {
	if len(items) == 0 {
		return apperr.Validation("lineItems", "order must contain at least one line item")
	}

	seen := make(map[string]int, len(items))
	for i, item := range items {
		field := fmt.Sprintf("lineItems[%d]", i)
		if item.Product == "" {
			return apperr.Validation(field+".product", "product is required")
		}
		if _, err := uuid.Parse(item.Product); err != nil {
			return apperr.Validation(field+".product", "invalid product id %q", item.Product)
		}
		if item.Quantity < 1 {
			return apperr.Validation(field+".quantity", "quantity must be at least 1")
		}
		if item.Quantity > MaxLineQuantity {
			return apperr.Validation(field+".quantity", "quantity must not exceed %d", MaxLineQuantity)
		}
		if j, dup := seen[item.Product]; dup {
			return apperr.Validation(field+".product", "product %s already listed at lineItems[%d]", item.Product, j)
		}
		seen[item.Product] = i
	}
	return nil
}

// ValidateIdempotencyKey checks the optional Idempotency-Key header.
func ValidateIdempotencyKey(key string) error {
	if utf8.RuneCountInString(key) > MaxIdempotencyKeyLength {
		return apperr.Validation("Idempotency-Key", "Idempotency-Key must not exceed %d characters", MaxIdempotencyKeyLength)
	}
	return nil
}
