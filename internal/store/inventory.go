package store

import (
	"context"
	"database/sql"
	"errors"

	"retail-backoffice/internal/models"
)

// debitStockQuery decrements stock only while stock >= quantity and records
// the debit against the order. The guard, the decrement and the ledger row
// are one statement, so concurrent debits can never drive stock negative.
const debitStockQuery = `
	WITH debited AS (
		UPDATE products
		SET stock = stock - $3, updated_at = NOW()
		WHERE id = $2 AND stock >= $3
		RETURNING id
	)
	INSERT INTO order_debits (order_id, product_id, quantity)
	SELECT $1, id, $3 FROM debited
	RETURNING product_id`

// creditStockQuery reverses a debit recorded for the order. Without a
// matching ledger row nothing happens, which makes repeated credits safe.
const creditStockQuery = `
	WITH released AS (
		DELETE FROM order_debits
		WHERE order_id = $1 AND product_id = $2 AND quantity = $3
		RETURNING product_id, quantity
	)
	UPDATE products p
	SET stock = p.stock + released.quantity, updated_at = NOW()
	FROM released
	WHERE p.id = released.product_id`

// DebitStock atomically takes quantity from the product for orderID.
// It returns false and the stock currently available when the guard fails.
func (s *Store) DebitStock(ctx context.Context, orderID, productID string, quantity int) (bool, int, error) {
	var debited string
	err := s.db.QueryRowxContext(ctx, debitStockQuery, orderID, productID, quantity).Scan(&debited)
	if err == nil {
		return true, 0, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, err
	}

	var available int
	err = s.db.GetContext(ctx, &available, "SELECT stock FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return false, available, nil
}

// CreditStock returns a debit previously applied for orderID.
func (s *Store) CreditStock(ctx context.Context, orderID, productID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, creditStockQuery, orderID, productID, quantity)
	return err
}

// ListOrderDebits returns the debits still recorded against an order
func (s *Store) ListOrderDebits(ctx context.Context, orderID string) ([]models.StockDebit, error) {
	debits := []models.StockDebit{}
	err := s.db.SelectContext(ctx, &debits,
		"SELECT order_id, product_id, quantity, created_at FROM order_debits WHERE order_id = $1 ORDER BY created_at",
		orderID)
	return debits, err
}

// ListFailedOrdersWithDebits returns IDs of failed orders whose debits have
// not all been credited back.
func (s *Store) ListFailedOrdersWithDebits(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT o.id
		FROM orders o
		JOIN order_debits d ON d.order_id = o.id
		WHERE o.status = 'failed'`)
	return ids, err
}
