package store

import (
	"context"
	"fmt"
	"time"

	"retail-backoffice/internal/models"

	"github.com/lib/pq"
)

const orderColumns = `id, user_id, total_amount, status, stock_committed, failure_reason, idempotency_key, created_at, updated_at`

// orderItemRow carries the display fields joined from products.
type orderItemRow struct {
	models.OrderItem
	Name     string `db:"product_name"`
	Category string `db:"product_category"`
}

// CreateOrder inserts the order and its line items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, stock_committed, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.TotalAmount, order.Status, order.StockCommitted, order.IdempotencyKey,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		item.Position = i
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			item.OrderID, item.Position, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order with its line items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}

	items, err := s.getOrderItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	return &order, nil
}

// ListOrders returns every order, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC"); err != nil {
		return nil, err
	}
	return s.attachItems(ctx, orders)
}

// ListStalePendingOrders returns pending orders without committed stock
// created more than olderThan ago. Age is measured on the database clock,
// the same clock that stamps created_at.
func (s *Store) ListStalePendingOrders(ctx context.Context, olderThan time.Duration) ([]models.Order, error) {
	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE status = $1 AND NOT stock_committed AND created_at < NOW() - make_interval(secs => $2) ORDER BY created_at",
		models.OrderStatusPending, olderThan.Seconds()); err != nil {
		return nil, err
	}
	return s.attachItems(ctx, orders)
}

// TransitionOrderStatus moves an order from one status to another. It
// reports false when the order is no longer in the expected state.
func (s *Store) TransitionOrderStatus(ctx context.Context, id, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3 AND stock_committed",
		to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkStockCommitted records that every line of a pending order was debited.
// It reports false when the order is no longer pending.
func (s *Store) MarkStockCommitted(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET stock_committed = TRUE, updated_at = NOW() WHERE id = $1 AND status = $2",
		id, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkOrderFailed moves a pending, uncommitted order to failed. It reports
// false when the order was already committed or failed.
func (s *Store) MarkOrderFailed(ctx context.Context, id, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4 AND NOT stock_committed",
		models.OrderStatusFailed, reason, id, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) attachItems(ctx context.Context, orders []models.Order) ([]models.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := s.getOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) getOrderItems(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	var rows []orderItemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT oi.order_id, oi.position, oi.product_id, oi.quantity, oi.unit_price,
		       COALESCE(p.name, '') AS product_name, COALESCE(p.category, '') AS product_category
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1::uuid[])
		ORDER BY oi.order_id, oi.position`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}

	items := make(map[string][]models.OrderItem, len(orderIDs))
	for _, row := range rows {
		item := row.OrderItem
		item.ProductName = row.Name
		item.ProductCategory = row.Category
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	return items, nil
}
