package service

import (
	"context"
	"time"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/models"
	"retail-backoffice/internal/util"

	"go.uber.org/zap"
)

const defaultCompensationTimeout = 15 * time.Second

// InventoryAdjuster debits stock for an order line by line and credits back
// what it took when a later line cannot be satisfied.
type InventoryAdjuster struct {
	ledger              InventoryLedger
	compensationTimeout time.Duration
	logger              *zap.Logger
}

// NewInventoryAdjuster creates an adjuster. Compensation runs detached from
// the caller's context and is bounded by compensationTimeout.
func NewInventoryAdjuster(ledger InventoryLedger, compensationTimeout time.Duration) *InventoryAdjuster {
	if compensationTimeout <= 0 {
		compensationTimeout = defaultCompensationTimeout
	}
	return &InventoryAdjuster{
		ledger:              ledger,
		compensationTimeout: compensationTimeout,
		logger:              util.GetLogger(),
	}
}

// Apply debits every line of order in input order. When a line fails, the
// lines already touched are credited in reverse order before Apply returns.
// owed lists the lines whose credit could not be applied.
func (a *InventoryAdjuster) Apply(ctx context.Context, order *models.Order) (owed []models.OrderItem, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryAdjuster.Apply")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockDebitLatency.Observe(time.Since(start).Seconds())
		util.RecordError(span, err)
	}()

	touched := make([]models.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return a.Compensate(ctx, order.ID, touched), apperr.Internal("debit stock", ctxErr)
		}

		ok, available, debitErr := a.ledger.DebitStock(ctx, order.ID, item.ProductID, item.Quantity)
		if debitErr != nil {
			// The debit may have landed before the error surfaced.
			touched = append(touched, item)
			a.logger.Error("Stock debit failed",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(debitErr))
			return a.Compensate(ctx, order.ID, touched), apperr.Internal("debit stock", debitErr)
		}
		if !ok {
			util.StockDebitConflictsTotal.Inc()
			a.logger.Info("Stock guard rejected debit",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Int("available", available),
				zap.Int("requested", item.Quantity))
			return a.Compensate(ctx, order.ID, touched),
				apperr.InsufficientStock(item.ProductID, displayName(item), available, item.Quantity)
		}
		touched = append(touched, item)
	}
	return nil, nil
}

// Compensate credits items back in reverse order on a context that outlives
// ctx. It returns the items whose credit failed.
func (a *InventoryAdjuster) Compensate(ctx context.Context, orderID string, items []models.OrderItem) []models.OrderItem {
	if len(items) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.compensationTimeout)
	defer cancel()
	cctx, span := util.StartSpan(cctx, "InventoryAdjuster.Compensate")
	defer span.End()

	var owed []models.OrderItem
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if err := a.ledger.CreditStock(cctx, orderID, item.ProductID, item.Quantity); err != nil {
			util.StockCompensationsTotal.WithLabelValues("failed").Inc()
			util.RecordError(span, err)
			a.logger.Error("Failed to compensate debit",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			owed = append(owed, item)
			continue
		}
		util.StockCompensationsTotal.WithLabelValues("credited").Inc()
	}
	return owed
}

func displayName(item models.OrderItem) string {
	if item.ProductName != "" {
		return item.ProductName
	}
	return item.ProductID
}
