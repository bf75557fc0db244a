package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-backoffice/internal/models"
	"retail-backoffice/internal/util"

	"go.uber.org/zap"
)

const interruptedReason = "placement interrupted before stock was committed"

// Reconciler repairs orders a placement left inconsistent: failed orders
// whose credits did not all land, and pending orders abandoned mid-debit.
type Reconciler struct {
	repo       ReconcileRepository
	adjuster   *InventoryAdjuster
	events     EventPublisher
	staleAfter time.Duration
	logger     *zap.Logger
}

// ReconcileReport counts the orders touched by one Run.
type ReconcileReport struct {
	RolledForward int
	RolledBack    int
	Credited      int
}

func NewReconciler(repo ReconcileRepository, adjuster *InventoryAdjuster, events EventPublisher, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		repo:       repo,
		adjuster:   adjuster,
		events:     events,
		staleAfter: staleAfter,
		logger:     util.GetLogger(),
	}
}

// Run makes one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Run")
	defer span.End()

	var report ReconcileReport
	var errs []error

	stale, err := r.repo.ListStalePendingOrders(ctx, r.staleAfter)
	if err != nil {
		errs = append(errs, fmt.Errorf("list stale pending orders: %w", err))
	}
	for i := range stale {
		outcome, err := r.resolveStale(ctx, &stale[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch outcome {
		case rolledForward:
			report.RolledForward++
		case rolledBack:
			report.RolledBack++
		}
	}

	failed, err := r.repo.ListFailedOrdersWithDebits(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list failed orders with debits: %w", err))
	}
	for _, id := range failed {
		if err := r.creditRemaining(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Credited++
	}

	err = errors.Join(errs...)
	util.RecordError(span, err)
	if report != (ReconcileReport{}) || err != nil {
		r.logger.Info("Reconciliation pass finished",
			zap.Int("rolled_forward", report.RolledForward),
			zap.Int("rolled_back", report.RolledBack),
			zap.Int("credited", report.Credited),
			zap.Error(err))
	}
	return report, err
}

type staleOutcome int

const (
	// settled means the placement finished the order first.
	settled staleOutcome = iota
	rolledForward
	rolledBack
)

// resolveStale commits an abandoned pending order whose every line was
// debited, and rolls back any other. The order's state is flipped before any
// stock moves, so a placement still running loses the race cleanly.
func (r *Reconciler) resolveStale(ctx context.Context, order *models.Order) (staleOutcome, error) {
	debits, err := r.repo.ListOrderDebits(ctx, order.ID)
	if err != nil {
		return settled, fmt.Errorf("list debits for order %s: %w", order.ID, err)
	}

	if fullyDebited(order.Items, debits) {
		committed, err := r.repo.MarkStockCommitted(ctx, order.ID)
		if err != nil {
			return settled, fmt.Errorf("commit order %s: %w", order.ID, err)
		}
		if !committed {
			return settled, nil
		}
		util.ReconciliationActionsTotal.WithLabelValues("rolled_forward").Inc()
		r.logger.Warn("Rolled forward abandoned order", zap.String("order_id", order.ID))
		if err := r.events.PublishOrderPlaced(ctx, &models.OrderPlacedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderPlaced),
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       models.ItemData(order.Items),
		}); err != nil {
			r.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
		return rolledForward, nil
	}

	failed, err := r.repo.MarkOrderFailed(ctx, order.ID, interruptedReason)
	if err != nil {
		return settled, fmt.Errorf("fail order %s: %w", order.ID, err)
	}
	if !failed {
		return settled, nil
	}

	// Debits may have landed between the listing above and the status flip.
	debits, err = r.repo.ListOrderDebits(ctx, order.ID)
	if err != nil {
		return rolledBack, fmt.Errorf("list debits for order %s: %w", order.ID, err)
	}
	owed := r.adjuster.Compensate(ctx, order.ID, debitItems(debits))
	util.ReconciliationActionsTotal.WithLabelValues("rolled_back").Inc()
	util.OrdersFailedTotal.WithLabelValues("interrupted").Inc()
	r.logger.Warn("Rolled back abandoned order",
		zap.String("order_id", order.ID),
		zap.Int("credited", len(debits)-len(owed)),
		zap.Int("owed", len(owed)))
	if err := r.events.PublishOrderFailed(ctx, &models.OrderFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderFailed),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    interruptedReason,
	}); err != nil {
		r.logger.Error("Failed to publish OrderFailed event", zap.Error(err))
	}
	return rolledBack, nil
}

// creditRemaining credits every debit still recorded against a failed order.
func (r *Reconciler) creditRemaining(ctx context.Context, orderID string) error {
	order, err := r.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Status != models.OrderStatusFailed {
		return fmt.Errorf("order %s is %s, refusing to credit its stock", orderID, order.Status)
	}

	debits, err := r.repo.ListOrderDebits(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list debits for order %s: %w", orderID, err)
	}
	if owed := r.adjuster.Compensate(ctx, orderID, debitItems(debits)); len(owed) > 0 {
		return fmt.Errorf("order %s still owes %d credits", orderID, len(owed))
	}
	util.ReconciliationActionsTotal.WithLabelValues("credited").Inc()
	r.logger.Info("Credited remaining debits of failed order",
		zap.String("order_id", orderID), zap.Int("lines", len(debits)))
	return nil
}

// HandleCompensationRequired retries the credits of a failed placement.
func (r *Reconciler) HandleCompensationRequired(ctx context.Context, event *models.OrderCompensationRequiredEvent) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleCompensationRequired")
	defer span.End()

	processed, err := r.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		r.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	r.logger.Warn("Retrying compensation",
		zap.String("order_id", event.OrderID),
		zap.Int("lines", len(event.Items)))

	if err := r.creditRemaining(ctx, event.OrderID); err != nil {
		util.RecordError(span, err)
		return err
	}

	if err := r.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		r.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func fullyDebited(items []models.OrderItem, debits []models.StockDebit) bool {
	if len(items) != len(debits) {
		return false
	}
	byProduct := make(map[string]int, len(debits))
	for _, d := range debits {
		byProduct[d.ProductID] = d.Quantity
	}
	for _, item := range items {
		if byProduct[item.ProductID] != item.Quantity {
			return false
		}
	}
	return true
}

func debitItems(debits []models.StockDebit) []models.OrderItem {
	items := make([]models.OrderItem, len(debits))
	for i, d := range debits {
		items[i] = models.OrderItem{OrderID: d.OrderID, ProductID: d.ProductID, Quantity: d.Quantity}
	}
	return items
}
