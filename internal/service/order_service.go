package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/auth"
	"retail-backoffice/internal/models"
	"retail-backoffice/internal/store"
	"retail-backoffice/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errLostOrder = errors.New("order was rolled back before its stock was committed")

// OrderService handles order business logic
type OrderService struct {
	orders       OrderRepository
	availability *AvailabilityChecker
	adjuster     *InventoryAdjuster
	idempotency  IdempotencyStore
	events       EventPublisher
	orderTimeout time.Duration
	logger       *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil, in
// which case Idempotency-Key headers are ignored.
func NewOrderService(
	repo Repository,
	adjuster *InventoryAdjuster,
	idempotency IdempotencyStore,
	events EventPublisher,
	orderTimeout time.Duration,
) *OrderService {
	return &OrderService{
		orders:       repo,
		availability: NewAvailabilityChecker(repo),
		adjuster:     adjuster,
		idempotency:  idempotency,
		events:       events,
		orderTimeout: orderTimeout,
		logger:       util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	LineItems      []LineItemRequest `json:"lineItems"`
	IdempotencyKey string            `json:"-"`
}

// CreateOrder validates, prices and persists an order, then commits its
// stock. The returned bool is true when the order was created by an earlier
// request carrying the same idempotency key.
func (s *OrderService) CreateOrder(ctx context.Context, caller auth.Claims, req *CreateOrderRequest) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if s.orderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.orderTimeout)
		defer cancel()
	}

	if err := ValidateLineItems(req.LineItems); err != nil {
		s.reject(err)
		return nil, false, err
	}
	if err := ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		s.reject(err)
		return nil, false, err
	}

	if req.IdempotencyKey == "" || s.idempotency == nil {
		order, err := s.placeOrder(ctx, caller.Subject, req)
		util.RecordError(span, err)
		return order, false, err
	}

	key := caller.Subject + ":" + req.IdempotencyKey
	token := uuid.NewString()
	claim, err := s.idempotency.ClaimIdempotencyKey(ctx, key, token)
	if err != nil {
		return nil, false, apperr.Internal("claim idempotency key", err)
	}
	if claim.OrderID != "" {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("order_id", claim.OrderID))
		order, err := s.orders.GetOrderByID(ctx, claim.OrderID)
		if err != nil {
			return nil, false, apperr.Internal("load replayed order", err)
		}
		return order, true, nil
	}
	if !claim.Claimed {
		return nil, false, apperr.Conflict("a request with this idempotency key is already in progress")
	}

	order, err := s.placeOrder(ctx, caller.Subject, req)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.adjuster.compensationTimeout)
	defer cancel()
	if err != nil {
		if relErr := s.idempotency.ReleaseIdempotencyKey(dctx, key, token); relErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		util.RecordError(span, err)
		return nil, false, err
	}
	if compErr := s.idempotency.CompleteIdempotencyKey(dctx, key, token, order.ID); compErr != nil {
		s.logger.Warn("Failed to complete idempotency key", zap.String("key", key), zap.Error(compErr))
	}
	return order, false, nil
}

func (s *OrderService) placeOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*models.Order, error) {
	products, err := s.availability.Check(ctx, req.LineItems)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	items, total, err := PriceLineItems(req.LineItems, products)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		TotalAmount:    total,
		Status:         models.OrderStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		Items:          items,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.reject(err)
		return nil, apperr.Internal("persist order", err)
	}

	owed, err := s.adjuster.Apply(ctx, order)
	if err != nil {
		s.failOrder(ctx, order, err, owed)
		return nil, err
	}

	// Every line is debited; the outcome stands even if the caller has gone.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.adjuster.compensationTimeout)
	defer cancel()
	committed, err := s.orders.MarkStockCommitted(dctx, order.ID)
	switch {
	case err != nil:
		// Left pending with every debit recorded; the reconciler rolls it forward.
		s.logger.Error("Failed to mark stock committed",
			zap.String("order_id", order.ID), zap.Error(err))
	case !committed:
		return nil, s.releaseLostOrder(dctx, order)
	default:
		order.StockCommitted = true
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total_amount", total.StringFixed(2)))

	s.publish(dctx, "OrderPlaced", func(ctx context.Context) error {
		return s.events.PublishOrderPlaced(ctx, &models.OrderPlacedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderPlaced),
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       models.ItemData(order.Items),
		})
	})
	return order, nil
}

// failOrder marks a persisted order failed after its debits were rolled back.
func (s *OrderService) failOrder(ctx context.Context, order *models.Order, cause error, owed []models.OrderItem) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.adjuster.compensationTimeout)
	defer cancel()

	reason := apperr.KindOf(cause).String()
	util.OrdersFailedTotal.WithLabelValues(reason).Inc()

	if marked, err := s.orders.MarkOrderFailed(dctx, order.ID, cause.Error()); err != nil {
		s.logger.Error("Failed to mark order failed",
			zap.String("order_id", order.ID), zap.Error(err))
	} else if !marked {
		s.logger.Error("Order was settled elsewhere before it could be marked failed",
			zap.String("order_id", order.ID))
	}
	s.logger.Warn("Order placement rolled back",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
		zap.Int("uncompensated_lines", len(owed)),
		zap.Error(cause))

	s.publish(dctx, "OrderFailed", func(ctx context.Context) error {
		return s.events.PublishOrderFailed(ctx, &models.OrderFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderFailed),
			OrderID:   order.ID,
			UserID:    order.UserID,
			Reason:    cause.Error(),
		})
	})
	if len(owed) > 0 {
		s.publish(dctx, "OrderCompensationRequired", func(ctx context.Context) error {
			return s.events.PublishOrderCompensationRequired(ctx, &models.OrderCompensationRequiredEvent{
				BaseEvent: newBaseEvent(models.EventTypeOrderCompensationRequired),
				OrderID:   order.ID,
				Items:     models.ItemData(owed),
			})
		})
	}
}

// releaseLostOrder credits back the debits of an order the reconciler failed
// while its placement was still running.
func (s *OrderService) releaseLostOrder(ctx context.Context, order *models.Order) error {
	owed := s.adjuster.Compensate(ctx, order.ID, order.Items)
	s.logger.Warn("Order rolled back before its stock was committed",
		zap.String("order_id", order.ID),
		zap.Int("uncompensated_lines", len(owed)))
	if len(owed) > 0 {
		s.publish(ctx, "OrderCompensationRequired", func(ctx context.Context) error {
			return s.events.PublishOrderCompensationRequired(ctx, &models.OrderCompensationRequiredEvent{
				BaseEvent: newBaseEvent(models.EventTypeOrderCompensationRequired),
				OrderID:   order.ID,
				Items:     models.ItemData(owed),
			})
		})
	}
	return apperr.Internal("commit order stock", errLostOrder)
}

// GetOrder returns an order visible to the caller.
func (s *OrderService) GetOrder(ctx context.Context, caller auth.Claims, id string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && order.UserID != caller.Subject {
		return nil, apperr.Authorization("not authorized to view this order")
	}
	return order, nil
}

// ListOrders returns every order, newest first.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, apperr.Internal("list orders", err)
	}
	return orders, nil
}

// UpdateOrderStatus advances an order one step along its lifecycle.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	if status == "" {
		return nil, apperr.Validation("status", "status is required")
	}
	if !models.IsKnownOrderStatus(status) && status != models.OrderStatusFailed {
		return nil, apperr.Validation("status", "invalid status %q", status)
	}

	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if from == models.OrderStatusFailed || !order.StockCommitted {
		return nil, apperr.Validation("status", "cannot transition order in status %s", from)
	}
	if !models.CanTransition(from, status) {
		return nil, apperr.Validation("status", "cannot transition from %s to %s", from, status)
	}

	ok, err := s.orders.TransitionOrderStatus(ctx, id, from, status)
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("update order status", err)
	}
	if !ok {
		return nil, apperr.Validation("status", "cannot transition from %s to %s: order was modified concurrently", from, status)
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", from),
		zap.String("to", status))

	s.publish(ctx, "OrderStatusChanged", func(ctx context.Context) error {
		return s.events.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   id,
			From:      from,
			To:        status,
		})
	})

	return s.loadOrder(ctx, id)
}

func (s *OrderService) loadOrder(ctx context.Context, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.Validation("id", "invalid order id %q", id)
	}
	order, err := s.orders.GetOrderByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("load order", err)
	}
	return order, nil
}

func (s *OrderService) reject(err error) {
	util.OrdersRejectedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
}

func (s *OrderService) publish(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to publish %s event", name), zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
