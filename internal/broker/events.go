package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"retail-backoffice/internal/models"
	"retail-backoffice/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderFailed publishes OrderFailed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCompensationRequired publishes OrderCompensationRequired event
func (ep *EventPublisher) PublishOrderCompensationRequired(ctx context.Context, event *models.OrderCompensationRequiredEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// NoopPublisher drops every event. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error { return nil }

func (NoopPublisher) PublishOrderFailed(context.Context, *models.OrderFailedEvent) error { return nil }

func (NoopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}

func (NoopPublisher) PublishOrderCompensationRequired(context.Context, *models.OrderCompensationRequiredEvent) error {
	return nil
}

// EventHandler handles incoming events
type EventHandler struct {
	onCompensationRequired func(context.Context, *models.OrderCompensationRequiredEvent) error
	logger                 *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnCompensationRequired registers a handler for OrderCompensationRequired events
func (eh *EventHandler) OnCompensationRequired(handler func(context.Context, *models.OrderCompensationRequiredEvent) error) {
	eh.onCompensationRequired = handler
}

// HandleMessage routes messages to appropriate handlers. Events nobody
// handles are acknowledged.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping malformed event", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderCompensationRequired:
		if eh.onCompensationRequired == nil {
			return nil
		}
		var event models.OrderCompensationRequiredEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal OrderCompensationRequired event: %w", err)
		}
		eh.logger.Info("Handling event",
			zap.String("type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
		return eh.onCompensationRequired(ctx, &event)

	default:
		eh.logger.Debug("Ignoring event", zap.String("type", baseEvent.EventType))
	}

	return nil
}
