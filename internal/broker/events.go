package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. A publisher without a
// producer only logs.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer, logger: util.GetLogger()}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("order-%s", event.OrderID), event.EventType, event)
}

// PublishReviewAdded publishes ReviewAdded event
func (ep *EventPublisher) PublishReviewAdded(ctx context.Context, event *models.ReviewAddedEvent) error {
	return ep.publish(ctx, productKey(event.ProductID), event.EventType, event)
}

// PublishPaymentVerified publishes PaymentVerified event
func (ep *EventPublisher) PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	return ep.publish(ctx, fmt.Sprintf("payment-%s", event.ProviderOrderID), event.EventType, event)
}

// PublishProductChanged publishes PRODUCT_CREATED, PRODUCT_UPDATED or PRODUCT_DELETED
func (ep *EventPublisher) PublishProductChanged(ctx context.Context, event *models.ProductChangedEvent) error {
	return ep.publish(ctx, productKey(event.ProductID), event.EventType, event)
}

func (ep *EventPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	if ep.producer == nil {
		ep.logger.Debug("Event publishing disabled", zap.String("type", eventType), zap.String("key", key))
		return nil
	}
	return ep.producer.PublishEvent(ctx, key, event)
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("product-%s", id)
}

// EventHandler handles incoming catalog events
type EventHandler struct {
	onProductUpdated func(context.Context, *models.ProductChangedEvent) error
	onProductDeleted func(context.Context, *models.ProductChangedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnProductUpdated registers a handler for PRODUCT_UPDATED events
func (eh *EventHandler) OnProductUpdated(handler func(context.Context, *models.ProductChangedEvent) error) {
	eh.onProductUpdated = handler
}

// OnProductDeleted registers a handler for PRODUCT_DELETED events
func (eh *EventHandler) OnProductDeleted(handler func(context.Context, *models.ProductChangedEvent) error) {
	eh.onProductDeleted = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without
// a handler are skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType), zap.String("id", baseEvent.EventID))

	var handler func(context.Context, *models.ProductChangedEvent) error
	switch baseEvent.EventType {
	case models.EventTypeProductUpdated:
		handler = eh.onProductUpdated
	case models.EventTypeProductDeleted:
		handler = eh.onProductDeleted
	}
	if handler == nil {
		return nil
	}

	var event models.ProductChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
