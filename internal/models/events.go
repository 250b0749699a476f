package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated    = "ORDER_CREATED"
	EventTypeReviewAdded     = "REVIEW_ADDED"
	EventTypePaymentVerified = "PAYMENT_VERIFIED"
	EventTypeProductCreated  = "PRODUCT_CREATED"
	EventTypeProductUpdated  = "PRODUCT_UPDATED"
	EventTypeProductDeleted  = "PRODUCT_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderCreatedEvent published when a cart is materialized into an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ReviewAddedEvent published after a review is appended
type ReviewAddedEvent struct {
	BaseEvent
	ProductID   uuid.UUID `json:"product_id"`
	UserID      uuid.UUID `json:"user_id"`
	Rating      int       `json:"rating"`
	NewAverage  float64   `json:"new_average"`
	ReviewCount int       `json:"review_count"`
}

// PaymentVerifiedEvent published when a client payment signature checks out
type PaymentVerifiedEvent struct {
	BaseEvent
	UserID          uuid.UUID `json:"user_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	PaymentID       string    `json:"payment_id"`
}

// ProductChangedEvent published on catalog writes
type ProductChangedEvent struct {
	BaseEvent
	ProductID uuid.UUID `json:"product_id"`
}
