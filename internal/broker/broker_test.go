package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishOrderCreated(t *testing.T) {
	w := &recordingWriter{}
	publisher := NewEventPublisher(NewProducerWithWriter(w))

	event := &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     uuid.New(),
		UserID:      uuid.New(),
		TotalAmount: decimal.RequireFromString("42.50"),
	}
	require.NoError(t, publisher.PublishOrderCreated(context.Background(), event))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "order-"+event.OrderID.String(), string(w.messages[0].Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderCreated, decoded["event_type"])
	assert.Equal(t, 42.5, decoded["total_amount"])
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	publisher := NewEventPublisher(NewProducerWithWriter(w))

	err := publisher.PublishProductChanged(context.Background(), &models.ProductChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeProductDeleted),
		ProductID: uuid.New(),
	})
	assert.ErrorContains(t, err, "broker down")
}

func TestPublisherWithoutProducerIsNoop(t *testing.T) {
	publisher := NewEventPublisher(nil)
	assert.NoError(t, publisher.PublishReviewAdded(context.Background(), &models.ReviewAddedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeReviewAdded),
	}))
}

func TestHandleMessageRoutesProductEvents(t *testing.T) {
	h := NewEventHandler()
	var deleted, updated []uuid.UUID
	h.OnProductDeleted(func(ctx context.Context, e *models.ProductChangedEvent) error {
		deleted = append(deleted, e.ProductID)
		return nil
	})
	h.OnProductUpdated(func(ctx context.Context, e *models.ProductChangedEvent) error {
		updated = append(updated, e.ProductID)
		return nil
	})

	id := uuid.New()
	for _, eventType := range []string{models.EventTypeProductDeleted, models.EventTypeProductUpdated, models.EventTypeOrderCreated} {
		value, err := json.Marshal(&models.ProductChangedEvent{BaseEvent: models.NewBaseEvent(eventType), ProductID: id})
		require.NoError(t, err)
		require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
	}

	assert.Equal(t, []uuid.UUID{id}, deleted)
	assert.Equal(t, []uuid.UUID{id}, updated)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("nope")})
	assert.Error(t, err)
}
