package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Consumer is implemented by *broker.Consumer
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventLedger remembers which events were already applied
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CartPurger is implemented by *service.CartService
type CartPurger interface {
	PurgeProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

// CacheEvicter is implemented by *service.CatalogService
type CacheEvicter interface {
	EvictProduct(ctx context.Context, id uuid.UUID)
}

// CatalogWorker applies catalog events to carts and the product cache
type CatalogWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	ledger       EventLedger
	carts        CartPurger
	catalog      CacheEvicter
	logger       *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(consumer Consumer, ledger EventLedger, carts CartPurger, catalog CacheEvicter) *CatalogWorker {
	w := &CatalogWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		carts:        carts,
		catalog:      catalog,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnProductUpdated(w.once(w.handleProductUpdated))
	w.eventHandler.OnProductDeleted(w.once(w.handleProductDeleted))
	return w
}

// Start blocks consuming events until ctx is cancelled
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker...")
	return w.consumer.Close()
}

type productHandler func(context.Context, *models.ProductChangedEvent) error

// once skips events already recorded in the ledger and records the ones
// that were applied successfully.
func (w *CatalogWorker) once(next productHandler) productHandler {
	return func(ctx context.Context, event *models.ProductChangedEvent) error {
		if event.EventID != "" {
			processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
			if err != nil {
				return err
			}
			if processed {
				w.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
				return nil
			}
		}

		if err := next(ctx, event); err != nil {
			return err
		}

		if event.EventID == "" {
			return nil
		}
		return w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType)
	}
}

func (w *CatalogWorker) handleProductUpdated(ctx context.Context, event *models.ProductChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "CatalogWorker.ProductUpdated")
	defer span.End()

	w.catalog.EvictProduct(ctx, event.ProductID)
	return nil
}

func (w *CatalogWorker) handleProductDeleted(ctx context.Context, event *models.ProductChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "CatalogWorker.ProductDeleted")
	defer span.End()

	w.catalog.EvictProduct(ctx, event.ProductID)
	removed, err := w.carts.PurgeProduct(ctx, event.ProductID)
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	w.logger.Debug("Catalog worker applied delete",
		zap.String("product_id", event.ProductID.String()),
		zap.Int64("items_removed", removed))
	return nil
}
