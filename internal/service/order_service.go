package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxIdempotencyKeyLength bounds client supplied Idempotency-Key headers
const maxIdempotencyKeyLength = 128

// OrderService materializes carts into immutable orders
type OrderService struct {
	orders    OrderRepository
	carts     CartRepository
	products  ProductRepository
	locker    Locker
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	carts CartRepository,
	products ProductRepository,
	locker Locker,
	publisher EventPublisher,
) *OrderService {
	return &OrderService{
		orders:    orders,
		carts:     carts,
		products:  products,
		locker:    locker,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ShippingAddress models.Address `json:"shippingAddress"`
	IdempotencyKey  string         `json:"-"`
}

// CreateOrder snapshots the user's cart into an order and deletes the cart.
// A repeated idempotency key returns the order created the first time.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.String("user_id", userID.String()))
	defer span.End()

	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return nil, apperrors.InvalidInput("Idempotency-Key is too long")
	}

	release, err := s.locker.Acquire(ctx, cartLockKey(userID))
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("lock").Inc()
		return nil, err
	}
	defer release()

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID.String()))
			return existing, nil
		}
	}

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(cart.Items) == 0) {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperrors.New(apperrors.CodeInvalidState, "Cart is empty")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	lines, err := s.snapshotLines(ctx, cart)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperrors.New(apperrors.CodeInvalidState, "Cart is empty")
	}

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Lines:           lines,
		TotalAmount:     models.OrderTotal(lines),
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.orders.CreateOrderFromCart(ctx, order); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.Conflict("An order with this Idempotency-Key already exists")
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, apperrors.Internal(err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("lines", len(order.Lines)))

	items := make([]models.OrderItemData, len(order.Lines))
	for i, l := range order.Lines {
		items[i] = models.OrderItemData{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.Price}
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// snapshotLines captures name and current price of every cart item. Items
// whose product no longer exists are skipped.
func (s *OrderService) snapshotLines(ctx context.Context, cart *models.Cart) ([]models.OrderLine, error) {
	ids := make([]uuid.UUID, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.ProductID
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	lines := make([]models.OrderLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			s.logger.Warn("Skipping deleted product at checkout",
				zap.String("product_id", item.ProductID.String()))
			continue
		}
		lines = append(lines, models.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
	}
	return lines, nil
}

// ListOrders returns the user's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders", attribute.String("user_id", userID.String()))
	defer span.End()

	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return orders, nil
}

// GetOrder returns one of the user's orders. Orders of other users are
// reported as missing.
func (s *OrderService) GetOrder(ctx context.Context, userID uuid.UUID, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.String("order_id", orderID))
	defer span.End()

	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, apperrors.InvalidInput("Invalid order ID")
	}

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Order not found")
	}
	if order.UserID != userID {
		return nil, apperrors.NotFound("Order not found")
	}
	return order, nil
}
