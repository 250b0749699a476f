package service

import (
	"context"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// ProductRepository persists catalog products and their reviews
type ProductRepository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	SampleProducts(ctx context.Context, category string, limit int) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	AddReview(ctx context.Context, r *models.Review) error
}

// CartRepository persists one cart per user
type CartRepository interface {
	GetCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
	DeleteCart(ctx context.Context, userID uuid.UUID) error
	ListCartOwnersWithProduct(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
}

// OrderRepository persists orders. CreateOrderFromCart also deletes the
// owner's cart atomically.
type OrderRepository interface {
	CreateOrderFromCart(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

// UserRepository persists accounts
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EventPublisher emits domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishReviewAdded(ctx context.Context, event *models.ReviewAddedEvent) error
	PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
	PublishProductChanged(ctx context.Context, event *models.ProductChangedEvent) error
}

// ProductCache caches product documents. Get returns redisclient.ErrCacheMiss
// on a miss.
type ProductCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Set(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PaymentGateway creates orders at the payment provider
type PaymentGateway interface {
	CreateOrder(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error)
}
