package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"
	"storefront/internal/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRecommendationLimit = 4
	MaxRecommendationLimit     = 20

	defaultProductImage    = "https://via.placeholder.com/300"
	defaultProductCategory = "Electronics"
)

// CatalogService manages products. Single product reads go through the
// product cache when one is configured.
type CatalogService struct {
	products  ProductRepository
	cache     ProductCache
	publisher EventPublisher
	group     singleflight.Group
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(products ProductRepository, cache ProductCache, publisher EventPublisher) *CatalogService {
	return &CatalogService{
		products:  products,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ProductInput is the body of a product create request
type ProductInput struct {
	Name          string              `json:"name" validate:"max=200"`
	Description   string              `json:"description" validate:"max=1000"`
	Price         decimal.NullDecimal `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice"`
	Discount      int                 `json:"discount" validate:"min=0,max=100"`
	Image         string              `json:"image"`
	Category      string              `json:"category" validate:"max=50"`
	Brand         string              `json:"brand"`
	Stock         int                 `json:"stock" validate:"min=0"`
}

// ProductUpdate is a partial update; nil fields are left untouched
type ProductUpdate struct {
	Name          *string             `json:"name" validate:"omitempty,min=1,max=200"`
	Description   *string             `json:"description" validate:"omitempty,max=1000"`
	Price         decimal.NullDecimal `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice"`
	Discount      *int                `json:"discount" validate:"omitempty,min=0,max=100"`
	Image         *string             `json:"image"`
	Category      *string             `json:"category" validate:"omitempty,max=50"`
	Brand         *string             `json:"brand"`
	Stock         *int                `json:"stock" validate:"omitempty,min=0"`
}

// ListProducts returns products matching the filter
func (s *CatalogService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if filter.MinPrice.Valid && filter.MaxPrice.Valid && filter.MinPrice.Decimal.GreaterThan(filter.MaxPrice.Decimal) {
		return nil, apperrors.InvalidInput("minPrice cannot exceed maxPrice")
	}

	products, err := s.products.FindProducts(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return products, nil
}

// GetProduct returns one product, served from the cache when possible.
// Concurrent misses for the same id share one store read.
func (s *CatalogService) GetProduct(ctx context.Context, rawID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct", attribute.String("product_id", rawID))
	defer span.End()

	id, err := parseProductID(rawID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		switch {
		case err == nil:
			util.ProductCacheLookupsTotal.WithLabelValues("hit").Inc()
			return cached, nil
		case errors.Is(err, redisclient.ErrCacheMiss):
			util.ProductCacheLookupsTotal.WithLabelValues("miss").Inc()
		default:
			util.ProductCacheLookupsTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Product cache read failed", zap.String("product_id", rawID), zap.Error(err))
		}
	}

	v, err, _ := s.group.Do(id.String(), func() (interface{}, error) {
		product, err := s.products.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, product); err != nil {
				s.logger.Warn("Product cache write failed", zap.String("product_id", rawID), zap.Error(err))
			}
		}
		return product, nil
	})
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}

	product := *v.(*models.Product)
	return &product, nil
}

// Recommendations returns a random sample of products. limit <= 0 means
// the default; larger limits are capped.
func (s *CatalogService) Recommendations(ctx context.Context, category string, limit int) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Recommendations", attribute.String("category", category))
	defer span.End()

	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	if limit > MaxRecommendationLimit {
		limit = MaxRecommendationLimit
	}

	products, err := s.products.SampleProducts(ctx, category, limit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return products, nil
}

// Categories returns the sorted distinct category labels
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Categories")
	defer span.End()

	categories, err := s.products.ListCategories(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return categories, nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	name := strings.TrimSpace(input.Name)
	if name == "" || !input.Price.Valid {
		return nil, apperrors.InvalidInput("Name and price are required")
	}
	if err := validation.Struct(&input); err != nil {
		return nil, err
	}
	if err := validatePricing(input.Price, input.OriginalPrice, input.Stock); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := &models.Product{
		ID:            uuid.New(),
		Name:          name,
		Description:   input.Description,
		Price:         input.Price.Decimal,
		OriginalPrice: input.OriginalPrice,
		Discount:      input.Discount,
		Image:         orDefault(input.Image, defaultProductImage),
		Category:      orDefault(strings.TrimSpace(input.Category), defaultProductCategory),
		Brand:         input.Brand,
		Stock:         input.Stock,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, apperrors.Internal(err)
	}
	product.Refresh()

	s.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("name", product.Name))
	s.publishChange(ctx, models.EventTypeProductCreated, product.ID)
	return product, nil
}

// UpdateProduct applies a partial update
func (s *CatalogService) UpdateProduct(ctx context.Context, rawID string, update ProductUpdate) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct", attribute.String("product_id", rawID))
	defer span.End()

	id, err := parseProductID(rawID)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(&update); err != nil {
		return nil, err
	}

	product, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("Name cannot be empty")
		}
		product.Name = name
	}
	if update.Description != nil {
		product.Description = *update.Description
	}
	if update.Price.Valid {
		product.Price = update.Price.Decimal
	}
	if update.OriginalPrice.Valid {
		product.OriginalPrice = update.OriginalPrice
	}
	if update.Discount != nil {
		product.Discount = *update.Discount
	}
	if update.Image != nil {
		product.Image = *update.Image
	}
	if update.Category != nil {
		product.Category = strings.TrimSpace(*update.Category)
	}
	if update.Brand != nil {
		product.Brand = *update.Brand
	}
	if update.Stock != nil {
		product.Stock = *update.Stock
	}
	if err := validatePricing(decimal.NewNullDecimal(product.Price), product.OriginalPrice, product.Stock); err != nil {
		return nil, err
	}
	product.UpdatedAt = time.Now().UTC()

	if err := s.products.UpdateProduct(ctx, product); err != nil {
		return nil, notFoundOr(err, "Product not found")
	}
	product.Refresh()

	s.EvictProduct(ctx, id)
	s.publishChange(ctx, models.EventTypeProductUpdated, id)
	return product, nil
}

// DeleteProduct removes a product. Carts still holding it are repaired by
// the catalog worker or on their next read.
func (s *CatalogService) DeleteProduct(ctx context.Context, rawID string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct", attribute.String("product_id", rawID))
	defer span.End()

	id, err := parseProductID(rawID)
	if err != nil {
		return err
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return notFoundOr(err, "Product not found")
	}

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	s.EvictProduct(ctx, id)
	s.publishChange(ctx, models.EventTypeProductDeleted, id)
	return nil
}

// EvictProduct drops a product from the cache
func (s *CatalogService) EvictProduct(ctx context.Context, id uuid.UUID) {
	evictProduct(ctx, s.cache, id, s.logger)
}

func (s *CatalogService) publishChange(ctx context.Context, eventType string, id uuid.UUID) {
	event := &models.ProductChangedEvent{
		BaseEvent: models.NewBaseEvent(eventType),
		ProductID: id,
	}
	if err := s.publisher.PublishProductChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish product event", zap.String("type", eventType), zap.Error(err))
	}
}

func parseProductID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperrors.InvalidInput("Product ID is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.InvalidInput("Invalid product ID")
	}
	return id, nil
}

func validatePricing(price, original decimal.NullDecimal, stock int) error {
	var fields []apperrors.FieldError
	if price.Valid && price.Decimal.IsNegative() {
		fields = append(fields, apperrors.FieldError{Field: "price", Message: "must be zero or greater"})
	}
	if original.Valid && original.Decimal.IsNegative() {
		fields = append(fields, apperrors.FieldError{Field: "originalPrice", Message: "must be zero or greater"})
	}
	if stock < 0 {
		fields = append(fields, apperrors.FieldError{Field: "stock", Message: "must be zero or greater"})
	}
	if len(fields) > 0 {
		return apperrors.InvalidInput("Validation failed").WithFields(fields)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
