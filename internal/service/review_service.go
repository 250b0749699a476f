package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReviewService appends reviews and keeps product ratings consistent
type ReviewService struct {
	products  ProductRepository
	cache     ProductCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewReviewService creates a new review service. cache may be nil.
func NewReviewService(products ProductRepository, cache ProductCache, publisher EventPublisher) *ReviewService {
	return &ReviewService{
		products:  products,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// AddReviewRequest is the review submitted by a customer. Rating accepts a
// JSON number or a numeric string; fractional values are rejected, not
// truncated.
type AddReviewRequest struct {
	ProductID string      `json:"productId"`
	Rating    json.Number `json:"rating"`
	Comment   string      `json:"comment"`
}

// AddReview records one review per user and product and returns the
// refreshed product.
func (s *ReviewService) AddReview(ctx context.Context, identity *models.Identity, req AddReviewRequest) (product *models.Product, err error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.AddReview", attribute.String("product_id", req.ProductID))
	defer span.End()
	defer func() {
		if err != nil {
			util.ReviewsRejectedTotal.WithLabelValues(outcome(err)).Inc()
			util.RecordError(span, err)
		}
	}()

	if identity == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	comment := strings.TrimSpace(req.Comment)
	if req.ProductID == "" || req.Rating == "" || comment == "" {
		return nil, apperrors.InvalidInput("productId, rating and comment are required")
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, apperrors.InvalidInput("Invalid product ID")
	}
	rating, err := strconv.ParseFloat(strings.TrimSpace(req.Rating.String()), 64)
	if err != nil || rating != math.Trunc(rating) || rating < models.MinRating || rating > models.MaxRating {
		return nil, apperrors.InvalidInput("rating must be a whole number between 1 and 5")
	}

	product, err = s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}
	for _, r := range product.Reviews {
		if r.UserID == identity.UserID {
			return nil, alreadyReviewed()
		}
	}

	review := models.Review{
		ID:        uuid.New(),
		ProductID: productID,
		UserID:    identity.UserID,
		UserName:  identity.DisplayName(),
		Rating:    int(rating),
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.products.AddReview(ctx, &review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, alreadyReviewed()
		}
		return nil, apperrors.Internal(err)
	}

	product.Reviews = append(product.Reviews, review)
	product.Refresh()
	util.ReviewsAddedTotal.Inc()
	evictProduct(ctx, s.cache, productID, s.logger)

	s.logger.Info("Review added",
		zap.String("product_id", productID.String()),
		zap.String("user_id", identity.UserID.String()),
		zap.Int("rating", review.Rating),
		zap.Float64("new_average", product.Rating))

	event := &models.ReviewAddedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeReviewAdded),
		ProductID:   productID,
		UserID:      identity.UserID,
		Rating:      review.Rating,
		NewAverage:  product.Rating,
		ReviewCount: product.ReviewCount,
	}
	if err := s.publisher.PublishReviewAdded(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReviewAdded event", zap.Error(err))
	}

	return product, nil
}

// ListReviews returns a product's reviews in insertion order
func (s *ReviewService) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.ListReviews", attribute.String("product_id", productID))
	defer span.End()

	if productID == "" {
		return nil, apperrors.InvalidInput("Product ID is required")
	}
	id, err := uuid.Parse(productID)
	if err != nil {
		return nil, apperrors.InvalidInput("Invalid product ID")
	}

	product, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}
	return product.Reviews, nil
}

func alreadyReviewed() error {
	return apperrors.Conflict("You have already reviewed this product")
}

// evictProduct drops a cached product; failures only cost a stale read
// until the entry expires.
func evictProduct(ctx context.Context, cache ProductCache, id uuid.UUID, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Delete(ctx, id); err != nil {
		logger.Warn("Failed to evict cached product", zap.String("product_id", id.String()), zap.Error(err))
	}
}
