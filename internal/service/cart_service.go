package service

import (
	"context"
	"errors"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CartService reconciles carts against live product stock. Every operation
// that may write a cart runs under the owner's cart lock.
type CartService struct {
	carts    CartRepository
	products ProductRepository
	locker   Locker
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartRepository, products ProductRepository, locker Locker) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		locker:   locker,
		logger:   util.GetLogger(),
	}
}

// View returns the populated cart. Items whose product was deleted are
// dropped and the repaired cart is persisted.
func (s *CartService) View(ctx context.Context, userID uuid.UUID) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.View", attribute.String("user_id", userID.String()))
	defer span.End()

	release, err := s.locker.Acquire(ctx, cartLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return emptyView(), nil
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	view, err := s.populate(ctx, cart, "view")
	util.RecordError(span, err)
	return view, err
}

// Add puts quantity units of a product into the cart, creating the cart on
// first use. The resulting quantity never exceeds the product's stock.
func (s *CartService) Add(ctx context.Context, userID, productID uuid.UUID, quantity int) (view *models.CartView, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add",
		attribute.String("user_id", userID.String()),
		attribute.String("product_id", productID.String()),
		attribute.Int("quantity", quantity))
	defer span.End()
	defer func() {
		countCartMutation("add", err)
		util.RecordError(span, err)
	}()

	if quantity < 1 {
		return nil, apperrors.InvalidInput("Quantity must be at least 1")
	}

	release, err := s.locker.Acquire(ctx, cartLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, notFoundOr(err, "Product not found")
	}
	if product.Stock == 0 {
		return nil, apperrors.New(apperrors.CodeOutOfStock, "Product is out of stock")
	}

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
	} else if err != nil {
		return nil, apperrors.Internal(err)
	}

	if idx := cart.IndexOf(productID); idx >= 0 {
		newQuantity := cart.Items[idx].Quantity + quantity
		if newQuantity > product.Stock {
			return nil, insufficientStock(product.Stock)
		}
		cart.Items[idx].Quantity = newQuantity
	} else {
		if quantity > product.Stock {
			return nil, insufficientStock(product.Stock)
		}
		cart.Items = append(cart.Items, models.CartItem{ProductID: productID, Quantity: quantity})
	}

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.logger.Debug("Cart item added",
		zap.String("user_id", userID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity))

	return s.populate(ctx, cart, "add")
}

// UpdateQuantity sets the quantity of an item already in the cart
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (view *models.CartView, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity",
		attribute.String("user_id", userID.String()),
		attribute.String("product_id", productID.String()),
		attribute.Int("quantity", quantity))
	defer span.End()
	defer func() {
		countCartMutation("update", err)
		util.RecordError(span, err)
	}()

	if quantity < 1 {
		return nil, apperrors.InvalidInput("Quantity must be at least 1")
	}

	release, err := s.locker.Acquire(ctx, cartLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "Cart not found")
	}

	idx := cart.IndexOf(productID)
	if idx < 0 {
		return nil, apperrors.NotFound("Item not found in cart")
	}

	product, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		cart.Remove(productID)
		if err := s.persist(ctx, cart); err != nil {
			return nil, err
		}
		util.CartItemsPurgedTotal.WithLabelValues("update").Inc()
		return nil, apperrors.NotFound("Product no longer available")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if quantity > product.Stock {
		return nil, insufficientStock(product.Stock)
	}

	cart.Items[idx].Quantity = quantity
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, apperrors.Internal(err)
	}
	return s.populate(ctx, cart, "update")
}

// Remove drops a product from the cart. Removing an absent item is a no-op;
// a cart left empty is deleted.
func (s *CartService) Remove(ctx context.Context, userID, productID uuid.UUID) (view *models.CartView, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.Remove",
		attribute.String("user_id", userID.String()),
		attribute.String("product_id", productID.String()))
	defer span.End()
	defer func() {
		countCartMutation("remove", err)
		util.RecordError(span, err)
	}()

	release, err := s.locker.Acquire(ctx, cartLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "Cart not found")
	}

	cart.Remove(productID)
	if err := s.persist(ctx, cart); err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return emptyView(), nil
	}
	return s.populate(ctx, cart, "remove")
}

// PurgeProduct removes a deleted product from every cart holding it. Each
// cart is rewritten under its owner's cart lock.
func (s *CartService) PurgeProduct(ctx context.Context, productID uuid.UUID) (removed int64, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.PurgeProduct", attribute.String("product_id", productID.String()))
	defer span.End()
	defer func() {
		util.CartItemsPurgedTotal.WithLabelValues("event").Add(float64(removed))
		util.RecordError(span, err)
	}()

	owners, err := s.carts.ListCartOwnersWithProduct(ctx, productID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}

	for _, userID := range owners {
		ok, err := s.purgeFromCart(ctx, userID, productID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	s.logger.Info("Purged deleted product from carts",
		zap.String("product_id", productID.String()),
		zap.Int64("removed", removed))
	return removed, nil
}

func (s *CartService) purgeFromCart(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	release, err := s.locker.Acquire(ctx, cartLockKey(userID))
	if err != nil {
		return false, err
	}
	defer release()

	cart, err := s.carts.GetCartByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Internal(err)
	}
	if !cart.Remove(productID) {
		return false, nil
	}
	return true, s.persist(ctx, cart)
}

// populate joins cart items with live product data. Items whose product is
// gone are dropped and the cart is persisted.
func (s *CartService) populate(ctx context.Context, cart *models.Cart, source string) (*models.CartView, error) {
	ids := make([]uuid.UUID, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.ProductID
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	view := emptyView()
	kept := cart.Items[:0:0]
	for _, item := range cart.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		kept = append(kept, item)

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		view.Items = append(view.Items, models.CartLine{
			Product:      product,
			Quantity:     item.Quantity,
			IsOutOfStock: product.Stock == 0,
			Subtotal:     subtotal,
		})
		view.TotalPrice = view.TotalPrice.Add(subtotal)
		view.ItemCount += item.Quantity
	}

	if dropped := len(cart.Items) - len(kept); dropped > 0 {
		cart.Items = kept
		if err := s.persist(ctx, cart); err != nil {
			return nil, err
		}
		util.CartItemsPurgedTotal.WithLabelValues(source).Add(float64(dropped))
		s.logger.Info("Dropped deleted products from cart",
			zap.String("user_id", cart.UserID.String()),
			zap.Int("dropped", dropped))
	}
	return view, nil
}

// persist saves the cart or deletes it when it has no items left
func (s *CartService) persist(ctx context.Context, cart *models.Cart) error {
	if len(cart.Items) == 0 {
		if err := s.carts.DeleteCart(ctx, cart.UserID); err != nil {
			return apperrors.Internal(err)
		}
		return nil
	}
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func emptyView() *models.CartView {
	return &models.CartView{Items: []models.CartLine{}, TotalPrice: decimal.Zero}
}

func insufficientStock(stock int) error {
	return apperrors.Newf(apperrors.CodeInsufficientStock, "Only %d items available", stock)
}
