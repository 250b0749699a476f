package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	orders *OrderService
	carts  *CartService
	store  *memstore.Store
	pub    *recordingPublisher
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	st := memstore.New()
	locker := NewLocalLocker(time.Second)
	pub := &recordingPublisher{}
	return &orderFixture{
		orders: NewOrderService(st, st, st, locker, pub),
		carts:  NewCartService(st, st, locker),
		store:  st,
		pub:    pub,
	}
}

func TestCreateOrderSnapshotsCart(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := uuid.New()
	mouse := addProduct(t, f.store, "Mouse", "19.99", 10)
	pad := addProduct(t, f.store, "Mouse Pad", "5.25", 10)

	_, err := f.carts.Add(ctx, user, mouse.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.Add(ctx, user, pad.ID, 3)
	require.NoError(t, err)

	order, err := f.orders.CreateOrder(ctx, user, CreateOrderRequest{
		ShippingAddress: models.Address{FullName: "Ada", City: "London"},
	})
	require.NoError(t, err)

	require.Len(t, order.Lines, 2)
	assert.Equal(t, "Mouse", order.Lines[0].Name)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("55.73")))
	assert.Equal(t, "London", order.ShippingAddress.City)

	view, err := f.carts.View(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	require.Len(t, f.pub.orders, 1)
	assert.Equal(t, order.ID, f.pub.orders[0].OrderID)
	assert.Len(t, f.pub.orders[0].Items, 2)
}

func TestCreateOrderKeepsPriceAtOrderTime(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := uuid.New()
	p := addProduct(t, f.store, "Lamp", "40", 3)

	_, err := f.carts.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)
	order, err := f.orders.CreateOrder(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)

	stored, err := f.store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	stored.Price = decimal.RequireFromString("99")
	require.NoError(t, f.store.UpdateProduct(ctx, stored))

	got, err := f.orders.GetOrder(ctx, user, order.ID.String())
	require.NoError(t, err)
	assert.True(t, got.Lines[0].Price.Equal(decimal.RequireFromString("40")))
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.orders.CreateOrder(context.Background(), uuid.New(), CreateOrderRequest{})
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
	assert.Equal(t, "Cart is empty", apperrors.As(err).Message())
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := uuid.New()
	p := addProduct(t, f.store, "Cable", "9", 10)

	_, err := f.carts.Add(ctx, user, p.ID, 1)
	require.NoError(t, err)

	req := CreateOrderRequest{IdempotencyKey: "checkout-1"}
	first, err := f.orders.CreateOrder(ctx, user, req)
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(ctx, user, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	orders, err := f.orders.ListOrders(ctx, user)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Len(t, f.pub.orders, 1)
}

func TestCreateOrderRejectsLongIdempotencyKey(t *testing.T) {
	f := newOrderFixture(t)
	key := make([]byte, 129)
	for i := range key {
		key[i] = 'k'
	}
	_, err := f.orders.CreateOrder(context.Background(), uuid.New(), CreateOrderRequest{IdempotencyKey: string(key)})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
}

func TestCreateOrderSkipsDeletedProducts(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := uuid.New()
	kept := addProduct(t, f.store, "Charger", "25", 5)
	gone := addProduct(t, f.store, "Adapter", "12", 5)

	_, err := f.carts.Add(ctx, user, kept.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.Add(ctx, user, gone.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteProduct(ctx, gone.ID))

	order, err := f.orders.CreateOrder(ctx, user, CreateOrderRequest{})
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, kept.ID, order.Lines[0].ProductID)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(25)))
}

func TestCreateOrderOnlyDeletedProducts(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := uuid.New()
	gone := addProduct(t, f.store, "Adapter", "12", 5)

	_, err := f.carts.Add(ctx, user, gone.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteProduct(ctx, gone.ID))

	_, err = f.orders.CreateOrder(ctx, user, CreateOrderRequest{})
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
}

func TestGetOrderScopedToOwner(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	p := addProduct(t, f.store, "Desk", "120", 2)

	_, err := f.carts.Add(ctx, owner, p.ID, 1)
	require.NoError(t, err)
	order, err := f.orders.CreateOrder(ctx, owner, CreateOrderRequest{})
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, uuid.New(), order.ID.String())
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = f.orders.GetOrder(ctx, owner, "not-a-uuid")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	_, err = f.orders.GetOrder(ctx, owner, uuid.NewString())
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}
