package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store/memstore"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (nopPublisher) PublishReviewAdded(context.Context, *models.ReviewAddedEvent) error {
	return nil
}

func (nopPublisher) PublishPaymentVerified(context.Context, *models.PaymentVerifiedEvent) error {
	return nil
}

func (nopPublisher) PublishProductChanged(context.Context, *models.ProductChangedEvent) error {
	return nil
}

type stubGateway struct{}

func (stubGateway) CreateOrder(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"id": "order_test", "amount": data["amount"], "currency": data["currency"]}, nil
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

const (
	paymentSecret = "rzp_secret"
	sellerEmail   = "s@example.com"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
}

func newTestServer(t *testing.T, readiness map[string]Pinger) *testServer {
	t.Helper()
	st := memstore.New()
	locker := service.NewLocalLocker(time.Second)
	pub := nopPublisher{}
	authCfg := config.AuthConfig{
		JWTSecret: "test", JWTIssuer: "storefront", JWTExpiration: time.Hour,
		SellerEmails: []string{sellerEmail},
	}
	payCfg := config.PaymentConfig{KeyID: "rzp_key", KeySecret: paymentSecret, Currency: "INR"}

	h := NewHandler(Services{
		Cart:     service.NewCartService(st, st, locker),
		Catalog:  service.NewCatalogService(st, nil, pub),
		Reviews:  service.NewReviewService(st, nil, pub),
		Orders:   service.NewOrderService(st, st, st, locker, pub),
		Payments: service.NewPaymentService(payCfg, stubGateway{}, pub),
		Auth:     service.NewAuthService(st, authCfg),
	}, "http://localhost:5173", readiness)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{t: t, router: router, store: st}
}

func (s *testServer) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "Test User", "email": email, "password": "secret1",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var resp service.AuthResponse
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (s *testServer) product(name, price string, stock int) *models.Product {
	s.t.Helper()
	p := &models.Product{
		ID: uuid.New(), Name: name, Price: decimal.RequireFromString(price),
		Category: "Electronics", Stock: stock, CreatedAt: time.Now().UTC(),
	}
	require.NoError(s.t, s.store.CreateProduct(context.Background(), p))
	return p
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/health", "/api/health", "/ready"} {
		w := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestReadyReportsFailedDependency(t *testing.T) {
	s := newTestServer(t, map[string]Pinger{"redis": downPinger{}})
	w := s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode(t, w)["checks"].(map[string]interface{})["redis"])
}

func TestCartRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"])

	w = s.do(http.MethodGet, "/api/cart", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("shopper@example.com")
	p := s.product("Headset", "25.50", 5)

	w := s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": p.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 3, body["itemCount"])
	assert.EqualValues(t, 76.5, body["totalPrice"])

	w = s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": p.ID, "quantity": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Only 5 items available", body["message"])
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])

	w = s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": p.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decode(t, w)["itemCount"])

	w = s.do(http.MethodPut, "/api/cart/"+p.ID.String(), token, gin.H{"quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["itemCount"])

	w = s.do(http.MethodDelete, "/api/cart/"+p.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["itemCount"])

	w = s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartItemRoutesWithUnparseableID(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("shopper@example.com")
	p := s.product("Headset", "25.50", 5)

	w := s.do(http.MethodPut, "/api/cart/bogus", token, gin.H{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Cart not found", decode(t, w)["message"])

	w = s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/api/cart/bogus", token, gin.H{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Item not found in cart", decode(t, w)["message"])

	w = s.do(http.MethodDelete, "/api/cart/bogus", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 2, body["itemCount"])
	assert.Len(t, body["items"], 1)
}

func TestProductsPublicAndSellerRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	customer := s.register("c@example.com")
	seller := s.register(sellerEmail)

	w := s.do(http.MethodPost, "/api/products", customer, gin.H{"name": "Phone", "price": 300})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/products", seller, gin.H{"name": "Phone", "price": 300, "stock": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = s.do(http.MethodGet, "/api/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["inStock"])

	w = s.do(http.MethodGet, "/api/products?minPrice=100&maxPrice=400&search=pho", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = s.do(http.MethodGet, "/api/products?minPrice=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/products/categories", "", nil)
	assert.JSONEq(t, `["Electronics"]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/products/recommendations?limit=x", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, "/api/products/"+id, seller, gin.H{"stock": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["inStock"])

	w = s.do(http.MethodDelete, "/api/products/"+id, seller, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/products/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodGet, "/api/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelfAssignedSellerRoleIsIgnored(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "Mallory", "email": "m@example.com", "password": "secret1", "role": "seller",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "customer", body["role"])

	w = s.do(http.MethodPost, "/api/products", body["token"].(string), gin.H{"name": "Phone", "price": 300})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateProductValidationErrors(t *testing.T) {
	s := newTestServer(t, nil)
	seller := s.register(sellerEmail)

	w := s.do(http.MethodPost, "/api/products", seller, gin.H{"name": "X", "price": 1, "discount": 150})
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs := decode(t, w)["errors"].([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, "discount", errs[0].(map[string]interface{})["field"])
}

func TestReviews(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("r@example.com")
	p := s.product("Speaker", "40", 3)

	w := s.do(http.MethodPost, "/api/reviews", token, gin.H{"productId": p.ID, "rating": 6, "comment": "loud"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/reviews", token, gin.H{"productId": p.ID, "rating": 4, "comment": "loud"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Review added", decode(t, w)["message"])

	w = s.do(http.MethodPost, "/api/reviews", token, gin.H{"productId": p.ID, "rating": 5, "comment": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/reviews/product/"+p.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reviews []models.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)
	assert.Equal(t, "Test User", reviews[0].UserName)
}

func TestOrders(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("o@example.com")
	other := s.register("other@example.com")
	p := s.product("Chair", "80", 4)

	w := s.do(http.MethodPost, "/api/orders", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cart is empty", decode(t, w)["message"])

	w = s.do(http.MethodPost, "/api/cart", token, gin.H{"productId": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)

	body := gin.H{"shippingAddress": gin.H{"fullName": "Ada", "city": "Pune"}}
	w = s.do(http.MethodPost, "/api/orders", token, body, "Idempotency-Key", "abc-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.EqualValues(t, 160, order["totalAmount"])
	id := order["id"].(string)

	w = s.do(http.MethodPost, "/api/orders", token, body, "Idempotency-Key", "abc-1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = s.do(http.MethodGet, "/api/cart", token, nil)
	assert.EqualValues(t, 0, decode(t, w)["itemCount"])

	w = s.do(http.MethodGet, "/api/orders", token, nil)
	var orders []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)

	w = s.do(http.MethodGet, "/api/orders/"+id, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/orders/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodGet, "/api/orders/xyz", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayment(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register("p@example.com")

	w := s.do(http.MethodPost, "/api/payment/create-order", "", gin.H{"amount": 12.34})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1234, decode(t, w)["amount"])

	w = s.do(http.MethodPost, "/api/payment/create-order", "", gin.H{"amount": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sig := service.Signature(paymentSecret, "order_test", "pay_1")
	w = s.do(http.MethodPost, "/api/payment/verify", token, gin.H{
		"razorpay_order_id": "order_test", "razorpay_payment_id": "pay_1", "razorpay_signature": sig,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])

	w = s.do(http.MethodPost, "/api/payment/verify", token, gin.H{
		"razorpay_order_id": "order_test", "razorpay_payment_id": "pay_2", "razorpay_signature": sig,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid signature", body["message"])
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("a@example.com")

	w := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "Dup", "email": "a@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", decode(t, w)["message"])

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@example.com", "password": "nope123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)

	w = s.do(http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode(t, w)
	assert.Equal(t, "a@example.com", profile["email"])
	assert.NotContains(t, profile, "passwordHash")

	w = s.do(http.MethodPost, "/api/auth/login", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
