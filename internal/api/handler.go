package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles the application services served over HTTP
type Services struct {
	Cart     *service.CartService
	Catalog  *service.CatalogService
	Reviews  *service.ReviewService
	Orders   *service.OrderService
	Payments *service.PaymentService
	Auth     *service.AuthService
}

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc           Services
	allowedOrigin string
	readiness     map[string]Pinger
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler. readiness may be nil.
func NewHandler(svc Services, allowedOrigin string, readiness map[string]Pinger) *Handler {
	return &Handler{
		svc:           svc,
		allowedOrigin: allowedOrigin,
		readiness:     readiness,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{h.allowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/health", h.healthCheck)

	cart := api.Group("/cart", h.requireAuth())
	{
		cart.GET("", h.getCart)
		cart.POST("", h.addToCart)
		cart.PUT("/:productId", h.updateCartItem)
		cart.DELETE("/:productId", h.removeCartItem)
	}

	products := api.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/categories", h.listCategories)
		products.GET("/recommendations", h.recommendations)
		products.GET("/:id", h.getProduct)
		products.POST("", h.requireAuth(), h.requireSeller(), h.createProduct)
		products.PUT("/:id", h.requireAuth(), h.requireSeller(), h.updateProduct)
		products.DELETE("/:id", h.requireAuth(), h.requireSeller(), h.deleteProduct)
	}

	reviews := api.Group("/reviews")
	{
		reviews.POST("", h.requireAuth(), h.addReview)
		reviews.GET("/product/:productId", h.listReviews)
	}

	orders := api.Group("/orders", h.requireAuth())
	{
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
	}

	payment := api.Group("/payment")
	{
		payment.POST("/create-order", h.optionalAuth(), h.createPaymentOrder)
		payment.POST("/verify", h.requireAuth(), h.verifyPayment)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.GET("/profile", h.requireAuth(), h.profile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, dep := range h.readiness {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
