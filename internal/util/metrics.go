package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart add/update/remove operations by outcome",
	}, []string{"operation", "result"})

	CartItemsPurgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_items_purged_total",
		Help: "Cart items removed because their product no longer exists",
	}, []string{"source"})

	CartLockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_lock_wait_seconds",
		Help:    "Time spent waiting for the per-cart lock",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	ReviewsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_added_total",
		Help: "Total number of reviews added",
	})

	ReviewsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_rejected_total",
		Help: "Total number of rejected reviews",
	}, []string{"reason"})

	PaymentOrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orders_created_total",
		Help: "Payment provider order creations by outcome",
	}, []string{"result"})

	PaymentVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment signature verifications by outcome",
	}, []string{"result"})

	PaymentProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment provider order creation",
		Buckets: prometheus.DefBuckets,
	})

	ProductCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_lookups_total",
		Help: "Product cache lookups by outcome",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
