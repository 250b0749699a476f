package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_ID", "")
	t.Setenv("RAZORPAY_KEY_SECRET", "")
	t.Setenv("CART_LOCK_TTL_SECONDS", "")

	cfg := Load()

	assert.Equal(t, "INR", cfg.Payment.Currency)
	assert.False(t, cfg.Payment.Configured())
	assert.Equal(t, 10*time.Second, cfg.Cart.LockTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "shh")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Payment.Configured())
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTExpiration)
}

func TestGetBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "sometimes")
	assert.True(t, getBool("REDIS_ENABLED", true))
}

func TestSellerEmails(t *testing.T) {
	t.Setenv("SELLER_EMAILS", " Shop@Example.com, ,ops@example.com")

	cfg := Load()

	assert.Equal(t, []string{"Shop@Example.com", "ops@example.com"}, cfg.Auth.SellerEmails)
	assert.True(t, cfg.Auth.IsSellerEmail("shop@example.com"))
	assert.False(t, cfg.Auth.IsSellerEmail("buyer@example.com"))
	assert.False(t, cfg.Auth.IsSellerEmail(""))
}
