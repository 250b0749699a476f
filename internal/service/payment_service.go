package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"storefront/config"
	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxReceiptLength is the provider's limit on receipt references
const maxReceiptLength = 40

// PaymentService creates provider payment orders and verifies the payment
// confirmations clients send back.
type PaymentService struct {
	cfg       config.PaymentConfig
	gateway   PaymentGateway
	publisher EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service. gateway may be nil when
// the provider is not configured.
func NewPaymentService(cfg config.PaymentConfig, gateway PaymentGateway, publisher EventPublisher) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &PaymentService{
		cfg:       cfg,
		gateway:   gateway,
		publisher: publisher,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// CreatePaymentOrderRequest carries the amount in major currency units
type CreatePaymentOrderRequest struct {
	Amount decimal.NullDecimal `json:"amount"`
}

// CreatePaymentOrder registers an order with the provider and returns the
// provider's order object verbatim. identity may be nil for guests.
func (s *PaymentService) CreatePaymentOrder(ctx context.Context, identity *models.Identity, req CreatePaymentOrderRequest) (order map[string]interface{}, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentOrder")
	defer span.End()
	defer func() {
		util.PaymentOrdersCreatedTotal.WithLabelValues(outcome(err)).Inc()
		util.RecordError(span, err)
	}()

	if !s.cfg.Configured() || s.gateway == nil {
		return nil, apperrors.New(apperrors.CodeServiceUnavailable, "Payment provider is not configured")
	}
	if !req.Amount.Valid || !req.Amount.Decimal.IsPositive() {
		return nil, apperrors.InvalidInput("Invalid amount")
	}

	minor := MinorUnits(req.Amount.Decimal)
	if minor <= 0 {
		return nil, apperrors.InvalidInput("Invalid amount")
	}

	owner := "guest"
	if identity != nil {
		owner = identity.UserID.String()
	}
	receipt := BuildReceipt(s.now(), owner)
	span.SetAttributes(attribute.Int64("amount", minor), attribute.String("receipt", receipt))

	start := time.Now()
	order, err = s.gateway.CreateOrder(ctx, map[string]interface{}{
		"amount":          minor,
		"currency":        s.cfg.Currency,
		"receipt":         receipt,
		"payment_capture": 1,
	})
	util.PaymentProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Payment order creation failed", zap.String("receipt", receipt), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "Failed to create payment order")
	}

	s.logger.Info("Payment order created",
		zap.String("receipt", receipt),
		zap.Int64("amount", minor),
		zap.Any("provider_order_id", order["id"]))
	return order, nil
}

// VerifyPaymentRequest is the confirmation returned by the provider checkout
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// VerifyPayment checks the client signature against
// hex(HMAC-SHA256(secret, orderId|paymentId)).
func (s *PaymentService) VerifyPayment(ctx context.Context, identity *models.Identity, req VerifyPaymentRequest) (err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment", attribute.String("provider_order_id", req.OrderID))
	defer span.End()
	defer func() {
		util.PaymentVerificationsTotal.WithLabelValues(outcome(err)).Inc()
		util.RecordError(span, err)
	}()

	if s.cfg.KeySecret == "" {
		return apperrors.New(apperrors.CodeServiceUnavailable, "Payment provider is not configured")
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return apperrors.InvalidInput("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}

	if !VerifySignature(s.cfg.KeySecret, req.OrderID, req.PaymentID, req.Signature) {
		s.logger.Warn("Payment signature mismatch", zap.String("provider_order_id", req.OrderID))
		return apperrors.New(apperrors.CodeInvalidSignature, "Invalid signature")
	}

	event := &models.PaymentVerifiedEvent{
		BaseEvent:       models.NewBaseEvent(models.EventTypePaymentVerified),
		ProviderOrderID: req.OrderID,
		PaymentID:       req.PaymentID,
	}
	if identity != nil {
		event.UserID = identity.UserID
	}
	if err := s.publisher.PublishPaymentVerified(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentVerified event", zap.Error(err))
	}
	return nil
}

// Signature returns the lowercase hex HMAC-SHA256 of orderID|paymentID
func Signature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	expected := Signature(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MinorUnits converts a major unit amount to integer minor units, rounding
// half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// BuildReceipt returns order_<unixMillis>_<owner> cut to the provider limit
func BuildReceipt(now time.Time, owner string) string {
	receipt := fmt.Sprintf("order_%d_%s", now.UnixMilli(), owner)
	if len(receipt) > maxReceiptLength {
		receipt = receipt[:maxReceiptLength]
	}
	return receipt
}
