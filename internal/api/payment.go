package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createPaymentOrder(c *gin.Context) {
	var req service.CreatePaymentOrderRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	order, err := h.svc.Payments.CreatePaymentOrder(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.svc.Payments.VerifyPayment(c.Request.Context(), identityFrom(c), req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment verified successfully",
	})
}
