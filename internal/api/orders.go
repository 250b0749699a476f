package api

import (
	"net/http"
	"strings"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder handles order creation. The Idempotency-Key header makes
// retries return the order created by the first attempt.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	order, err := h.svc.Orders.CreateOrder(c.Request.Context(), identityFrom(c).UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), identityFrom(c).UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
