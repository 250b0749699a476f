package api

import (
	"net/http"

	"storefront/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.svc.Cart.View(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	if req.ProductID == "" {
		h.respondError(c, apperrors.InvalidInput("Product ID is required"))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.respondError(c, apperrors.InvalidInput("Invalid product ID"))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	view, err := h.svc.Cart.Add(c.Request.Context(), identityFrom(c).UserID, productID, quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// cartItemID maps an unparseable path id to uuid.Nil, which never matches a
// cart line, so the request takes the item-not-found path.
func cartItemID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID := cartItemID(c)
	var req updateCartItemRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	quantity := 0
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	view, err := h.svc.Cart.UpdateQuantity(c.Request.Context(), identityFrom(c).UserID, productID, quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID := cartItemID(c)

	view, err := h.svc.Cart.Remove(c.Request.Context(), identityFrom(c).UserID, productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
