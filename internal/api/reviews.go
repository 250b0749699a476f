package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) addReview(c *gin.Context) {
	var req service.AddReviewRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	product, err := h.svc.Reviews.AddReview(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Review added",
		"rating":      product.Rating,
		"reviewCount": product.ReviewCount,
	})
}

func (h *Handler) listReviews(c *gin.Context) {
	reviews, err := h.svc.Reviews.ListReviews(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}
