package api

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) listProducts(c *gin.Context) {
	filter := models.ProductFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Category: strings.TrimSpace(c.Query("category")),
	}
	var err error
	if filter.MinPrice, err = priceParam(c, "minPrice"); err != nil {
		h.respondError(c, err)
		return
	}
	if filter.MaxPrice, err = priceParam(c, "maxPrice"); err != nil {
		h.respondError(c, err)
		return
	}

	products, err := h.svc.Catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.svc.Catalog.Categories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) recommendations(c *gin.Context) {
	// unparsable limits fall back to the default
	limit, _ := strconv.Atoi(c.Query("limit"))

	products, err := h.svc.Catalog.Recommendations(c.Request.Context(), strings.TrimSpace(c.Query("category")), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var input service.ProductInput
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}

	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var update service.ProductUpdate
	if err := bindJSON(c, &update); err != nil {
		h.respondError(c, err)
		return
	}

	product, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product removed"})
}

func priceParam(c *gin.Context, name string) (decimal.NullDecimal, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, apperrors.Newf(apperrors.CodeInvalidInput, "Invalid %s", name)
	}
	return decimal.NewNullDecimal(value), nil
}
