package api

import (
	"errors"
	"io"

	"storefront/internal/apperrors"
	"storefront/internal/auth"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// requireAuth rejects requests without a valid bearer token
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.abort(c, apperrors.Unauthorized("Not authorized, no token"))
			return
		}
		identity, err := h.svc.Auth.Authenticate(token)
		if err != nil {
			h.abort(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// optionalAuth attaches the identity when a valid token is present and
// treats the caller as a guest otherwise.
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
			if identity, err := h.svc.Auth.Authenticate(token); err == nil {
				c.Set(identityKey, identity)
			}
		}
		c.Next()
	}
}

// requireSeller must run after requireAuth
func (h *Handler) requireSeller() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if identity == nil || !identity.IsSeller() {
			h.abort(c, apperrors.New(apperrors.CodeForbidden, "Seller access required"))
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) *models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*models.Identity)
	return identity
}

// bindJSON decodes the request body. An empty body leaves v untouched so
// that the service reports the missing fields.
func bindJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(apperrors.CodeInvalidInput, err, "Invalid request body")
	}
	return nil
}

func (h *Handler) abort(c *gin.Context, err error) {
	h.respondError(c, err)
	c.Abort()
}

// respondError writes {message, code} with the status of the error code.
// Internal causes are logged and never returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Internal(err)
	}

	code := typed.Code()
	if code == apperrors.CodeInternal {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := gin.H{
		"message": typed.Message(),
		"code":    code,
	}
	if fields := typed.Fields(); len(fields) > 0 {
		body["errors"] = fields
	}
	if code == apperrors.CodeInvalidSignature {
		body["success"] = false
	}
	c.JSON(apperrors.HTTPStatus(code), body)
}
