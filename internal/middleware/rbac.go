package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
	"github.com/noah-isme/storefront-api/pkg/response"
)

// RequireAdmin lets only administrators through. It must run after Gate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			status, body := dto.RejectFailure(models.RejectMissingToken)
			response.AuthFailure(c, status, body)
			c.Abort()
			return
		}
		if !principal.IsAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSelfOrAdmin allows a principal to act on its own :id, and admins on any.
func RequireSelfOrAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			status, body := dto.RejectFailure(models.RejectMissingToken)
			response.AuthFailure(c, status, body)
			c.Abort()
			return
		}
		if principal.IsAdmin || c.Param(param) == principal.UserID {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
