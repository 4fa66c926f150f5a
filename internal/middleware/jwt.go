package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/pkg/logger"
	"github.com/noah-isme/storefront-api/pkg/response"
)

const (
	// ContextPrincipalKey is the gin context key storing the models.Principal.
	ContextPrincipalKey = "principal"
	// ContextRenewalTokenKey stores the raw bearer token on the renewal route.
	ContextRenewalTokenKey = "renewalToken"
)

// CredentialValidator is the request gate's view of the credential service.
type CredentialValidator interface {
	Validate(ctx context.Context, raw string) (models.ValidationResult, error)
}

// Gate protects routes with the full credential check. Every outcome other
// than Accept is written as the rejection body and aborts the chain; panics
// inside validation become a 500 instead of escaping the gate.
func Gate(validator CredentialValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("request gate panic", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
				status, body := dto.InternalFailure()
				response.AuthFailure(c, status, body)
				c.Abort()
			}
		}()

		raw, kind, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			status, body := dto.RejectFailure(kind)
			response.AuthFailure(c, status, body)
			c.Abort()
			return
		}

		result, err := validator.Validate(c.Request.Context(), raw)
		if err != nil {
			log.Error("credential validation failed", zap.Error(err))
			status, body := dto.InternalFailure()
			response.AuthFailure(c, status, body)
			c.Abort()
			return
		}

		switch r := result.(type) {
		case models.Accept:
			c.Set(ContextPrincipalKey, models.Principal{UserID: r.PrincipalID, RecordID: r.RecordID, IsAdmin: r.IsAdmin})
			c.Set(logger.PrincipalKey, r.PrincipalID)
			c.Next()
		case models.RenewalRequired:
			c.Set(logger.PrincipalKey, r.PrincipalID)
			status, body := dto.RenewalFailure()
			response.AuthFailure(c, status, body)
			c.Abort()
		case models.Reject:
			status, body := dto.RejectFailure(r.Kind)
			response.AuthFailure(c, status, body)
			c.Abort()
		default:
			status, body := dto.InternalFailure()
			response.AuthFailure(c, status, body)
			c.Abort()
		}
	}
}

// RenewalGate guards the renewal route. It only requires a well-formed bearer
// header; expiry and budget are decided by the renewal itself.
func RenewalGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, kind, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			status, body := dto.RejectFailure(kind)
			response.AuthFailure(c, status, body)
			c.Abort()
			return
		}
		c.Set(ContextRenewalTokenKey, raw)
		c.Next()
	}
}

// PrincipalFrom returns the principal the gate attached.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}

func bearerToken(header string) (string, models.RejectKind, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", models.RejectMissingToken, false
	}
	if strings.EqualFold(header, "Bearer") {
		return "", models.RejectMissingToken, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", models.RejectInvalidToken, false
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", models.RejectMissingToken, false
	}
	return raw, "", true
}
