package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends a success response with optional metadata.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Token writes an issuance or renewal body. Credential payloads use the flat
// shape the storefront client reads instead of the envelope.
func Token(c *gin.Context, status int, message string, credential *models.IssuedCredential, user *models.UserInfo) {
	noStore(c)
	c.JSON(status, dto.TokenResponse{
		Success:          true,
		Message:          message,
		Token:            credential.Token,
		RefreshCycles:    credential.RefreshCycles,
		ExpiresInMinutes: credential.ExpiresInMinutes(),
		User:             user,
	})
}

// AuthFailure writes a credential rejection body.
func AuthFailure(c *gin.Context, status int, body dto.AuthFailure) {
	noStore(c)
	c.JSON(status, body)
}

// AuthError maps err onto the credential rejection shape.
func AuthError(c *gin.Context, err error) {
	status, body := dto.FailureFromError(err)
	AuthFailure(c, status, body)
}
