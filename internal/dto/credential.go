package dto

import (
	"errors"
	"net/http"

	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
)

// TokenResponse is returned by login, registration, reactivation and renewal.
// The storefront client reads token, refreshCycles and expiresInMinutes.
type TokenResponse struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	Token            string           `json:"token"`
	RefreshCycles    int              `json:"refreshCycles"`
	ExpiresInMinutes int              `json:"expiresInMinutes"`
	User             *models.UserInfo `json:"user,omitempty"`
}

// AuthFailure is the rejection body the client's renewal agent branches on.
// requiresRefresh and requiresLogin are omitted when false; is_expired is
// always present.
type AuthFailure struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RequiresRefresh bool   `json:"requiresRefresh,omitempty"`
	RequiresLogin   bool   `json:"requiresLogin,omitempty"`
	IsExpired       bool   `json:"is_expired"`
}

var rejectErrors = map[models.RejectKind]*appErrors.Error{
	models.RejectMissingToken:           appErrors.ErrMissingToken,
	models.RejectInvalidToken:           appErrors.ErrInvalidToken,
	models.RejectPrincipalInactive:      appErrors.ErrPrincipalInactive,
	models.RejectNoActiveCredential:     appErrors.ErrNoActiveCredential,
	models.RejectCredentialExhausted:    appErrors.ErrCredentialExhausted,
	models.RejectRenewalBudgetExhausted: appErrors.ErrRenewalBudgetExhausted,
}

// expiredKinds mark rejections caused by a lapsed or spent credential rather
// than a bad or orphaned token.
var expiredKinds = map[models.RejectKind]bool{
	models.RejectNoActiveCredential:     true,
	models.RejectCredentialExhausted:    true,
	models.RejectRenewalBudgetExhausted: true,
}

// RejectFailure renders a fatal gate outcome.
func RejectFailure(kind models.RejectKind) (int, AuthFailure) {
	message := appErrors.ErrInvalidToken.Message
	if appErr, ok := rejectErrors[kind]; ok {
		message = appErr.Message
	}
	return http.StatusUnauthorized, AuthFailure{
		Success:       false,
		Message:       message,
		RequiresLogin: true,
		IsExpired:     expiredKinds[kind],
	}
}

// RenewalFailure renders the recoverable RenewalRequired outcome.
func RenewalFailure() (int, AuthFailure) {
	return http.StatusUnauthorized, AuthFailure{
		Success:         false,
		Message:         appErrors.ErrRenewalRequired.Message,
		RequiresRefresh: true,
		IsExpired:       true,
	}
}

// InternalFailure hides store errors behind a generic 500.
func InternalFailure() (int, AuthFailure) {
	return http.StatusInternalServerError, AuthFailure{
		Success: false,
		Message: appErrors.ErrInternal.Message,
	}
}

// FailureFromError maps a credential service error onto the wire shape.
// Errors outside the credential taxonomy keep their own status and message
// without any renewal flags.
func FailureFromError(err error) (int, AuthFailure) {
	if errors.Is(err, appErrors.ErrRenewalRequired) {
		return RenewalFailure()
	}
	for kind, sentinel := range rejectErrors {
		if errors.Is(err, sentinel) {
			return RejectFailure(kind)
		}
	}
	if errors.Is(err, appErrors.ErrPrincipalNotFound) {
		return RejectFailure(models.RejectPrincipalInactive)
	}
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		return InternalFailure()
	}
	return appErr.Status, AuthFailure{Success: false, Message: appErr.Message}
}
