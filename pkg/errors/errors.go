package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors still compare
// equal to their predefined sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTooManyRequests    = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Credential lifecycle failures. Every one of them is surfaced to clients as a
// 401 carrying the renewal/login flags; see dto.AuthFailure.
var (
	ErrMissingToken           = New("MISSING_TOKEN", http.StatusUnauthorized, "authentication token is required")
	ErrInvalidToken           = New("INVALID_TOKEN", http.StatusUnauthorized, "invalid authentication token")
	ErrPrincipalNotFound      = New("PRINCIPAL_NOT_FOUND", http.StatusUnauthorized, "user not found or inactive")
	ErrPrincipalInactive      = New("PRINCIPAL_INACTIVE", http.StatusUnauthorized, "user not found or inactive")
	ErrNoActiveCredential     = New("NO_ACTIVE_CREDENTIAL", http.StatusUnauthorized, "token expired or revoked, please log in again")
	ErrRenewalRequired        = New("RENEWAL_REQUIRED", http.StatusUnauthorized, "token expired, refresh required")
	ErrCredentialExhausted    = New("CREDENTIAL_EXHAUSTED", http.StatusUnauthorized, "session expired, please log in again")
	ErrRenewalBudgetExhausted = New("RENEWAL_BUDGET_EXHAUSTED", http.StatusUnauthorized, "refresh limit reached, please log in again")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
