package models

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest creates a new storefront account.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FullName  string `json:"full_name" validate:"required,max=120"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RenewRequest asks for a successor credential. TokenID is optional; when it
// is empty the record is located from the presented token.
type RenewRequest struct {
	TokenID   string `json:"tokenId"`
	Token     string `json:"-"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// SetActiveRequest toggles a principal's active flag.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// RequestMeta carries client metadata for audit rows.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// Principal is the identity the request gate attaches to the gin context.
type Principal struct {
	UserID   string
	RecordID string
	IsAdmin  bool
}

// AuthResult is returned by login, registration and reactivation.
type AuthResult struct {
	Credential *IssuedCredential
	User       UserInfo
}
