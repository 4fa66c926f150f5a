// Package token signs and reads the storefront's bearer credentials.
//
// A token embeds the principal id, the credential record id it was issued
// for, and an expiry claim. Two read paths exist and they are not
// interchangeable: VerifyAndDecode checks the HMAC signature and is used by
// every request, DecodeUnverified only extracts claims and is reserved for
// locating the record during renewal.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned for tokens that are not structurally valid JWTs
	// or lack the claims the storefront requires.
	ErrMalformed = errors.New("token: malformed")
	// ErrSignature is returned when the signature or algorithm does not match.
	ErrSignature = errors.New("token: signature invalid")
)

// Claims is the JWT payload carried by a storefront credential.
type Claims struct {
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// RecordID returns the credential record the token was minted for.
func (c *Claims) RecordID() string {
	return c.ID
}

// Decoded is the result of reading a token. Expired reports whether the exp
// claim has already passed; expiry is not a signature failure, the credential
// ledger decides what an expired token still allows.
type Decoded struct {
	Claims  *Claims
	Expired bool
}

// Codec issues and reads HS256 tokens.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec builds a codec. An empty issuer disables the issuer check.
func NewCodec(secret, issuer string) *Codec {
	return &Codec{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// WithClock returns a copy of the codec that reads the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	clone := *c
	clone.now = now
	return &clone
}

// Sign mints a token for the principal and record expiring at expiresAt.
func (c *Codec) Sign(principalID, recordID string, isAdmin bool, issuedAt, expiresAt time.Time) (string, error) {
	if principalID == "" || recordID == "" {
		return "", fmt.Errorf("sign token: %w", ErrMalformed)
	}
	claims := &Claims{
		UserID:  principalID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        recordID,
			Issuer:    c.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAndDecode checks the signature and returns the claims. A token whose
// only defect is an elapsed exp claim is returned with Expired set.
func (c *Codec) VerifyAndDecode(raw string) (*Decoded, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)

	expired := false
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired) && tok != nil && onlyExpired(err):
			expired = true
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrSignature, err)
		}
	}

	if err := checkRequired(claims); err != nil {
		return nil, err
	}
	return &Decoded{Claims: claims, Expired: expired}, nil
}

// DecodeUnverified extracts claims without checking the signature or any time
// claim. It must only be used to locate a credential record for renewal; the
// caller is responsible for binding the result to a stored record.
func (c *Codec) DecodeUnverified(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := checkRequired(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// onlyExpired reports whether err carries no validation failure other than
// expiry. golang-jwt joins validation errors, so a forged signature on an old
// token would still surface ErrTokenSignatureInvalid alongside it.
func onlyExpired(err error) bool {
	for _, other := range []error{
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func checkRequired(claims *Claims) error {
	if claims.UserID == "" || claims.ID == "" {
		return fmt.Errorf("%w: missing userId or jti", ErrMalformed)
	}
	if claims.Subject != "" && claims.Subject != claims.UserID {
		return fmt.Errorf("%w: subject mismatch", ErrMalformed)
	}
	return nil
}
