package models

import "time"

// CredentialRecord is the ledger row backing one issued token. Rows are never
// deleted.
//
// Expired means the record can no longer authenticate a request on its own:
// its expiry passed (flagged by the sweep or the request gate) or it was
// retired. A record that is expired but not revoked may still be renewed
// while its budget allows. Revoked is terminal: superseded by a renewal,
// replaced by a newer issuance, revoked on deactivation or logout, or out of
// renewal budget.
type CredentialRecord struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	Token         string     `db:"token" json:"-"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	Expired       bool       `db:"expired" json:"expired"`
	Revoked       bool       `db:"revoked" json:"revoked"`
	RevokedAt     *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RefreshCycles int        `db:"refresh_cycles" json:"refresh_cycles"`
	IssuedAt      time.Time  `db:"issued_at" json:"issued_at"`
	ParentID      *string    `db:"parent_id" json:"parent_id,omitempty"`
	IPAddress     string     `db:"ip_address" json:"ip_address"`
	UserAgent     string     `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// PastExpiry reports whether the record's absolute expiry is at or before now.
func (r *CredentialRecord) PastExpiry(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Renewable reports whether the budget still allows a renewal. A budget of
// exactly one is the last use and is not renewable.
func (r *CredentialRecord) Renewable() bool {
	return r.RefreshCycles > 1
}

// IssuedCredential is what issuance and renewal hand back to the caller.
type IssuedCredential struct {
	Token         string
	RecordID      string
	RefreshCycles int
	ExpiresAt     time.Time
	TTL           time.Duration
}

// ExpiresInMinutes reports the credential lifetime in whole minutes.
func (c *IssuedCredential) ExpiresInMinutes() int {
	return int(c.TTL / time.Minute)
}
