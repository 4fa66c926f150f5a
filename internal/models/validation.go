package models

// ValidationResult is the outcome of checking a bearer token at the request
// gate. It is one of Accept, RenewalRequired or Reject.
type ValidationResult interface {
	validationResult()
}

// Accept lets the request proceed as the principal.
type Accept struct {
	PrincipalID string
	RecordID    string
	IsAdmin     bool
}

// RenewalRequired means the credential lapsed but its budget still allows a
// silent renewal.
type RenewalRequired struct {
	PrincipalID string
	RecordID    string
	Budget      int
}

// Reject is a fatal outcome; the client must log in again.
type Reject struct {
	Kind RejectKind
}

func (Accept) validationResult()          {}
func (RenewalRequired) validationResult() {}
func (Reject) validationResult()          {}

// RejectKind names why a credential was refused.
type RejectKind string

const (
	RejectMissingToken           RejectKind = "MissingToken"
	RejectInvalidToken           RejectKind = "InvalidToken"
	RejectPrincipalInactive      RejectKind = "PrincipalInactive"
	RejectNoActiveCredential     RejectKind = "NoActiveCredential"
	RejectCredentialExhausted    RejectKind = "CredentialExhausted"
	RejectRenewalBudgetExhausted RejectKind = "RenewalBudgetExhausted"
)
