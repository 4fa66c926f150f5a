package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/repository"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
	"github.com/noah-isme/storefront-api/pkg/token"
)

const (
	// DefaultRenewalBudget is the refresh cycle count of a freshly issued credential.
	DefaultRenewalBudget = 5
	// DefaultCredentialTTL is the lifetime of every issued or renewed credential.
	DefaultCredentialTTL = 60 * time.Minute
)

type credentialLedger interface {
	FindLatestNonExpired(ctx context.Context, userID string) (*models.CredentialRecord, error)
	FindByID(ctx context.Context, id string) (*models.CredentialRecord, error)
	ListByPrincipal(ctx context.Context, userID string, limit int) ([]models.CredentialRecord, error)
	MarkExpiredIfNotExpired(ctx context.Context, id string) (int64, error)
	BulkExpireByPrincipal(ctx context.Context, userID string) (int64, error)
	MarkLapsed(ctx context.Context, id string) error
	ExpireLapsedForPrincipal(ctx context.Context, userID string, now time.Time) (int64, error)
	Issue(ctx context.Context, rec *models.CredentialRecord) (int64, error)
	Supersede(ctx context.Context, oldID string, successor *models.CredentialRecord) error
}

type activePrincipalFinder interface {
	FindActiveByID(ctx context.Context, id string) (*models.User, error)
}

// CredentialConfig tunes issuance and validation.
type CredentialConfig struct {
	TTL             time.Duration
	RenewalBudget   int
	SweepOnValidate bool
}

// CredentialService owns the credential lifecycle: issuance, per-request
// validation, bounded renewal and revocation. The ledger is the source of
// truth; a token only carries authority while its record is current.
type CredentialService struct {
	ledger     credentialLedger
	principals activePrincipalFinder
	codec      *token.Codec
	config     CredentialConfig
	auditor    Auditor
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewCredentialService constructs the lifecycle manager. auditor and metrics may be nil.
func NewCredentialService(ledger credentialLedger, principals activePrincipalFinder, codec *token.Codec, config CredentialConfig, auditor Auditor, metrics *MetricsService, logger *zap.Logger) *CredentialService {
	if config.TTL <= 0 {
		config.TTL = DefaultCredentialTTL
	}
	if config.RenewalBudget <= 0 {
		config.RenewalBudget = DefaultRenewalBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		ledger:     ledger,
		principals: principals,
		codec:      codec,
		config:     config,
		auditor:    auditor,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a fresh credential with a full renewal budget, revoking every
// record the principal still holds.
func (s *CredentialService) Issue(ctx context.Context, principalID string, meta models.RequestMeta) (*models.IssuedCredential, error) {
	user, err := s.principals.FindActiveByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPrincipalNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	now := s.now()
	rec := &models.CredentialRecord{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		ExpiresAt:     now.Add(s.config.TTL),
		RefreshCycles: s.config.RenewalBudget,
		IssuedAt:      now,
		CreatedAt:     now,
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
	}
	if rec.Token, err = s.codec.Sign(user.ID, rec.ID, user.IsAdmin, now, rec.ExpiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	revoked, err := s.ledger.Issue(ctx, rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPrincipalNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist credential")
	}

	s.metrics.RecordIssue()
	s.metrics.RecordRevocations("superseded_by_login", revoked)
	s.logger.Info("credential issued",
		zap.String("principal_id", user.ID),
		zap.String("record_id", rec.ID),
		zap.Int("budget", rec.RefreshCycles),
		zap.Int64("revoked", revoked),
	)
	s.audit(ctx, auditEntry(models.AuditActionCredentialIssue, "credential", user.ID, rec.ID, meta,
		[]byte(fmt.Sprintf(`{"refreshCycles":%d,"revoked":%d}`, rec.RefreshCycles, revoked))))

	return s.issued(rec), nil
}

// Validate runs the request gate checks against raw. The error is non-nil
// only when the principal store or the ledger failed; every credential
// problem is expressed as a Reject.
func (s *CredentialService) Validate(ctx context.Context, raw string) (models.ValidationResult, error) {
	result, err := s.validate(ctx, raw)
	if err != nil {
		s.metrics.RecordValidation("error")
		return nil, err
	}
	s.metrics.RecordValidation(outcomeLabel(result))
	return result, nil
}

func (s *CredentialService) validate(ctx context.Context, raw string) (models.ValidationResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Reject{Kind: models.RejectMissingToken}, nil
	}

	decoded, err := s.codec.VerifyAndDecode(raw)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return models.Reject{Kind: models.RejectInvalidToken}, nil
	}
	claims := decoded.Claims

	user, err := s.principals.FindActiveByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reject{Kind: models.RejectPrincipalInactive}, nil
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}

	now := s.now()
	if s.config.SweepOnValidate {
		swept, err := s.ledger.ExpireLapsedForPrincipal(ctx, user.ID, now)
		if err != nil {
			s.logger.Warn("pre-validation sweep failed", zap.String("principal_id", user.ID), zap.Error(err))
		}
		s.metrics.RecordSweep(swept)
	}

	rec, err := s.ledger.FindLatestNonExpired(ctx, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reject{Kind: models.RejectNoActiveCredential}, nil
		}
		return nil, fmt.Errorf("find current credential: %w", err)
	}
	// a token minted for an older, superseded record has no authority
	if rec.ID != claims.RecordID() {
		return models.Reject{Kind: models.RejectNoActiveCredential}, nil
	}

	if rec.PastExpiry(now) || decoded.Expired {
		if err := s.ledger.MarkLapsed(ctx, rec.ID); err != nil {
			s.logger.Warn("failed to flag lapsed credential", zap.String("record_id", rec.ID), zap.Error(err))
		}
		if rec.Renewable() {
			return models.RenewalRequired{PrincipalID: user.ID, RecordID: rec.ID, Budget: rec.RefreshCycles}, nil
		}
		if err := s.exhaust(ctx, rec, models.RequestMeta{}); err != nil {
			return nil, err
		}
		return models.Reject{Kind: models.RejectCredentialExhausted}, nil
	}

	return models.Accept{PrincipalID: user.ID, RecordID: rec.ID, IsAdmin: user.IsAdmin}, nil
}

// Renew supersedes the record the presented token was issued for with a
// successor holding one fewer refresh cycle. The token is only decoded, not
// verified, so it must match the stored token of that record exactly.
func (s *CredentialService) Renew(ctx context.Context, req models.RenewRequest) (*models.IssuedCredential, error) {
	issued, err := s.renew(ctx, req)
	if err != nil {
		s.metrics.RecordRenewal(renewalFailureLabel(err))
		return nil, err
	}
	s.metrics.RecordRenewal("success")
	return issued, nil
}

func (s *CredentialService) renew(ctx context.Context, req models.RenewRequest) (*models.IssuedCredential, error) {
	raw := strings.TrimSpace(req.Token)
	if raw == "" {
		return nil, appErrors.ErrMissingToken
	}
	claims, err := s.codec.DecodeUnverified(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}

	// Unverified ids reach uuid columns; reject malformed ones before the store does.
	recordID := strings.TrimSpace(req.TokenID)
	if recordID == "" {
		recordID = claims.RecordID()
	}
	if !isUUID(claims.UserID) || !isUUID(recordID) {
		return nil, appErrors.ErrInvalidToken
	}

	user, err := s.principals.FindActiveByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPrincipalInactive
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	rec, err := s.ledger.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoActiveCredential
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credential")
	}
	if rec.UserID != user.ID || rec.Token != raw {
		return nil, appErrors.ErrInvalidToken
	}
	if rec.Revoked {
		return nil, appErrors.ErrRenewalBudgetExhausted
	}

	meta := models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent}
	if !rec.Renewable() {
		if err := s.exhaust(ctx, rec, meta); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire credential")
		}
		return nil, appErrors.ErrRenewalBudgetExhausted
	}

	now := s.now()
	parentID := rec.ID
	successor := &models.CredentialRecord{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		ExpiresAt:     now.Add(s.config.TTL),
		RefreshCycles: rec.RefreshCycles - 1,
		IssuedAt:      now,
		CreatedAt:     now,
		ParentID:      &parentID,
		IPAddress:     req.IP,
		UserAgent:     req.UserAgent,
	}
	if successor.Token, err = s.codec.Sign(user.ID, successor.ID, user.IsAdmin, now, successor.ExpiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	if err := s.ledger.Supersede(ctx, rec.ID, successor); err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordSuperseded):
			s.logger.Info("concurrent renewal lost", zap.String("principal_id", user.ID), zap.String("record_id", rec.ID))
			return nil, appErrors.ErrRenewalBudgetExhausted
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrPrincipalInactive
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to renew credential")
		}
	}

	s.metrics.RecordRevocations("renewed", 1)
	s.logger.Info("credential renewed",
		zap.String("principal_id", user.ID),
		zap.String("record_id", successor.ID),
		zap.String("parent_id", rec.ID),
		zap.Int("budget", successor.RefreshCycles),
	)
	s.audit(ctx, auditEntry(models.AuditActionCredentialRenew, "credential", user.ID, successor.ID, meta,
		[]byte(fmt.Sprintf(`{"parentId":%q,"refreshCycles":%d}`, rec.ID, successor.RefreshCycles))))

	return s.issued(successor), nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// RevokePrincipal revokes every live record of the principal in one statement.
func (s *CredentialService) RevokePrincipal(ctx context.Context, principalID string, meta models.RequestMeta) (int64, error) {
	revoked, err := s.ledger.BulkExpireByPrincipal(ctx, principalID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke credentials")
	}
	s.metrics.RecordRevocations("deactivated", revoked)
	s.logger.Info("principal credentials revoked", zap.String("principal_id", principalID), zap.Int64("revoked", revoked))
	s.audit(ctx, auditEntry(models.AuditActionCredentialRevoke, "credential", principalID, "", meta,
		[]byte(fmt.Sprintf(`{"revoked":%d}`, revoked))))
	return revoked, nil
}

// Revoke retires the caller's current record. Revoking an already retired
// record is a no-op.
func (s *CredentialService) Revoke(ctx context.Context, principal models.Principal, meta models.RequestMeta) error {
	rec, err := s.ledger.FindByID(ctx, principal.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNoActiveCredential
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credential")
	}
	if rec.UserID != principal.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "credential does not belong to user")
	}

	affected, err := s.ledger.MarkExpiredIfNotExpired(ctx, rec.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke credential")
	}
	s.metrics.RecordRevocations("logout", affected)
	s.audit(ctx, auditEntry(models.AuditActionLogout, "auth", principal.UserID, rec.ID, meta, []byte(`{"status":"logout"}`)))
	return nil
}

// ListByPrincipal returns the principal's newest credential records.
func (s *CredentialService) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]models.CredentialRecord, error) {
	records, err := s.ledger.ListByPrincipal(ctx, principalID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credentials")
	}
	if records == nil {
		records = []models.CredentialRecord{}
	}
	return records, nil
}

// exhaust retires a record whose budget is spent.
func (s *CredentialService) exhaust(ctx context.Context, rec *models.CredentialRecord, meta models.RequestMeta) error {
	affected, err := s.ledger.MarkExpiredIfNotExpired(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("retire exhausted credential: %w", err)
	}
	if affected == 0 {
		return nil
	}
	s.metrics.RecordRevocations("exhausted", affected)
	s.logger.Info("credential exhausted", zap.String("principal_id", rec.UserID), zap.String("record_id", rec.ID))
	s.audit(ctx, auditEntry(models.AuditActionCredentialExhaust, "credential", rec.UserID, rec.ID, meta,
		[]byte(fmt.Sprintf(`{"refreshCycles":%d}`, rec.RefreshCycles))))
	return nil
}

func (s *CredentialService) issued(rec *models.CredentialRecord) *models.IssuedCredential {
	return &models.IssuedCredential{
		Token:         rec.Token,
		RecordID:      rec.ID,
		RefreshCycles: rec.RefreshCycles,
		ExpiresAt:     rec.ExpiresAt,
		TTL:           s.config.TTL,
	}
}

func (s *CredentialService) audit(ctx context.Context, entry models.AuditLog) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, entry)
}

func outcomeLabel(result models.ValidationResult) string {
	switch r := result.(type) {
	case models.Accept:
		return "accept"
	case models.RenewalRequired:
		return "renewal_required"
	case models.Reject:
		return string(r.Kind)
	default:
		return "unknown"
	}
}

func renewalFailureLabel(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
