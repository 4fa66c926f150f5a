package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
)

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type credentialRevoker interface {
	RevokePrincipal(ctx context.Context, principalID string, meta models.RequestMeta) (int64, error)
	ListByPrincipal(ctx context.Context, principalID string, limit int) ([]models.CredentialRecord, error)
}

// UserService handles account activation and the admin credential view.
type UserService struct {
	repo        userLookup
	activator   principalActivator
	credentials credentialRevoker
	auditor     Auditor
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userLookup, activator principalActivator, credentials credentialRevoker, auditor Auditor, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{
		repo:        repo,
		activator:   activator,
		credentials: credentials,
		auditor:     auditor,
		validator:   validate,
		logger:      logger,
	}
}

// SetActive toggles targetID's active flag on behalf of actor. Principals may
// only change their own flag unless they are administrators. Deactivation
// revokes every outstanding credential of the target; activation restores
// none of them.
func (s *UserService) SetActive(ctx context.Context, actor models.Principal, targetID string, req models.SetActiveRequest, meta models.RequestMeta) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activation payload")
	}
	if actor.UserID != targetID && !actor.IsAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change another user's status")
	}
	active := *req.Active

	ok, err := s.activator.SetActive(ctx, targetID, active)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user status")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	action := models.AuditActionUserActivate
	if !active {
		action = models.AuditActionUserDeactivate
		if _, err := s.credentials.RevokePrincipal(ctx, targetID, meta); err != nil {
			return nil, err
		}
	}
	s.logger.Info("principal status changed",
		zap.String("principal_id", targetID),
		zap.String("actor_id", actor.UserID),
		zap.Bool("active", active),
	)
	if s.auditor != nil {
		s.auditor.Record(ctx, auditEntry(action, "user", actor.UserID, targetID, meta,
			[]byte(fmt.Sprintf(`{"active":%t}`, active))))
	}

	user, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// ListCredentials returns the credential audit trail of a principal.
func (s *UserService) ListCredentials(ctx context.Context, principalID string, limit int) ([]models.CredentialRecord, error) {
	if _, err := s.repo.FindByID(ctx, principalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return s.credentials.ListByPrincipal(ctx, principalID, limit)
}
