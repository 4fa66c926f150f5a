package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
)

const pqUniqueViolation = "23505"

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type principalActivator interface {
	SetActive(ctx context.Context, id string, active bool) (bool, error)
}

type credentialIssuer interface {
	Issue(ctx context.Context, principalID string, meta models.RequestMeta) (*models.IssuedCredential, error)
	Revoke(ctx context.Context, principal models.Principal, meta models.RequestMeta) error
}

// AuthService provides the account-facing authentication use cases and
// delegates every credential decision to the credential service.
type AuthService struct {
	repo        authUserRepository
	activator   principalActivator
	credentials credentialIssuer
	auditor     Auditor
	validator   *validator.Validate
	logger      *zap.Logger
	bcryptCost  int
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, activator principalActivator, credentials credentialIssuer, auditor Auditor, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		repo:        repo,
		activator:   activator,
		credentials: credentials,
		auditor:     auditor,
		validator:   validate,
		logger:      logger,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	meta := models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent}
	s.audit(ctx, auditEntry(models.AuditActionRegister, "user", user.ID, user.ID, meta, []byte(`{"status":"registered"}`)))

	credential, err := s.credentials.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	return &models.AuthResult{Credential: credential, User: user.Info()}, nil
}

// Login checks the password and issues a fresh credential.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive, reactivate it to sign in")
	}

	return s.signIn(ctx, user, req)
}

// Reactivate re-enables an inactive account after a password check and
// issues a fresh credential. Credentials revoked by the deactivation stay
// revoked.
func (s *AuthService) Reactivate(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reactivation payload")
	}

	user, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	if !user.Active {
		ok, err := s.activator.SetActive(ctx, user.ID, true)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate user")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		user.Active = true
		s.logger.Info("principal reactivated", zap.String("principal_id", user.ID))
		s.audit(ctx, auditEntry(models.AuditActionUserActivate, "user", user.ID, user.ID,
			models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent}, []byte(`{"active":true,"via":"self"}`)))
	}

	return s.signIn(ctx, user, req)
}

// Logout revokes the caller's current credential.
func (s *AuthService) Logout(ctx context.Context, principal models.Principal, meta models.RequestMeta) error {
	return s.credentials.Revoke(ctx, principal, meta)
}

// Me returns the profile of the authenticated principal.
func (s *AuthService) Me(ctx context.Context, principalID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

func (s *AuthService) authenticate(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) signIn(ctx context.Context, user *models.User, req models.LoginRequest) (*models.AuthResult, error) {
	meta := models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent}
	credential, err := s.credentials.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("principal_id", user.ID), zap.Error(err))
	}
	s.audit(ctx, auditEntry(models.AuditActionLogin, "auth", user.ID, user.ID, meta, []byte(`{"status":"success"}`)))

	return &models.AuthResult{Credential: credential, User: user.Info()}, nil
}

func (s *AuthService) audit(ctx context.Context, entry models.AuditLog) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, entry)
}
