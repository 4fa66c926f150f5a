package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
	"github.com/noah-isme/storefront-api/pkg/response"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error)
	Reactivate(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error)
	Logout(ctx context.Context, principal models.Principal, meta models.RequestMeta) error
	Me(ctx context.Context, principalID string) (*models.UserInfo, error)
}

type credentialRenewer interface {
	Renew(ctx context.Context, req models.RenewRequest) (*models.IssuedCredential, error)
}

// AuthHandler wires HTTP endpoints to the auth and credential services.
type AuthHandler struct {
	service     authService
	credentials credentialRenewer
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, credentials credentialRenewer) *AuthHandler {
	return &AuthHandler{service: svc, credentials: credentials}
}

// Register godoc
// @Summary Register account
// @Description Create an account and return its first credential
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} dto.TokenResponse
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Token(c, http.StatusCreated, "registration successful", res.Credential, &res.User)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password and receive a fresh credential
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} dto.TokenResponse
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Token(c, http.StatusOK, "login successful", res.Credential, &res.User)
}

// Reactivate godoc
// @Summary Reactivate account
// @Description Reactivate a deactivated account with its password and sign in
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Account credentials"
// @Success 200 {object} dto.TokenResponse
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/reactivate [post]
func (h *AuthHandler) Reactivate(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reactivation payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Reactivate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Token(c, http.StatusOK, "account reactivated", res.Credential, &res.User)
}

// Refresh godoc
// @Summary Renew credential
// @Description Exchange the presented credential for a successor with one less renewal
// @Tags Authentication
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param payload body models.RenewRequest false "Optional record id"
// @Success 200 {object} dto.TokenResponse
// @Failure 401 {object} dto.AuthFailure
// @Router /auth/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.Token = c.GetString(middleware.ContextRenewalTokenKey)
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	credential, err := h.credentials.Renew(c.Request.Context(), req)
	if err != nil {
		response.AuthError(c, err)
		return
	}

	response.Token(c, http.StatusOK, "token refreshed", credential, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the presented credential
// @Tags Authentication
// @Produce json
// @Success 204
// @Failure 401 {object} dto.AuthFailure
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(c.Request.Context(), principal, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's info
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} dto.AuthFailure
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.service.Me(c.Request.Context(), principal.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, info)
}
