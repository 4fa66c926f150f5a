package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
	"github.com/noah-isme/storefront-api/pkg/response"
)

type userService interface {
	SetActive(ctx context.Context, actor models.Principal, targetID string, req models.SetActiveRequest, meta models.RequestMeta) (*models.UserInfo, error)
	ListCredentials(ctx context.Context, principalID string, limit int) ([]models.CredentialRecord, error)
}

// UserHandler handles account activation and credential listing.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// SetOwnActive godoc
// @Summary Toggle own active flag
// @Description Deactivating revokes every outstanding credential
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.SetActiveRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/me/active [patch]
func (h *UserHandler) SetOwnActive(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.setActive(c, principal, principal.UserID)
}

// SetActive godoc
// @Summary Toggle a user's active flag
// @Description Administrators may activate or deactivate any account
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.SetActiveRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/active [patch]
func (h *UserHandler) SetActive(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.setActive(c, principal, c.Param("id"))
}

func (h *UserHandler) setActive(c *gin.Context, actor models.Principal, targetID string) {
	var req models.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	info, err := h.service.SetActive(c.Request.Context(), actor, targetID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, info)
}

// Credentials godoc
// @Summary List credential records
// @Description Newest credential records of a user, including revoked ones
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Param limit query int false "Maximum records"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/credentials [get]
func (h *UserHandler) Credentials(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.service.ListCredentials(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records)})
}
