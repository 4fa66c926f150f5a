package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
)

type userServiceMock struct {
	actor    models.Principal
	targetID string
	active   *bool
	err      error
	limit    int
	records  []models.CredentialRecord
}

func (m *userServiceMock) SetActive(ctx context.Context, actor models.Principal, targetID string, req models.SetActiveRequest, meta models.RequestMeta) (*models.UserInfo, error) {
	m.actor = actor
	m.targetID = targetID
	m.active = req.Active
	if m.err != nil {
		return nil, m.err
	}
	return &models.UserInfo{ID: targetID}, nil
}

func (m *userServiceMock) ListCredentials(ctx context.Context, principalID string, limit int) ([]models.CredentialRecord, error) {
	m.targetID = principalID
	m.limit = limit
	return m.records, m.err
}

func TestUserHandlerSetOwnActiveUsesPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &userServiceMock{}
	h := NewUserHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(t, http.MethodPatch, "/users/me/active", map[string]bool{"active": false})
	c.Set(middleware.ContextPrincipalKey, models.Principal{UserID: "user-1"})

	h.SetOwnActive(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", svc.targetID)
	require.NotNil(t, svc.active)
	assert.False(t, *svc.active)
}

func TestUserHandlerSetActiveForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewUserHandler(&userServiceMock{err: appErrors.ErrForbidden})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(t, http.MethodPatch, "/users/user-2/active", map[string]bool{"active": true})
	c.Params = gin.Params{{Key: "id", Value: "user-2"}}
	c.Set(middleware.ContextPrincipalKey, models.Principal{UserID: "user-1"})

	h.SetActive(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserHandlerSetActiveInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewUserHandler(&userServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/users/user-2/active", nil)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextPrincipalKey, models.Principal{UserID: "admin", IsAdmin: true})

	h.SetActive(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandlerCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &userServiceMock{records: []models.CredentialRecord{{ID: "rec-1"}, {ID: "rec-2"}}}
	h := NewUserHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/users/user-2/credentials?limit=5", nil)
	c.Params = gin.Params{{Key: "id", Value: "user-2"}}

	h.Credentials(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.limit)
	assert.Contains(t, w.Body.String(), `"count":2`)
	assert.NotContains(t, w.Body.String(), `"token"`)
}

func TestUserHandlerCredentialsError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewUserHandler(&userServiceMock{err: errors.New("db down")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/users/user-2/credentials", nil)
	c.Params = gin.Params{{Key: "id", Value: "user-2"}}

	h.Credentials(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
