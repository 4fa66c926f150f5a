package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/models"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
)

func marshal(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRenewalFailureWireShape(t *testing.T) {
	status, body := RenewalFailure()
	assert.Equal(t, http.StatusUnauthorized, status)

	m := marshal(t, body)
	assert.Equal(t, false, m["success"])
	assert.Equal(t, true, m["requiresRefresh"])
	assert.Equal(t, true, m["is_expired"])
	_, hasLogin := m["requiresLogin"]
	assert.False(t, hasLogin)
}

func TestRejectFailureWireShape(t *testing.T) {
	cases := []struct {
		kind    models.RejectKind
		expired bool
	}{
		{models.RejectMissingToken, false},
		{models.RejectInvalidToken, false},
		{models.RejectPrincipalInactive, false},
		{models.RejectNoActiveCredential, true},
		{models.RejectCredentialExhausted, true},
		{models.RejectRenewalBudgetExhausted, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			status, body := RejectFailure(tc.kind)
			assert.Equal(t, http.StatusUnauthorized, status)

			m := marshal(t, body)
			assert.Equal(t, true, m["requiresLogin"])
			assert.Equal(t, tc.expired, m["is_expired"])
			_, hasRefresh := m["requiresRefresh"]
			assert.False(t, hasRefresh)
		})
	}
}

func TestFailureFromError(t *testing.T) {
	status, body := FailureFromError(fmt.Errorf("renew: %w", appErrors.Clone(appErrors.ErrRenewalBudgetExhausted, "")))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.True(t, body.RequiresLogin)
	assert.True(t, body.IsExpired)

	status, body = FailureFromError(errors.New("connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, appErrors.ErrInternal.Message, body.Message)
	assert.False(t, body.RequiresLogin)

	status, body = FailureFromError(appErrors.ErrValidation)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.RequiresLogin)
	assert.False(t, body.RequiresRefresh)
}

func TestTokenResponseFieldNames(t *testing.T) {
	m := marshal(t, TokenResponse{Success: true, Token: "t", RefreshCycles: 5, ExpiresInMinutes: 60})
	assert.Equal(t, "t", m["token"])
	assert.EqualValues(t, 5, m["refreshCycles"])
	assert.EqualValues(t, 60, m["expiresInMinutes"])
	_, hasUser := m["user"]
	assert.False(t, hasUser)
}
