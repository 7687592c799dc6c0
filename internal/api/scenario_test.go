package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/constants"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

func TestRegisterVerifyApproveLoginFlow(t *testing.T) {
	srv := newTestServer(t)
	const email = "trader@example.com"

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email":     email,
		"password":  "Password123",
		"firstName": "<b>Ada</b>",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, "body=%q", rr.Body.String())
	registered := decodeEnvelope(t, rr)
	assert.Equal(t, service.RegistrationPendingMessage, registered.Message)
	assert.NotContains(t, rr.Body.String(), "password")

	var regData struct {
		User models.PublicUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(registered.Data, &regData))
	require.NotNil(t, regData.User.FirstName)
	assert.Equal(t, "Ada", *regData.User.FirstName)
	assert.False(t, regData.User.IsActive)

	token := srv.notifier.tokenFor("verification", email)
	require.NotEmpty(t, token)

	rr = srv.do(t, http.MethodGet, "/api/v1/auth/verify-email?token="+token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	// Verified but not yet approved.
	rr = srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "Password123"}, "")
	requireErrorCode(t, rr, http.StatusForbidden, constants.ErrCodeAccountDisabled)

	admin := srv.login(t, testAdminEmail, testAdminPassword)

	rr = srv.do(t, http.MethodGet, "/api/v1/admin/pending-users", nil, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())
	var pending struct {
		Users []models.PublicUser `json:"users"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &pending))
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, regData.User.ID, pending.Users[0].ID)

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/approve/"+regData.User.ID, nil, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/approve/"+regData.User.ID, nil, admin.Tokens.AccessToken)
	requireErrorCode(t, rr, http.StatusBadRequest, constants.ErrCodeAlreadyActive)

	session := srv.login(t, email, "Password123")
	assert.Equal(t, models.RoleUser, session.User.Role)

	rr = srv.do(t, http.MethodGet, "/api/v1/auth/me", nil, session.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())
	body := strings.ToLower(rr.Body.String())
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, token)

	var me struct {
		User models.PublicUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &me))
	assert.Equal(t, email, me.User.Email)
	assert.True(t, me.User.IsActive)
	assert.True(t, me.User.IsEmailVerified)
}

func TestRefreshReplayIsRejected(t *testing.T) {
	srv := newTestServer(t)
	session := srv.login(t, testAdminEmail, testAdminPassword)

	body := map[string]string{"refreshToken": session.Tokens.RefreshToken}

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/refresh", body, "")
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", body, "")
	requireErrorCode(t, rr, http.StatusUnauthorized, constants.ErrCodeTokenRevoked)
}

func TestLogoutIsIdempotentOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	session := srv.login(t, testAdminEmail, testAdminPassword)

	body := map[string]string{"refreshToken": session.Tokens.RefreshToken}
	for i := 0; i < 2; i++ {
		rr := srv.do(t, http.MethodPost, "/api/v1/auth/logout", body, "")
		require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())
	}

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLogoutAcceptsBodyOfUnknownLength(t *testing.T) {
	srv := newTestServer(t)

	empty := map[string]io.Reader{
		"no_body":      http.NoBody,
		"empty_stream": io.NopCloser(strings.NewReader("")),
		"whitespace":   strings.NewReader(" \n"),
	}
	for name, body := range empty {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", body)
			req.RemoteAddr = testClientAddr
			req.ContentLength = -1

			rr := srv.serve(req)
			assert.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())
		})
	}

	session := srv.login(t, testAdminEmail, testAdminPassword)
	streamed := io.NopCloser(strings.NewReader(`{"refreshToken":"` + session.Tokens.RefreshToken + `"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", streamed)
	req.RemoteAddr = testClientAddr
	req.ContentLength = -1
	require.Equal(t, http.StatusOK, srv.serve(req).Code)

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": session.Tokens.RefreshToken}, "")
	requireErrorCode(t, rr, http.StatusUnauthorized, constants.ErrCodeTokenRevoked)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", strings.NewReader("{"))
	req.RemoteAddr = testClientAddr
	requireErrorCode(t, srv.serve(req), http.StatusBadRequest, constants.ErrCodeInvalidRequest)
}

func TestAdminCannotDeactivateSelfOrSuperAdmin(t *testing.T) {
	srv := newTestServer(t)
	root := srv.login(t, testAdminEmail, testAdminPassword)

	rr := srv.do(t, http.MethodPost, "/api/v1/admin/register", map[string]string{
		"email":    "admin@example.com",
		"password": "Password123",
		"role":     "ADMIN",
	}, root.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code, "body=%q", rr.Body.String())

	admin := srv.login(t, "admin@example.com", "Password123")

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/deactivate/"+admin.User.ID, nil, admin.Tokens.AccessToken)
	requireErrorCode(t, rr, http.StatusForbidden, constants.ErrCodeForbidden)

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/deactivate/"+root.User.ID, nil, admin.Tokens.AccessToken)
	requireErrorCode(t, rr, http.StatusForbidden, constants.ErrCodeForbidden)

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/deactivate/not-a-uuid", nil, admin.Tokens.AccessToken)
	requireErrorCode(t, rr, http.StatusBadRequest, constants.ErrCodeValidation)

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/deactivate/"+admin.User.ID, nil, root.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": admin.Tokens.RefreshToken}, "")
	requireErrorCode(t, rr, http.StatusUnauthorized, constants.ErrCodeTokenRevoked)
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	srv := newTestServer(t)
	root := srv.login(t, testAdminEmail, testAdminPassword)

	rr := srv.do(t, http.MethodPost, "/api/v1/admin/users", map[string]string{
		"email":    "user@example.com",
		"password": "Password123",
	}, root.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code, "body=%q", rr.Body.String())

	user := srv.login(t, "user@example.com", "Password123")

	rr = srv.do(t, http.MethodGet, "/api/v1/admin/pending-users", nil, user.Tokens.AccessToken)
	requireErrorCode(t, rr, http.StatusForbidden, constants.ErrCodeForbidden)

	rr = srv.do(t, http.MethodGet, "/api/v1/admin/pending-users", nil, "")
	requireErrorCode(t, rr, http.StatusUnauthorized, constants.ErrCodeUnauthorized)

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/maintenance/cleanup-reset-attempts", nil, root.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())
}

func TestChangePasswordRequiresVerifiedEmail(t *testing.T) {
	srv := newTestServer(t)
	root := srv.login(t, testAdminEmail, testAdminPassword)

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/admin/register", map[string]string{
		"email":    "user@example.com",
		"password": "Password123",
	}, root.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code, "body=%q", rr.Body.String())

	user := srv.login(t, "user@example.com", "Password123")
	change := map[string]string{"newPassword": "NewPassword456"}

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/change-password", change, user.Tokens.AccessToken)
	requireErrorCode(t, rr, http.StatusForbidden, constants.ErrCodeEmailNotVerified)

	token := srv.notifier.tokenFor("verification", "user@example.com")
	rr = srv.do(t, http.MethodGet, "/api/v1/auth/verify-email?token="+token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/change-password", change, user.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	srv.login(t, "user@example.com", "NewPassword456")
}

func TestPasswordResetOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	unknown := srv.do(t, http.MethodPost, "/api/v1/password/request-reset", map[string]string{"email": "nobody@example.com"}, "")
	require.Equal(t, http.StatusOK, unknown.Code)

	known := srv.do(t, http.MethodPost, "/api/v1/password/request-reset", map[string]string{"email": testAdminEmail}, "")
	require.Equal(t, http.StatusOK, known.Code)
	assert.JSONEq(t, unknown.Body.String(), known.Body.String())

	token := srv.notifier.tokenFor("password_reset", testAdminEmail)
	require.NotEmpty(t, token)

	rr := srv.do(t, http.MethodGet, "/api/v1/password/validate-token?token="+token, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"valid":true}`, string(decodeEnvelope(t, rr).Data))

	reset := map[string]string{"token": token, "newPassword": "ChangedPassword9"}
	rr = srv.do(t, http.MethodPost, "/api/v1/password/reset", reset, "")
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/v1/password/reset", reset, "")
	requireErrorCode(t, rr, http.StatusBadRequest, constants.ErrCodeInvalidResetToken)

	srv.login(t, testAdminEmail, "ChangedPassword9")

	for i := 0; i < 2; i++ {
		rr = srv.do(t, http.MethodPost, "/api/v1/password/request-reset", map[string]string{"email": testAdminEmail}, "")
		require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())
	}
	rr = srv.do(t, http.MethodPost, "/api/v1/password/request-reset", map[string]string{"email": testAdminEmail}, "")
	requireErrorCode(t, rr, http.StatusTooManyRequests, constants.ErrCodeRateLimitExceeded)
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "weak@example.com",
		"password": "password",
	}, "")
	requireErrorCode(t, rr, http.StatusBadRequest, constants.ErrCodeValidation)

	var details []FieldError
	raw, err := json.Marshal(decodeEnvelope(t, rr).Error.Details)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &details))
	require.Len(t, details, 1)
	assert.Equal(t, "password", details[0].Field)

	rr = srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "weak@example.com",
		"password": "Password123",
		"extra":    "field",
	}, "")
	requireErrorCode(t, rr, http.StatusBadRequest, constants.ErrCodeInvalidRequest)

	rr = srv.do(t, http.MethodGet, "/api/v1/nope", nil, "")
	requireErrorCode(t, rr, http.StatusNotFound, constants.ErrCodeRouteNotFound)
}

func TestLoginErrorsDoNotRevealAccounts(t *testing.T) {
	srv := newTestServer(t)

	unknown := srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": "Password123"}, "")
	wrong := srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": testAdminEmail, "password": "WrongPassword1"}, "")

	requireErrorCode(t, unknown, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)
	assert.JSONEq(t, unknown.Body.String(), wrong.Body.String())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "disabled", body.Checks["redis"])
}
