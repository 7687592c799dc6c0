package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/constants"
)

func serveCORS(t *testing.T, allowed []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	called := false
	handler := corsMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/auth/me", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, called
}

func TestCORSMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	rr, called := serveCORS(t, []string{"https://journal.example.com/"}, http.MethodGet, "https://journal.example.com")

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://journal.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
}

func TestCORSMiddlewareAllowsLoopbackOrigin(t *testing.T) {
	for _, origin := range []string{"http://127.0.0.1:5173", "http://localhost:3000", "http://[::1]:8080"} {
		rr, called := serveCORS(t, nil, http.MethodGet, origin)

		assert.True(t, called, origin)
		assert.Equal(t, http.StatusOK, rr.Code, origin)
		assert.Equal(t, origin, rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddlewareRejectsDisallowedOrigin(t *testing.T) {
	for _, origin := range []string{"https://evil.com", "ftp://localhost", "http://127.0.0.1.evil.com"} {
		rr, called := serveCORS(t, []string{"https://journal.example.com"}, http.MethodGet, origin)

		assert.False(t, called, origin)
		require.Equal(t, http.StatusForbidden, rr.Code, origin)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "body=%q", rr.Body.String())
		assert.Equal(t, constants.ErrCodeInvalidRequest, resp.Error.Code)
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	rr, called := serveCORS(t, []string{"https://journal.example.com"}, http.MethodOptions, "https://journal.example.com")

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://journal.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSMiddlewarePassesRequestsWithoutOrigin(t *testing.T) {
	rr, called := serveCORS(t, []string{"https://journal.example.com"}, http.MethodGet, "")

	assert.True(t, called)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
