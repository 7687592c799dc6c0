package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradejournal/internal/auth"
	"tradejournal/internal/config"
	"tradejournal/internal/db"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

const (
	testAccessSecret  = "access-secret-access-secret-access-secret"
	testRefreshSecret = "refresh-secret-refresh-secret-refresh-secret"
	testAdminEmail    = "root@example.com"
	testAdminPassword = "RootPassword1"
)

type capturedMail struct {
	kind  string
	to    string
	token string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (n *captureNotifier) add(kind string, u *models.User, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, capturedMail{kind: kind, to: u.Email, token: token})
}

func (n *captureNotifier) SendVerification(u *models.User, token string)  { n.add("verification", u, token) }
func (n *captureNotifier) SendPasswordReset(u *models.User, token string) { n.add("password_reset", u, token) }
func (n *captureNotifier) SendAccountApproved(u *models.User)             { n.add("approved", u, "") }
func (n *captureNotifier) SendRegistrationPending(u *models.User)         { n.add("pending", u, "") }
func (n *captureNotifier) SendAdminNewRegistration(u *models.User)        { n.add("admin_notice", u, "") }
func (n *captureNotifier) SendAccountDeactivated(u *models.User)          { n.add("deactivated", u, "") }

func (n *captureNotifier) tokenFor(kind, email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind && n.sent[i].to == email {
			return n.sent[i].token
		}
	}
	return ""
}

const testClientAddr = "203.0.113.50:40000"

type testServer struct {
	handler  http.Handler
	notifier *captureNotifier
	users    *db.UserRepository
	resets   *db.PasswordResetRepository
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Environment: config.EnvTest,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: config.RateLimitConfig{
			Window:           config.Duration(time.Minute),
			MaxRequests:      1000,
			AuthMaxRequests:  1000,
			ResetMaxRequests: 1000,
		},
	}
}

func newTestServer(t *testing.T, configure ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := testConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	hasher, err := auth.NewHasher(auth.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	jwtService := auth.NewJWTService(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour)

	users := db.NewUserRepository(database)
	refreshTokens := db.NewRefreshTokenRepository(database)
	resets := db.NewPasswordResetRepository(database)
	notifier := &captureNotifier{}

	accounts := service.NewAccountService(users, hasher, notifier)
	_, err = accounts.EnsureSuperAdmin(context.Background(), testAdminEmail, testAdminPassword)
	require.NoError(t, err)

	srv, err := NewServer(cfg, database, nil, jwtService, Services{
		Accounts:       accounts,
		Sessions:       service.NewSessionService(users, refreshTokens, hasher, jwtService),
		PasswordResets: service.NewPasswordResetService(users, resets, hasher, notifier),
	})
	require.NoError(t, err)

	return &testServer{handler: srv, notifier: notifier, users: users, resets: resets}
}

func (s *testServer) do(t *testing.T, method, path string, body any, accessToken string) *httptest.ResponseRecorder {
	t.Helper()
	return s.serve(s.newRequest(t, method, path, body, accessToken))
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) newRequest(t *testing.T, method, path string, body any, accessToken string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = testClientAddr
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorDetail    `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body=%q", rr.Body.String())
	return env
}

func requireErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	require.Equal(t, status, rr.Code, "body=%q", rr.Body.String())
	env := decodeEnvelope(t, rr)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, code, env.Error.Code)
}

type loginData struct {
	User   models.PublicUser `json:"user"`
	Tokens auth.TokenPair    `json:"tokens"`
}

func (s *testServer) login(t *testing.T, email, password string) loginData {
	t.Helper()

	rr := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rr.Code, "body=%q", rr.Body.String())

	var data loginData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &data))
	return data
}
