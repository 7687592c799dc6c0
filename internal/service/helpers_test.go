package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradejournal/internal/auth"
	"tradejournal/internal/db"
	"tradejournal/internal/models"
)

type sentMail struct {
	kind  string
	to    string
	token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) record(kind string, user *models.User, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, to: user.Email, token: token})
}

func (n *fakeNotifier) SendVerification(u *models.User, token string) { n.record("verification", u, token) }
func (n *fakeNotifier) SendPasswordReset(u *models.User, token string) {
	n.record("password_reset", u, token)
}
func (n *fakeNotifier) SendAccountApproved(u *models.User)      { n.record("approved", u, "") }
func (n *fakeNotifier) SendRegistrationPending(u *models.User)  { n.record("pending", u, "") }
func (n *fakeNotifier) SendAdminNewRegistration(u *models.User) { n.record("admin_notice", u, "") }
func (n *fakeNotifier) SendAccountDeactivated(u *models.User)   { n.record("deactivated", u, "") }

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.kind)
	}
	return out
}

func (n *fakeNotifier) lastToken(kind string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i].token
		}
	}
	return ""
}

type testEnv struct {
	users    *db.UserRepository
	tokens   *db.RefreshTokenRepository
	resets   *db.PasswordResetRepository
	notifier *fakeNotifier
	hasher   *auth.Hasher
	accounts *AccountService
	sessions *SessionService
	pwreset  *PasswordResetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	hasher, err := auth.NewHasher(auth.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	jwtService := auth.NewJWTService(
		"access-secret-access-secret-access-secret",
		"refresh-secret-refresh-secret-refresh-secret",
		15*time.Minute,
		7*24*time.Hour,
	)

	env := &testEnv{
		users:    db.NewUserRepository(database),
		tokens:   db.NewRefreshTokenRepository(database),
		resets:   db.NewPasswordResetRepository(database),
		notifier: &fakeNotifier{},
		hasher:   hasher,
	}
	env.accounts = NewAccountService(env.users, hasher, env.notifier)
	env.sessions = NewSessionService(env.users, env.tokens, hasher, jwtService)
	env.pwreset = NewPasswordResetService(env.users, env.resets, hasher, env.notifier)
	return env
}

// createUser stores an account directly, bypassing registration.
func (e *testEnv) createUser(t *testing.T, email, password string, role models.Role, active bool) *models.User {
	t.Helper()

	digest, err := e.hasher.Hash(password)
	require.NoError(t, err)

	u := &models.User{
		Email:           email,
		PasswordHash:    digest,
		Role:            role,
		IsActive:        active,
		IsEmailVerified: true,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) mustFindID(t *testing.T, email string) string {
	t.Helper()

	u, err := e.users.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}
