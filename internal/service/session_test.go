package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/auth"
	"tradejournal/internal/models"
)

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	_, unknownErr := env.sessions.Login(ctx, "nobody@example.com", "Password123")
	_, wrongErr := env.sessions.Login(ctx, "user@example.com", "Password124")

	require.ErrorIs(t, unknownErr, apperrors.ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, apperrors.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLoginInactiveAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "pending@example.com", "Password123", models.RoleUser, false)

	_, err := env.sessions.Login(ctx, "pending@example.com", "Password123")
	assert.ErrorIs(t, err, apperrors.ErrAccountDisabled)

	_, err = env.sessions.Login(ctx, "pending@example.com", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginIssuesTokensAndRecordsLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t, "User@example.com", "Password123", models.RoleAdmin, true)

	res, err := env.sessions.Login(ctx, "USER@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	require.NotNil(t, res.User.LastLoginAt)
	assert.NotEmpty(t, res.Tokens.AccessToken)

	claims, err := auth.Verify(res.Tokens.AccessToken, []byte("access-secret-access-secret-access-secret"), auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	stored, err := env.tokens.FindByHash(ctx, auth.HashToken(res.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.False(t, stored.IsRevoked)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), stored.ExpiresAt, time.Minute)
}

func TestLoginReplacesPreviousSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	first, err := env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)
	_, err = env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)

	_, err = env.sessions.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	login, err := env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)

	next, err := env.sessions.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, next.RefreshToken)

	_, err = env.sessions.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	_, err = env.sessions.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	login, err := env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.sessions.Refresh(ctx, login.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	}
	assert.Equal(t, 1, wins)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	login, err := env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)

	_, err = env.sessions.Refresh(ctx, login.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = env.sessions.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefreshRejectsExpiredRow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	login, err := env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)

	env.sessions.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = env.sessions.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", "Password123", models.RoleUser, true)

	login, err := env.sessions.Login(ctx, "user@example.com", "Password123")
	require.NoError(t, err)

	require.NoError(t, env.sessions.Logout(ctx, login.Tokens.RefreshToken))
	require.NoError(t, env.sessions.Logout(ctx, login.Tokens.RefreshToken))
	require.NoError(t, env.sessions.Logout(ctx, "unknown"))

	_, err = env.sessions.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	weak, err := auth.NewHasher(auth.Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	require.NoError(t, err)
	digest, err := weak.Hash("Password123")
	require.NoError(t, err)
	require.True(t, env.hasher.NeedsRehash(digest))

	u := &models.User{Email: "old@example.com", PasswordHash: digest, Role: models.RoleUser, IsActive: true}
	require.NoError(t, env.users.Create(ctx, u))

	_, err = env.sessions.Login(ctx, "old@example.com", "Password123")
	require.NoError(t, err)

	stored, err := env.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, env.hasher.NeedsRehash(stored.PasswordHash))
}
