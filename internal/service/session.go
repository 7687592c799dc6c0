package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/auth"
	"tradejournal/internal/db"
	"tradejournal/internal/models"
)

type SessionService struct {
	users         UserStore
	refreshTokens RefreshTokenStore
	hasher        PasswordHasher
	jwt           *auth.JWTService
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionService(users UserStore, refreshTokens RefreshTokenStore, hasher PasswordHasher, jwtService *auth.JWTService) *SessionService {
	return &SessionService{
		users:         users,
		refreshTokens: refreshTokens,
		hasher:        hasher,
		jwt:           jwtService,
		now:           time.Now,
	}
}

type LoginResult struct {
	User   *models.PublicUser `json:"user"`
	Tokens *auth.TokenPair    `json:"tokens"`
}

// Login verifies credentials and issues a token pair. Unknown email and
// wrong password fail identically; an inactive account with the right
// password fails with ACCOUNT_DISABLED.
func (s *SessionService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		// Burn the same hashing cost as a real check.
		_, _ = s.hasher.Verify(s.dummyDigest(), password)
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		slog.Error("stored password hash is unreadable", "component", "session", "user_id", user.ID, "error", err)
		return nil, apperrors.ErrInvalidCredentials
	}
	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperrors.ErrAccountDisabled.WithMessage("Account is pending approval or has been disabled")
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		if digest, err := s.hasher.Hash(password); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
				slog.Warn("failed to upgrade password hash", "component", "session", "user_id", user.ID, "error", err)
			}
		}
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	user.LastLoginAt = &now

	tokens, err := s.IssueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", "component", "session", "user_id", user.ID)

	return &LoginResult{User: user.Public(), Tokens: tokens}, nil
}

// IssueTokens signs a new pair and makes its refresh token the only one
// stored for the user.
func (s *SessionService) IssueTokens(ctx context.Context, user *models.User) (*auth.TokenPair, error) {
	pair, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("generating token pair: %w", err)
	}

	if _, err := s.refreshTokens.ReplaceForUser(ctx, user.ID, auth.HashToken(pair.RefreshToken), pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}

// Refresh redeems a refresh token for a new pair. Each refresh token can be
// redeemed once; replays fail with TOKEN_REVOKED.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	stored, err := s.refreshTokens.FindByHash(ctx, auth.HashToken(refreshToken))
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	if stored.IsRevoked {
		return nil, apperrors.ErrTokenRevoked
	}
	if !stored.ExpiresAt.After(s.now()) {
		return nil, apperrors.ErrTokenExpired
	}
	if stored.UserID != claims.UserID {
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountDisabled
	}

	pair, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("generating token pair: %w", err)
	}

	err = s.refreshTokens.Rotate(ctx, stored.ID, user.ID, auth.HashToken(pair.RefreshToken), pair.RefreshExpiresAt)
	if errors.Is(err, db.ErrNotFound) {
		// Another request redeemed (or a deactivation revoked) this token
		// between the lookup and the rotation.
		return nil, apperrors.ErrTokenRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	return pair, nil
}

// Logout revokes the presented refresh token. Unknown and already revoked
// tokens are accepted silently.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.refreshTokens.RevokeByHash(ctx, auth.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

func (s *SessionService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("timing-equalizer-password")
		if err != nil {
			slog.Error("failed to prepare dummy password hash", "component", "session", "error", err)
			return
		}
		s.dummyHash = digest
	})
	return s.dummyHash
}
