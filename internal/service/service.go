// Package service holds the account lifecycle, session and password reset
// logic. Handlers call into it; it talks to storage and mail only through
// the interfaces below.
package service

import (
	"context"
	"strings"
	"time"

	"tradejournal/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	ListInactive(ctx context.Context) ([]*models.User, error)
	Activate(ctx context.Context, id string) error
	DeactivateAndRevokeSessions(ctx context.Context, id string) error
	MarkEmailVerified(ctx context.Context, id string) error
	SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	UpdatePasswordAndRevokeSessions(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type RefreshTokenStore interface {
	ReplaceForUser(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, consumedTokenID, userID, newTokenHash string, newExpiresAt time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
}

type PasswordResetStore interface {
	AttemptsSince(ctx context.Context, userID string, since time.Time) ([]*models.PasswordResetAttempt, error)
	Issue(ctx context.Context, userID, tokenHash string, expiresAt time.Time, ipAddress string, userAgent *string) error
	Consume(ctx context.Context, userID, tokenHash, passwordHash string) error
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(digest, password string) (bool, error)
	NeedsRehash(digest string) bool
}

// Notifier sends transactional mail. Implementations must not block the
// caller on delivery and must not report delivery failures.
type Notifier interface {
	SendVerification(user *models.User, token string)
	SendPasswordReset(user *models.User, token string)
	SendAccountApproved(user *models.User)
	SendRegistrationPending(user *models.User)
	SendAdminNewRegistration(user *models.User)
	SendAccountDeactivated(user *models.User)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func publicUsers(users []*models.User) []*models.PublicUser {
	out := make([]*models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}
