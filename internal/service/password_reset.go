package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/auth"
	"tradejournal/internal/constants"
	"tradejournal/internal/db"
)

const ResetRequestedMessage = "If an account exists with this email, you will receive a password reset link."

type PasswordResetService struct {
	users    UserStore
	resets   PasswordResetStore
	hasher   PasswordHasher
	notifier Notifier
	now      func() time.Time
}

func NewPasswordResetService(users UserStore, resets PasswordResetStore, hasher PasswordHasher, notifier Notifier) *PasswordResetService {
	return &PasswordResetService{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		notifier: notifier,
		now:      time.Now,
	}
}

// RequestReset issues a reset token for an existing account. The returned
// message is the same whether or not the account exists.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, ipAddress, userAgent string) (string, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		slog.Info("password reset requested for unknown email", "component", "password_reset", "ip", ipAddress)
		return ResetRequestedMessage, nil
	}
	if err != nil {
		return "", fmt.Errorf("finding user: %w", err)
	}

	now := s.now()
	attempts, err := s.resets.AttemptsSince(ctx, user.ID, now.Add(-24*time.Hour))
	if err != nil {
		return "", fmt.Errorf("counting reset attempts: %w", err)
	}

	lastHour := 0
	for _, a := range attempts {
		if a.CreatedAt.After(now.Add(-time.Hour)) {
			lastHour++
		}
	}
	if lastHour >= constants.ResetAttemptsPerHour || len(attempts) >= constants.ResetAttemptsPerDay {
		slog.Warn("password reset rate limit exceeded", "component", "password_reset", "user_id", user.ID, "ip", ipAddress)
		return "", apperrors.ErrRateLimitExceeded
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generating reset token: %w", err)
	}

	var agent *string
	if userAgent != "" {
		agent = &userAgent
	}
	if err := s.resets.Issue(ctx, user.ID, auth.HashToken(token), now.Add(constants.PasswordResetTTL), ipAddress, agent); err != nil {
		return "", fmt.Errorf("issuing reset token: %w", err)
	}

	s.notifier.SendPasswordReset(user, token)

	slog.Info("password reset requested", "component", "password_reset", "user_id", user.ID, "ip", ipAddress)
	return ResetRequestedMessage, nil
}

// ResetPassword consumes a reset token, sets the new password and signs the
// user out everywhere.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	tokenHash := auth.HashToken(token)

	user, err := s.users.FindByResetTokenHash(ctx, tokenHash)
	if errors.Is(err, db.ErrNotFound) {
		return apperrors.ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("finding reset token: %w", err)
	}
	if user.PasswordResetExpires == nil || user.PasswordResetExpires.Before(s.now()) {
		return apperrors.ErrResetTokenExpired
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.resets.Consume(ctx, user.ID, tokenHash, digest); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperrors.ErrInvalidResetToken
		}
		return fmt.Errorf("consuming reset token: %w", err)
	}

	slog.Info("password reset completed", "component", "password_reset", "user_id", user.ID)
	return nil
}

// ValidateResetToken reports whether token matches an unexpired reset
// request. It never mutates state.
func (s *PasswordResetService) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	user, err := s.users.FindByResetTokenHash(ctx, auth.HashToken(token))
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("finding reset token: %w", err)
	}
	return user.PasswordResetExpires != nil && user.PasswordResetExpires.After(s.now()), nil
}

// CleanupOldAttempts deletes reset attempts past their retention period.
func (s *PasswordResetService) CleanupOldAttempts(ctx context.Context) (int64, error) {
	deleted, err := s.resets.DeleteAttemptsBefore(ctx, s.now().Add(-constants.ResetAttemptsRetention))
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
