package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 24 * time.Hour
)

// ResetAttemptPurger removes password reset attempts past their retention.
type ResetAttemptPurger interface {
	CleanupOldAttempts(ctx context.Context) (int64, error)
}

type CleanupService struct {
	refreshTokens *RefreshTokenRepository
	resetAttempts ResetAttemptPurger
	interval      time.Duration
}

func NewCleanupService(refreshTokens *RefreshTokenRepository, resetAttempts ResetAttemptPurger, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		refreshTokens: refreshTokens,
		resetAttempts: resetAttempts,
		interval:      interval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting cleanup service", "component", "cleanup", "interval", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *CleanupService) RunOnce(ctx context.Context) {
	refreshDeleted, err := s.refreshTokens.DeleteExpired(ctx)
	if err != nil {
		slog.Error("error deleting expired refresh tokens", "component", "cleanup", "error", err)
	} else if refreshDeleted > 0 {
		slog.Info("deleted expired refresh tokens", "component", "cleanup", "count", refreshDeleted)
	}

	attemptsDeleted, err := s.resetAttempts.CleanupOldAttempts(ctx)
	if err != nil {
		slog.Error("error deleting old password reset attempts", "component", "cleanup", "error", err)
	} else if attemptsDeleted > 0 {
		slog.Info("deleted old password reset attempts", "component", "cleanup", "count", attemptsDeleted)
	}
}
