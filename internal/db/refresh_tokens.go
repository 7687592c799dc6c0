package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tradejournal/internal/models"
)

type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// ReplaceForUser deletes every stored refresh token of the user and inserts
// the new one, so a fresh login ends all previous sessions.
func (r *RefreshTokenRepository) ReplaceForUser(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	token := &models.RefreshToken{
		ID:        generateID(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("deleting previous refresh tokens: %w", err)
		}
		return insertRefreshToken(ctx, tx, token)
	})
	if err != nil {
		return nil, err
	}

	return token, nil
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_revoked, created_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}

	return &t, nil
}

// Rotate consumes the token with id consumedTokenID and stores its successor.
// The consume step is a compare-and-set on an unrevoked, unexpired row, so of
// several concurrent rotations of the same token exactly one succeeds; the
// others get ErrNotFound. The user's expired rows and revoked rows other than
// the one just consumed are purged on the way, so a replay of the consumed
// token still finds it revoked.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, consumedTokenID, userID, newTokenHash string, newExpiresAt time.Time) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens
                SET is_revoked = 1
              WHERE id = ?
                AND is_revoked = 0
                AND expires_at > ?`,
			consumedTokenID,
			now,
		)
		if err != nil {
			return fmt.Errorf("revoking token during rotation: %w", err)
		}

		if err := checkRowsAffected(result); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("checking refresh token rotation rows affected: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM refresh_tokens
              WHERE user_id = ?
                AND id != ?
                AND (expires_at <= ? OR is_revoked = 1)`,
			userID, consumedTokenID, now,
		); err != nil {
			return fmt.Errorf("purging stale refresh tokens: %w", err)
		}

		return insertRefreshToken(ctx, tx, &models.RefreshToken{
			ID:        generateID(),
			UserID:    userID,
			TokenHash: newTokenHash,
			ExpiresAt: newExpiresAt.UTC(),
			CreatedAt: now,
		})
	})
}

// RevokeByHash is idempotent: revoking an unknown or already revoked token
// is not an error.
func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = 1 WHERE token_hash = ? AND is_revoked = 0`,
		tokenHash,
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	return result.RowsAffected()
}

func insertRefreshToken(ctx context.Context, tx *sql.Tx, t *models.RefreshToken) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", translateConstraintError(err))
	}
	return nil
}

func revokeAllForUser(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET is_revoked = 1 WHERE user_id = ? AND is_revoked = 0`, userID)
	if err != nil {
		return fmt.Errorf("revoking user tokens: %w", err)
	}
	return nil
}
