package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tradejournal/internal/models"
)

// PasswordResetRepository owns the reset token columns of users together
// with the password_reset_attempts table.
type PasswordResetRepository struct {
	db *DB
}

func NewPasswordResetRepository(db *DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// AttemptsSince returns the user's reset attempts created at or after since,
// newest first.
func (r *PasswordResetRepository) AttemptsSince(ctx context.Context, userID string, since time.Time) ([]*models.PasswordResetAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, ip_address, user_agent, created_at
           FROM password_reset_attempts
          WHERE user_id = ? AND created_at >= ?
          ORDER BY created_at DESC`,
		userID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying reset attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.PasswordResetAttempt
	for rows.Next() {
		var a models.PasswordResetAttempt
		var userAgent sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.IPAddress, &userAgent, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reset attempt: %w", err)
		}
		a.UserAgent = nullStringToPtr(userAgent)
		attempts = append(attempts, &a)
	}

	return attempts, rows.Err()
}

// Issue stores the hashed reset token on the user and records the attempt in
// one transaction.
func (r *PasswordResetRepository) Issue(ctx context.Context, userID, tokenHash string, expiresAt time.Time, ipAddress string, userAgent *string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET password_reset_token = ?, password_reset_expires = ?, updated_at = ? WHERE id = ?`,
			tokenHash, expiresAt.UTC(), now, userID,
		)
		if err != nil {
			return fmt.Errorf("storing reset token: %w", translateConstraintError(err))
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO password_reset_attempts (id, user_id, ip_address, user_agent, created_at) VALUES (?, ?, ?, ?, ?)`,
			generateID(), userID, ipAddress, userAgent, now,
		)
		if err != nil {
			return fmt.Errorf("recording reset attempt: %w", translateConstraintError(err))
		}
		return nil
	})
}

// Consume sets a new password digest, clears the reset token and revokes all
// refresh tokens of the user. The update is conditioned on the stored token
// hash, so a token can be consumed once; a second call returns ErrNotFound.
func (r *PasswordResetRepository) Consume(ctx context.Context, userID, tokenHash, passwordHash string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users
                SET password_hash = ?,
                    password_reset_token = NULL,
                    password_reset_expires = NULL,
                    updated_at = ?
              WHERE id = ? AND password_reset_token = ?`,
			passwordHash, time.Now().UTC(), userID, tokenHash,
		)
		if err != nil {
			return fmt.Errorf("resetting password: %w", err)
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}
		return revokeAllForUser(ctx, tx, userID)
	})
}

func (r *PasswordResetRepository) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_attempts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old reset attempts: %w", err)
	}
	return result.RowsAffected()
}
