package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tradejournal/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, is_email_verified, is_active,
       email_verification_token, email_verification_expires, password_reset_token, password_reset_expires,
       last_login_at, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u, assigning ID and timestamps when unset. The email column
// is unique, so losing a registration race surfaces as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = generateID()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.IsEmailVerified, u.IsActive,
		u.EmailVerificationToken, timePtrToUTC(u.EmailVerificationExpires), u.PasswordResetToken, timePtrToUTC(u.PasswordResetExpires),
		timePtrToUTC(u.LastLoginAt), u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", translateConstraintError(err))
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail expects email already normalized to lower case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// FindByVerificationToken only considers accounts that are still unverified.
func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email_verification_token = ? AND is_email_verified = 0`,
		token,
	)
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE password_reset_token = ?`, tokenHash)
}

// ListInactive returns accounts awaiting approval, newest first.
func (r *UserRepository) ListInactive(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_active = 0 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying inactive users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Activate flips is_active on. It returns ErrNotFound when no inactive row
// with that id exists.
func (r *UserRepository) Activate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = 1, updated_at = ? WHERE id = ? AND is_active = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("activating user: %w", err)
	}
	return checkRowsAffected(result)
}

// DeactivateAndRevokeSessions flips is_active off and revokes every refresh
// token of the user in one transaction. It returns ErrNotFound when no
// active row with that id exists.
func (r *UserRepository) DeactivateAndRevokeSessions(ctx context.Context, id string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`,
			time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("deactivating user: %w", err)
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}
		return revokeAllForUser(ctx, tx, id)
	})
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
            SET is_email_verified = 1,
                email_verification_token = NULL,
                email_verification_expires = NULL,
                updated_at = ?
          WHERE id = ? AND is_email_verified = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verification_token = ?, email_verification_expires = ?, updated_at = ? WHERE id = ?`,
		token, expiresAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting verification token: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

// UpdatePasswordAndRevokeSessions stores a new digest and revokes every
// refresh token of the user in one transaction.
func (r *UserRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, id, passwordHash string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
			passwordHash, time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}
		return revokeAllForUser(ctx, tx, id)
	})
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	var firstName, lastName, verificationToken, resetToken sql.NullString
	var verificationExpires, resetExpires, lastLoginAt sql.NullTime

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&firstName,
		&lastName,
		&role,
		&u.IsEmailVerified,
		&u.IsActive,
		&verificationToken,
		&verificationExpires,
		&resetToken,
		&resetExpires,
		&lastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.FirstName = nullStringToPtr(firstName)
	u.LastName = nullStringToPtr(lastName)
	u.EmailVerificationToken = nullStringToPtr(verificationToken)
	u.EmailVerificationExpires = nullTimeToPtr(verificationExpires)
	u.PasswordResetToken = nullStringToPtr(resetToken)
	u.PasswordResetExpires = nullTimeToPtr(resetExpires)
	u.LastLoginAt = nullTimeToPtr(lastLoginAt)

	return &u, nil
}
