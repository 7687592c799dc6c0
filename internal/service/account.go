package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/auth"
	"tradejournal/internal/constants"
	"tradejournal/internal/db"
	"tradejournal/internal/models"
)

const RegistrationPendingMessage = "Registration submitted. Your account will be activated after admin approval."

type AccountService struct {
	users    UserStore
	hasher   PasswordHasher
	notifier Notifier
	now      func() time.Time
}

func NewAccountService(users UserStore, hasher PasswordHasher, notifier Notifier) *AccountService {
	return &AccountService{
		users:    users,
		hasher:   hasher,
		notifier: notifier,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
}

type AdminRegisterInput struct {
	RegisterInput
	Role models.Role
}

type RegisterResult struct {
	User    *models.PublicUser
	Message string
}

// Register creates an inactive, unverified USER and queues the
// verification, pending-approval and admin notice mails.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	user, token, err := s.createAccount(ctx, in, models.RoleUser, false)
	if err != nil {
		return nil, err
	}

	s.notifier.SendVerification(user, token)
	s.notifier.SendRegistrationPending(user)
	s.notifier.SendAdminNewRegistration(user)

	slog.Info("user registered", "component", "account", "user_id", user.ID)

	return &RegisterResult{User: user.Public(), Message: RegistrationPendingMessage}, nil
}

// RegisterByAdmin creates an active, unverified account with the requested
// role on behalf of an administrator.
func (s *AccountService) RegisterByAdmin(ctx context.Context, in AdminRegisterInput, adminID string) (*models.PublicUser, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, apperrors.Validation(map[string]string{"role": "role must be USER or ADMIN"})
	}

	user, token, err := s.createAccount(ctx, in.RegisterInput, role, true)
	if err != nil {
		return nil, err
	}

	s.notifier.SendVerification(user, token)
	s.notifier.SendAccountApproved(user)

	slog.Info("user registered by admin", "component", "account", "user_id", user.ID, "admin_id", adminID, "role", role)

	return user.Public(), nil
}

func (s *AccountService) ApproveUser(ctx context.Context, userID, adminID string) (*models.PublicUser, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsActive {
		return nil, apperrors.ErrAlreadyActive
	}

	if err := s.users.Activate(ctx, user.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperrors.ErrAlreadyActive
		}
		return nil, fmt.Errorf("activating user: %w", err)
	}

	user.IsActive = true
	user.UpdatedAt = s.now().UTC()
	s.notifier.SendAccountApproved(user)

	slog.Info("user approved", "component", "account", "user_id", user.ID, "admin_id", adminID)

	return user.Public(), nil
}

// DeactivateUser disables the account and revokes every refresh token it
// holds. Super-admins and the acting admin themselves cannot be deactivated.
func (s *AccountService) DeactivateUser(ctx context.Context, userID, adminID string) (*models.PublicUser, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleSuperAdmin {
		return nil, apperrors.ErrForbidden.WithMessage("Super admin accounts cannot be deactivated")
	}
	if user.ID == adminID {
		return nil, apperrors.ErrForbidden.WithMessage("You cannot deactivate your own account")
	}
	if !user.IsActive {
		return nil, apperrors.ErrAlreadyInactive
	}

	if err := s.users.DeactivateAndRevokeSessions(ctx, user.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperrors.ErrAlreadyInactive
		}
		return nil, fmt.Errorf("deactivating user: %w", err)
	}

	user.IsActive = false
	user.UpdatedAt = s.now().UTC()
	s.notifier.SendAccountDeactivated(user)

	slog.Info("user deactivated", "component", "account", "user_id", user.ID, "admin_id", adminID)

	return user.Public(), nil
}

func (s *AccountService) PendingUsers(ctx context.Context) ([]*models.PublicUser, error) {
	users, err := s.users.ListInactive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending users: %w", err)
	}
	return publicUsers(users), nil
}

func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.users.FindByVerificationToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return apperrors.ErrInvalidToken.WithStatus(http.StatusBadRequest).WithMessage("Invalid verification token")
	}
	if err != nil {
		return fmt.Errorf("finding verification token: %w", err)
	}
	if user.IsEmailVerified {
		return apperrors.ErrAlreadyVerified
	}
	if user.EmailVerificationExpires != nil && user.EmailVerificationExpires.Before(s.now()) {
		return apperrors.ErrTokenExpired.WithStatus(http.StatusBadRequest).WithMessage("Verification token expired")
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperrors.ErrAlreadyVerified
		}
		return fmt.Errorf("marking email verified: %w", err)
	}

	slog.Info("email verified", "component", "account", "user_id", user.ID)
	return nil
}

func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}
	if user.IsEmailVerified {
		return apperrors.ErrAlreadyVerified
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generating verification token: %w", err)
	}
	if err := s.users.SetVerificationToken(ctx, user.ID, token, s.now().Add(constants.EmailVerificationTTL)); err != nil {
		return fmt.Errorf("storing verification token: %w", err)
	}

	s.notifier.SendVerification(user, token)
	return nil
}

func (s *AccountService) CurrentUser(ctx context.Context, id string) (*models.PublicUser, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountDisabled
	}
	return user.Public(), nil
}

// ChangePassword stores a new digest and revokes every refresh token, which
// signs the user out on all devices.
func (s *AccountService) ChangePassword(ctx context.Context, userID, newPassword string) error {
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.users.UpdatePasswordAndRevokeSessions(ctx, userID, digest); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperrors.ErrUserNotFound.WithStatus(http.StatusForbidden)
		}
		return fmt.Errorf("changing password: %w", err)
	}

	slog.Info("password changed", "component", "account", "user_id", userID)
	return nil
}

// EnsureEmailVerified fails with EMAIL_NOT_VERIFIED unless the account has
// confirmed its address.
func (s *AccountService) EnsureEmailVerified(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return apperrors.ErrUserNotFound.WithStatus(http.StatusForbidden)
	}
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}
	if !user.IsEmailVerified {
		return apperrors.ErrEmailNotVerified
	}
	return nil
}

// EnsureSuperAdmin creates an active, verified SUPER_ADMIN with the given
// credentials unless an account with that email already exists.
func (s *AccountService) EnsureSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return false, fmt.Errorf("finding super admin: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Email:           email,
		PasswordHash:    digest,
		Role:            models.RoleSuperAdmin,
		IsEmailVerified: true,
		IsActive:        true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("creating super admin: %w", err)
	}

	slog.Info("super admin created", "component", "account", "user_id", user.ID)
	return true, nil
}

func (s *AccountService) createAccount(ctx context.Context, in RegisterInput, role models.Role, active bool) (*models.User, string, error) {
	email := NormalizeEmail(in.Email)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, "", apperrors.ErrEmailExists
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, "", fmt.Errorf("checking email: %w", err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, "", fmt.Errorf("generating verification token: %w", err)
	}
	expires := s.now().UTC().Add(constants.EmailVerificationTTL)

	user := &models.User{
		Email:                    email,
		PasswordHash:             digest,
		FirstName:                in.FirstName,
		LastName:                 in.LastName,
		Role:                     role,
		IsActive:                 active,
		EmailVerificationToken:   &token,
		EmailVerificationExpires: &expires,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, "", apperrors.ErrEmailExists
		}
		return nil, "", fmt.Errorf("creating user: %w", err)
	}

	return user, token, nil
}

// requireAdmin resolves the acting account and checks it may administer
// other accounts.
func (s *AccountService) requireAdmin(ctx context.Context, adminID string) (*models.User, error) {
	admin, err := s.users.FindByID(ctx, adminID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("finding admin: %w", err)
	}
	if !admin.IsActive || !admin.Role.AtLeast(models.RoleAdmin) {
		return nil, apperrors.ErrForbidden
	}
	return admin, nil
}

func (s *AccountService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return user, nil
}
