package api

import (
	"context"
	"net/http"
	"strings"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/auth"
	"tradejournal/internal/models"
)

type contextKey string

const (
	identityKey    contextKey = "identity"
	requestMetaKey contextKey = "requestMeta"
)

// Identity is the caller decoded from a valid access token.
type Identity struct {
	UserID string
	Email  string
	Role   models.Role
}

type emailVerifier interface {
	EnsureEmailVerified(ctx context.Context, userID string) error
}

type AuthMiddleware struct {
	jwtService *auth.JWTService
	accounts   emailVerifier
	errs       errorWriter
}

func NewAuthMiddleware(jwtService *auth.JWTService, accounts emailVerifier, errs errorWriter) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService, accounts: accounts, errs: errs}
}

// Authenticate rejects the request unless it carries a valid access token.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.identify(r)
		if err != nil {
			m.errs.write(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// OptionalAuthenticate attaches the caller when a valid access token is
// present and otherwise lets the request through untouched.
func (m *AuthMiddleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.identify(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.requireRole(models.RoleAdmin, next)
}

func (m *AuthMiddleware) RequireSuperAdmin(next http.Handler) http.Handler {
	return m.requireRole(models.RoleSuperAdmin, next)
}

// RequireVerifiedEmail must run after Authenticate.
func (m *AuthMiddleware) RequireVerifiedEmail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			m.errs.write(w, r, apperrors.ErrUnauthorized)
			return
		}

		if err := m.accounts.EnsureEmailVerified(r.Context(), identity.UserID); err != nil {
			m.errs.write(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) requireRole(minRole models.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			m.errs.write(w, r, apperrors.ErrUnauthorized)
			return
		}
		if !identity.Role.AtLeast(minRole) {
			m.errs.write(w, r, apperrors.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) identify(r *http.Request) (*Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, apperrors.ErrUnauthorized.WithMessage("No authorization token provided")
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return nil, apperrors.ErrInvalidTokenFormat
	}

	claims, err := m.jwtService.ValidateAccessToken(token)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrAuthFailed, err)
	}

	return &Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func withIdentity(ctx context.Context, identity *Identity) context.Context {
	if meta, ok := ctx.Value(requestMetaKey).(*requestMeta); ok {
		meta.userID = identity.UserID
	}
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}

// requestMeta is filled in by inner middleware and read by the request
// logger once the handler returns.
type requestMeta struct {
	userID string
}

func contextWithRequestMeta(ctx context.Context, meta *requestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}
