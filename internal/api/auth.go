package api

import (
	"net/http"
	"strings"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/service"
)

type AuthHandler struct {
	accounts *service.AccountService
	sessions *service.SessionService
	errs     errorWriter
}

func NewAuthHandler(accounts *service.AccountService, sessions *service.SessionService, errs errorWriter) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions, errs: errs}
}

type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,password"`
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1,max=100"`
}

func (req RegisterRequest) input() service.RegisterInput {
	return service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: sanitizeName(req.FirstName),
		LastName:  sanitizeName(req.LastName),
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,password"`
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	result, err := h.accounts.Register(r.Context(), req.input())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, result.Message, map[string]any{"user": result.User})
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	result, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", result)
}

// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	tokens, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Token refreshed successfully", map[string]any{"tokens": tokens})
}

// POST /api/v1/auth/logout
// A missing body or unknown token still logs out successfully.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := decodeOptionalAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// GET /api/v1/auth/verify-email?token=
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		h.errs.write(w, r, apperrors.Validation([]FieldError{{Field: "token", Message: "Verification token is required"}}))
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), token); err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Email verified successfully", nil)
}

// POST /api/v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), req.Email); err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Verification email sent", nil)
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.errs.write(w, r, apperrors.ErrUnauthorized)
		return
	}

	user, err := h.accounts.CurrentUser(r.Context(), identity.UserID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"user": user})
}

// POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.errs.write(w, r, apperrors.ErrUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), identity.UserID, req.NewPassword); err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password changed successfully. Please log in again.", nil)
}
