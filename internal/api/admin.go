package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

type AdminHandler struct {
	accounts *service.AccountService
	resets   *service.PasswordResetService
	errs     errorWriter
}

func NewAdminHandler(accounts *service.AccountService, resets *service.PasswordResetService, errs errorWriter) *AdminHandler {
	return &AdminHandler{accounts: accounts, resets: resets, errs: errs}
}

type AdminRegisterRequest struct {
	RegisterRequest
	Role models.Role `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

// POST /api/v1/admin/register, /api/v1/admin/users, /api/v1/auth/admin/register
func (h *AdminHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.errs.write(w, r, apperrors.ErrUnauthorized)
		return
	}

	var req AdminRegisterRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	user, err := h.accounts.RegisterByAdmin(r.Context(), service.AdminRegisterInput{
		RegisterInput: req.input(),
		Role:          req.Role,
	}, identity.UserID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "User created successfully", map[string]any{"user": user})
}

// POST /api/v1/admin/approve/{userId}
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	identity, userID, ok := h.targetUser(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.ApproveUser(r.Context(), userID, identity.UserID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User approved successfully", map[string]any{"user": user})
}

// POST /api/v1/admin/deactivate/{userId}
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	identity, userID, ok := h.targetUser(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.DeactivateUser(r.Context(), userID, identity.UserID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User deactivated successfully", map[string]any{"user": user})
}

// GET /api/v1/admin/pending-users
func (h *AdminHandler) PendingUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.PendingUsers(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{
		"users": users,
		"count": len(users),
	})
}

// POST /api/v1/admin/maintenance/cleanup-reset-attempts
func (h *AdminHandler) CleanupResetAttempts(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.resets.CleanupOldAttempts(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	if identity, ok := IdentityFrom(r.Context()); ok {
		slog.Info("reset attempts cleaned up", "component", "admin", "admin_id", identity.UserID, "deleted", deleted)
	}

	writeSuccess(w, http.StatusOK, "Old reset attempts cleaned up", map[string]any{"deleted": deleted})
}

func (h *AdminHandler) targetUser(w http.ResponseWriter, r *http.Request) (*Identity, string, bool) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.errs.write(w, r, apperrors.ErrUnauthorized)
		return nil, "", false
	}

	userID := chi.URLParam(r, "userId")
	if err := validateUUIDParam("userId", userID); err != nil {
		h.errs.write(w, r, err)
		return nil, "", false
	}

	return identity, userID, true
}
