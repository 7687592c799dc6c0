package api

import (
	"net/http"
	"strings"

	"tradejournal/internal/service"
)

type PasswordHandler struct {
	resets     *service.PasswordResetService
	ipResolver *ClientIPResolver
	errs       errorWriter
}

func NewPasswordHandler(resets *service.PasswordResetService, ipResolver *ClientIPResolver, errs errorWriter) *PasswordHandler {
	return &PasswordHandler{resets: resets, ipResolver: ipResolver, errs: errs}
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

// POST /api/v1/password/request-reset
func (h *PasswordHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	message, err := h.resets.RequestReset(r.Context(), req.Email, h.ipResolver.Resolve(r), r.UserAgent())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, message, nil)
}

// POST /api/v1/password/reset
func (h *PasswordHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.resets.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password has been reset successfully. Please log in with your new password.", nil)
}

// GET /api/v1/password/validate-token?token=
func (h *PasswordHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))

	valid := false
	if token != "" {
		var err error
		valid, err = h.resets.ValidateResetToken(r.Context(), token)
		if err != nil {
			h.errs.write(w, r, err)
			return
		}
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"valid": valid})
}
