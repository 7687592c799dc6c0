package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/constants"
	"tradejournal/internal/db"
)

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, SuccessResponse{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// errorWriter turns any error returned by the service layer into the error
// envelope. Unknown errors become 500s; their text is only exposed when
// verbose is set.
type errorWriter struct {
	verbose bool
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Status >= http.StatusInternalServerError {
			slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		writeError(w, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, constants.ErrCodeNotFound, "Resource not found", nil)
		return
	case errors.Is(err, db.ErrDuplicate):
		writeError(w, http.StatusConflict, constants.ErrCodeUniqueViolation, "Resource already exists", nil)
		return
	case errors.Is(err, db.ErrForeignKey):
		writeError(w, http.StatusBadRequest, constants.ErrCodeForeignKeyViolation, "Referenced resource does not exist", nil)
		return
	}

	slog.Error("unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)

	message := apperrors.ErrInternal.Message
	if e.verbose {
		message = err.Error()
	}
	writeError(w, http.StatusInternalServerError, constants.ErrCodeInternal, message, nil)
}
