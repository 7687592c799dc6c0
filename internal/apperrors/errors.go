// Package apperrors defines the typed errors surfaced by the service layer.
// Each error carries the HTTP status and stable code the API responds with.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"tradejournal/internal/constants"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that copies produced by WithMessage, WithDetails and
// Wrap still compare equal to the package-level sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// Wrap attaches cause to a copy of e.
func Wrap(e *Error, cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func Validation(details any) *Error {
	return ErrValidation.WithDetails(details)
}

var (
	ErrValidation     = New(http.StatusBadRequest, constants.ErrCodeValidation, "Validation failed")
	ErrInvalidRequest = New(http.StatusBadRequest, constants.ErrCodeInvalidRequest, "Invalid request")
	ErrInternal       = New(http.StatusInternalServerError, constants.ErrCodeInternal, "An unexpected error occurred")

	ErrUnauthorized       = New(http.StatusUnauthorized, constants.ErrCodeUnauthorized, "Authentication required")
	ErrForbidden          = New(http.StatusForbidden, constants.ErrCodeForbidden, "Insufficient permissions")
	ErrInvalidTokenFormat = New(http.StatusUnauthorized, constants.ErrCodeInvalidTokenFormat, "Invalid authorization header format")
	ErrAuthFailed         = New(http.StatusUnauthorized, constants.ErrCodeAuthError, "Authentication failed")

	ErrInvalidCredentials  = New(http.StatusUnauthorized, constants.ErrCodeInvalidCredentials, "Invalid email or password")
	ErrInvalidToken        = New(http.StatusUnauthorized, constants.ErrCodeInvalidToken, "Invalid token")
	ErrInvalidTokenType    = New(http.StatusUnauthorized, constants.ErrCodeInvalidTokenType, "Invalid token type")
	ErrTokenExpired        = New(http.StatusUnauthorized, constants.ErrCodeTokenExpired, "Token expired")
	ErrTokenRevoked        = New(http.StatusUnauthorized, constants.ErrCodeTokenRevoked, "Token has been revoked")
	ErrInvalidRefreshToken = New(http.StatusUnauthorized, constants.ErrCodeInvalidRefreshToken, "Invalid refresh token")

	ErrEmailExists      = New(http.StatusBadRequest, constants.ErrCodeEmailExists, "Email already registered")
	ErrUserNotFound     = New(http.StatusNotFound, constants.ErrCodeUserNotFound, "User not found")
	ErrAccountDisabled  = New(http.StatusForbidden, constants.ErrCodeAccountDisabled, "Account is disabled")
	ErrAlreadyActive    = New(http.StatusBadRequest, constants.ErrCodeAlreadyActive, "User is already active")
	ErrAlreadyInactive  = New(http.StatusBadRequest, constants.ErrCodeAlreadyInactive, "User is already inactive")
	ErrAlreadyVerified  = New(http.StatusBadRequest, constants.ErrCodeAlreadyVerified, "Email already verified")
	ErrEmailNotVerified = New(http.StatusForbidden, constants.ErrCodeEmailNotVerified, "Email address has not been verified")

	ErrInvalidResetToken = New(http.StatusBadRequest, constants.ErrCodeInvalidResetToken, "Invalid or already used reset token")
	ErrResetTokenExpired = New(http.StatusBadRequest, constants.ErrCodeResetTokenExpired, "Reset token has expired")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, constants.ErrCodeRateLimitExceeded, "Too many password reset requests. Please try again later.")
)
