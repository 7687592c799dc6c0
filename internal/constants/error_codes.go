package constants

import "time"

const (
	// Request and transport errors
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeRouteNotFound       = "ROUTE_NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_SERVER_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUniqueViolation     = "UNIQUE_CONSTRAINT_VIOLATION"
	ErrCodeForeignKeyViolation = "FOREIGN_KEY_CONSTRAINT_VIOLATION"

	// Authentication
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidTokenFormat  = "INVALID_TOKEN_FORMAT"
	ErrCodeAuthError           = "AUTH_ERROR"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken        = "INVALID_TOKEN"
	ErrCodeInvalidTokenType    = "INVALID_TOKEN_TYPE"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked        = "TOKEN_REVOKED"
	ErrCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"

	// Account lifecycle
	ErrCodeEmailExists      = "EMAIL_EXISTS"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeAccountDisabled  = "ACCOUNT_DISABLED"
	ErrCodeAlreadyActive    = "ALREADY_ACTIVE"
	ErrCodeAlreadyInactive  = "ALREADY_INACTIVE"
	ErrCodeAlreadyVerified  = "ALREADY_VERIFIED"
	ErrCodeEmailNotVerified = "EMAIL_NOT_VERIFIED"

	// Password reset
	ErrCodeInvalidResetToken = "INVALID_RESET_TOKEN"
	ErrCodeResetTokenExpired = "RESET_TOKEN_EXPIRED"
)

const (
	OpaqueTokenBytes = 32

	EmailVerificationTTL = 24 * time.Hour
	PasswordResetTTL     = time.Hour

	ResetAttemptsPerHour   = 3
	ResetAttemptsPerDay    = 5
	ResetAttemptsRetention = 30 * 24 * time.Hour
)
