package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Credential and session errors. The gatekeeper maps each to a stable
// machine-readable code; rich internal detail goes to the audit ledger only.
var (
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrSessionInvalid      = errors.New("session expired or invalid")
	ErrRoleMismatch        = errors.New("credential role mismatch")
	ErrAccountInactive     = errors.New("account inactive")
	ErrAccountSuspended    = errors.New("account suspended")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrStepUpRequired      = errors.New("step-up verification required")
)

// Step-up verification errors.
var (
	ErrVerificationFailed    = errors.New("verification failed")
	ErrMaxAttemptsExceeded   = errors.New("maximum verification attempts exceeded")
	ErrNoVerificationPending = errors.New("no verification pending")
	ErrCodeDeliveryFailed    = errors.New("verification code delivery failed")
)

// Machine-readable codes for API responses.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenRevoked        = "TOKEN_REVOKED"
	CodeSessionInvalid      = "SESSION_INVALID"
	CodeRoleMismatch        = "ROLE_MISMATCH"
	CodeAccountInactive     = "ACCOUNT_INACTIVE"
	CodeAccountSuspended    = "ACCOUNT_SUSPENDED"
	CodeInvalidRefresh      = "INVALID_REFRESH_TOKEN"
	CodeRefreshExpired      = "REFRESH_TOKEN_EXPIRED"
	CodeStepUpRequired      = "STEP_UP_REQUIRED"
	CodeVerificationFailed  = "VERIFICATION_FAILED"
	CodeMaxAttemptsExceeded = "MAX_ATTEMPTS_EXCEEDED"
	CodeNoPendingChallenge  = "NO_VERIFICATION_PENDING"
	CodeDeliveryFailed      = "CODE_DELIVERY_FAILED"
	CodeRateLimited         = "RATE_LIMITED"
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
