package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountLocked      = errors.New("account locked")
	ErrEmailAlreadyInUse  = errors.New("email already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRefreshToken       = errors.New("invalid refresh token")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("insufficient role")
)

// Refresh token failure reasons.
const (
	RefreshReasonInvalid      = "invalid"
	RefreshReasonNotFound     = "not_found"
	RefreshReasonRevoked      = "revoked"
	RefreshReasonExpired      = "expired"
	RefreshReasonUserInactive = "user_inactive"
)

// Access token failure reasons. They are logged but collapse to ErrInvalidToken
// for callers.
const (
	TokenReasonMalformed = "malformed"
	TokenReasonSignature = "signature"
	TokenReasonExpired   = "expired"
	TokenReasonWrongType = "wrong_type"
	TokenReasonClaims    = "claims"
)

// AccountLockedError is returned while an account's lockout window is open.
type AccountLockedError struct {
	Email            string
	MinutesRemaining int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account %s is locked, try again in %d minute(s)", e.Email, e.MinutesRemaining)
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// InvalidTokenError carries the internal reason a token was rejected.
type InvalidTokenError struct {
	Reason string
	Err    error
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + e.Reason
}

func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// RefreshTokenError means the caller has to log in again.
type RefreshTokenError struct {
	Reason string
}

func (e *RefreshTokenError) Error() string {
	return "refresh token rejected: " + e.Reason
}

func (e *RefreshTokenError) Is(target error) bool {
	return target == ErrRefreshToken
}

// ValidationError describes the first invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
