package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors. ErrInvalidCredentials covers both "no such
	// account" and "wrong password" so callers cannot enumerate users.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account is temporarily locked")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrTwoFactorRequired   = errors.New("two-factor code required")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
)
