// Package common defines shared constants and sentinel errors used across
// the Coyn server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrPersistence     = errors.New("persistence error")
	ErrVersionConflict = errors.New("version conflict")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Principal directory errors.
	ErrPrincipalNotFound = fmt.Errorf("principal %w", ErrorNotFound)

	// Credential verification errors. These never cross the service boundary
	// unwrapped; the verifier and rotation collapse them to ErrorUnauthorized.
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")

	// ErrInvalidRefreshToken is the single outcome reported for any refresh
	// credential that fails signature, record expiry, ownership or generation checks.
	ErrInvalidRefreshToken = fmt.Errorf("invalid refresh token: %w", ErrorUnauthorized)
)
