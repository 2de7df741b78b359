// Package common defines sentinel errors shared by the dlogr server layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorUnauthorized   = errors.New("unauthorized")
	ErrMethodNotAllowed = errors.New("method not allowed")

	// Credential errors.
	ErrInvalidCredentials  = errors.New("unable to login with credentials provided")
	ErrCredentialsRequired = errors.New("either reset_token or (email, password) is required")

	// Token lifecycle errors. Absent and expired tokens are not distinguished.
	ErrTokenInvalidOrExpired = errors.New("token is invalid (or has expired)")
	ErrResetTokenInvalid     = errors.New("reset token is invalid (or has expired)")
)
