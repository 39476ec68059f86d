// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values;
// services wrap them with a human-readable reason, e.g.
//
//	fmt.Errorf("%w: refresh token is no longer valid", common.ErrorUnauthorized)
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors, mapped one-to-one onto HTTP statuses.
	ErrorInternal       = errors.New("internal error")
	ErrorUnauthorized   = errors.New("unauthorized")
	ErrorBadRequest     = errors.New("bad request")
	ErrorRequestTimeout = errors.New("request timeout")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
