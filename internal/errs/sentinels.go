// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across auth/limiter/repo/service layers. The HTTP boundary
// maps each kind to a status code exactly once; no layer swallows one into a
// generic success.
var (
	// ErrNoCredentials indicates no bearer token was supplied.
	ErrNoCredentials = errors.New("no credentials")

	// ErrInvalidToken indicates a supplied token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrKeySetUnavailable indicates the remote signing-key set could not be fetched.
	ErrKeySetUnavailable = errors.New("key set unavailable")

	// ErrUnknownKey indicates the token's key id is absent even after a key-set refresh.
	ErrUnknownKey = errors.New("unknown signing key")

	// ErrPrincipalNotFound indicates a verified subject has no registered principal.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrPermissionDenied indicates the actor is authenticated but not allowed.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates the request exceeded a route quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrStorage wraps unexpected storage-engine failures; engine detail never
	// crosses the transport boundary.
	ErrStorage = errors.New("storage failure")

	// ErrValidation indicates malformed or rejected input.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists indicates a uniqueness violation (e.g., subject taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnavailable indicates a dependency is down and the configured policy
	// is to refuse rather than degrade.
	ErrUnavailable = errors.New("service unavailable")
)
