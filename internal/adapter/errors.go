package adapter

import "errors"

// Errors returned by every DriveAPI implementation. Provider-specific errors
// are wrapped around these so handlers can classify them with errors.Is.
var (
	ErrNotFound = errors.New("file not found")

	// ErrForbidden means the caller may see the file but not change it.
	ErrForbidden = errors.New("permission denied")

	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnauthenticated means the provider rejected the credential itself,
	// for instance because the user revoked access.
	ErrUnauthenticated = errors.New("credential rejected by provider")

	ErrRateLimited = errors.New("provider rate limit exceeded")
)
