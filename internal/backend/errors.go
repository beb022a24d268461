package backend

import "errors"

var (
	// ErrNotFound means the remote key does not exist in the backend.
	// Terminal for the attempt; retried only on the next refresh tick.
	ErrNotFound = errors.New("remote secret not found")

	// ErrAuth means credentials are invalid or expired. Terminal until
	// credentials are rotated.
	ErrAuth = errors.New("backend authentication failed")

	// ErrThrottled means the backend rate-limited the request. Retryable.
	ErrThrottled = errors.New("backend throttled the request")

	// ErrUnavailable means the backend could not be reached or returned a
	// server-side failure. Retryable.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrMissingProperty means a property declared by a mapping is absent
	// from the fetched bundle. Mapping-level error, no partial write.
	ErrMissingProperty = errors.New("declared property missing from remote bundle")
)

// IsRetryable reports whether the error is transient and worth retrying
// with backoff within the same reconciliation attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnavailable)
}
