// ABOUTME: Sentinel and typed errors shared across engine layers
// ABOUTME: Defines the auth/provider/validation error taxonomy for stable mapping
package errs

import (
	"errors"
	"fmt"
)

// Sentinels across the oauth/gateway/coordinator layers.
var (
	// ErrAuthExchangeFailed indicates a bad or expired authorization code.
	// User-facing; retried by restarting the connect flow.
	ErrAuthExchangeFailed = errors.New("authorization code exchange failed")

	// ErrRefreshFailed indicates the refresh token itself was rejected
	// (provider revoked access). Forces a disconnect; never retried.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrAuthExpired indicates the access token was rejected mid-call despite
	// a seemingly valid record. Treated identically to ErrRefreshFailed.
	ErrAuthExpired = errors.New("access token expired")

	// ErrNoRefreshToken indicates the exchange succeeded but the provider
	// returned no refresh token, so the connection could never be kept alive.
	ErrNoRefreshToken = errors.New("provider returned no refresh token")

	// ErrNotConnected indicates an operation that requires a provider
	// connection was called while disconnected.
	ErrNotConnected = errors.New("calendar provider not connected")

	// ErrNotFound indicates the requested event does not exist.
	ErrNotFound = errors.New("event not found")
)

// ProviderError is a transient non-2xx response from the calendar provider.
// Status 0 means the request never completed (timeout or transport failure).
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("provider request failed: %s", e.Message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}

// ValidationError rejects a malformed event before any network or storage call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsAuthFailure reports whether err is an unrecoverable auth condition that
// must transition the user to the disconnected state.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrRefreshFailed)
}
