// Package cloud defines the canonical entity model and the provider adapter
// contract, plus the shared machinery every adapter is built on: the token
// lifecycle session, the HTTP core with retry and error classification,
// pagination collectors, readiness retry, and async futures.
package cloud

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for operation failure classification.
// Use errors.Is(err, cloud.ErrNotFound) to check.
var (
	// ErrNoAccessToken is returned when a data operation is attempted before
	// the session holds an access token. Checked before any network I/O.
	ErrNoAccessToken = errors.New("cloud: no access token")

	// ErrReauthRequired is returned after logout-and-reset: the refresh token
	// was missing or rejected, the local account was cleared, and a full
	// authorization flow is needed.
	ErrReauthRequired = errors.New("cloud: re-authentication required")

	// ErrMalformedResponse indicates a response missing a required field
	// (id, name) or structurally unexpected JSON.
	ErrMalformedResponse = errors.New("cloud: malformed response")

	// ErrInsufficientStorage indicates local free space is smaller than the
	// declared remote content length. Nothing is written in this case.
	ErrInsufficientStorage = errors.New("cloud: insufficient local storage")

	// ErrNotReady indicates the provider is still processing a freshly
	// uploaded file and its content is not yet downloadable.
	ErrNotReady = errors.New("cloud: content not ready")

	ErrBadRequest   = errors.New("cloud: bad request")
	ErrUnauthorized = errors.New("cloud: unauthorized")
	ErrForbidden    = errors.New("cloud: forbidden")
	ErrNotFound     = errors.New("cloud: not found")
	ErrConflict     = errors.New("cloud: conflict")
	ErrThrottled    = errors.New("cloud: throttled")
	ErrServerError  = errors.New("cloud: server error")
)

// RemoteError wraps a sentinel error with the provider, HTTP status code,
// and the provider's error message body for debugging.
type RemoteError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// TransportError wraps a network-level failure (connection, timeout).
type TransportError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// at the transport level.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
