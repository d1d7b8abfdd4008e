package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrAuthExpired means the access token is past its expiry. It is
	// recoverable by one refresh exchange.
	ErrAuthExpired = errors.New("access token expired")
	// ErrAuthInvalid means no usable credentials remain; the user has to
	// connect again.
	ErrAuthInvalid = errors.New("authentication invalid")
	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("network unavailable")
	// ErrNoActiveDevice is the remote's "nothing is playing" signal.
	ErrNoActiveDevice = errors.New("no active device")
	// ErrMalformedResponse wraps payloads that failed to decode.
	ErrMalformedResponse = errors.New("malformed response")
)

// RejectedError is a non-success HTTP status from the remote API.
type RejectedError struct {
	Status     int
	Path       string
	Message    string
	Reason     string
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("api %s returned status %d", e.Path, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsTransient reports whether err should simply be retried on the next poll:
// network failures, malformed payloads, rate limiting and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrMalformedResponse) {
		return true
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Status >= 500 || rejected.Status == http.StatusTooManyRequests
	}
	return false
}

// IsAuth reports whether err means the session is gone.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrAuthExpired)
}
