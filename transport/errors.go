package transport

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrAuthentication marks 401/403 responses. Never retried; the caller
	// needs to fix credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimited marks 429 responses. Retried with backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable marks 5xx responses. Retried with backoff.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout marks an attempt that exceeded its deadline. Counted as a
	// retryable failure.
	ErrTimeout = errors.New("request timed out")

	// ErrRetryExhausted wraps the last failure once the retry budget is spent.
	ErrRetryExhausted = errors.New("retries exhausted")
)

// StatusError is a non-2xx HTTP response converted to an error. It carries the
// status code and whatever error message the provider put in the body.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
}

// Unwrap maps the status code onto the sentinel taxonomy so callers can use
// errors.Is for classification.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == 401 || e.Status == 403:
		return ErrAuthentication
	case e.Status == 429:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrServiceUnavailable
	default:
		return nil
	}
}

// newStatusError parses the provider error body for a human-readable message.
// Providers disagree on the envelope: OpenAI nests it under error.message,
// Anthropic under error.message as well, others use a bare message field.
func newStatusError(status int, body []byte) *StatusError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" && len(body) > 0 && gjson.ValidBytes(body) {
		msg = gjson.GetBytes(body, "error").String()
	}
	return &StatusError{Status: status, Message: msg}
}

// retryable reports whether an error is worth another attempt. Authentication
// failures are final; everything else that made it out of an attempt
// (connection failures, timeouts, rate limits, 5xx, other non-2xx) is not.
func retryable(err error) bool {
	return !errors.Is(err, ErrAuthentication)
}
