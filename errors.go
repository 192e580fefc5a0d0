package concierge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tablewise/concierge/transport"
)

var (
	// ErrNotInitialized is returned by operations invoked before Initialize.
	ErrNotInitialized = errors.New("chat service is not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize call; the
	// provider configuration is immutable after construction.
	ErrAlreadyInitialized = errors.New("chat service is already initialized")
)

// SafetyViolationError reports input that was rejected before any provider
// call. It is never retried and no memory write happens for the turn.
type SafetyViolationError struct {
	Reasons []string
}

func (e *SafetyViolationError) Error() string {
	return "message rejected: " + strings.Join(e.Reasons, "; ")
}

// IsSafetyViolation reports whether err is an input safety rejection.
func IsSafetyViolation(err error) bool {
	var sve *SafetyViolationError
	return errors.As(err, &sve)
}

// UserFacingMessage maps an error from the orchestration layer onto a short,
// actionable message suitable for end users. Raw provider error bodies never
// reach the UI.
func UserFacingMessage(err error) string {
	var sve *SafetyViolationError
	switch {
	case errors.As(err, &sve):
		return fmt.Sprintf("Your message couldn't be sent: %s.", strings.Join(sve.Reasons, "; "))
	case errors.Is(err, transport.ErrAuthentication):
		return "Authentication with the assistant failed — please check the configured API credentials."
	case errors.Is(err, transport.ErrRateLimited):
		return "Rate limit exceeded — please wait a moment and try again."
	case errors.Is(err, transport.ErrServiceUnavailable):
		return "The assistant is temporarily unavailable — please try again shortly."
	case errors.Is(err, transport.ErrTimeout):
		return "The request timed out — please try again."
	case errors.Is(err, ErrNotInitialized):
		return "The assistant isn't configured yet — please contact an administrator."
	default:
		return "Something went wrong while talking to the assistant — please try again."
	}
}
