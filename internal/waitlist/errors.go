package waitlist

import "errors"

// Sentinel errors for the signup pipeline. The messages are user-facing and
// returned verbatim in the response error field.
var (
	ErrInvalidJSON        = errors.New("Invalid JSON payload.")
	ErrEmailRequired      = errors.New("A valid email address is required.")
	ErrTokenRequired      = errors.New("Verification token is required.")
	ErrVerificationFailed = errors.New("Verification failed.")
)

// IsValidationError reports whether err is a pre-I/O input rejection
// (always a 400, never logged as exceptional).
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidJSON) ||
		errors.Is(err, ErrEmailRequired) ||
		errors.Is(err, ErrTokenRequired)
}
