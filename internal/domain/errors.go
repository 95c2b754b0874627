package domain

import "errors"

// Reconciliation outcomes that are expected, not exceptional. Callers return
// to the previous screen silently and nothing is logged as an error.
var (
	ErrUserCancelled = errors.New("sign-in cancelled by user")
	ErrDeclined      = errors.New("user declined the confirmation prompt")
)

// Failure kinds surfaced to the UI.
var (
	ErrProviderFailure       = errors.New("identity provider failure")
	ErrDirectoryReadFailed   = errors.New("account directory read failed")
	ErrDirectoryWriteFailed  = errors.New("account directory write failed")
	ErrMetadataUnavailable   = errors.New("device metadata unavailable")
	ErrCacheWriteFailed      = errors.New("session cache write failed")
	ErrDeserializationFailed = errors.New("cached session is corrupt")
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateExternalID is returned by a conditional create when another
	// writer already holds the external id.
	ErrDuplicateExternalID = errors.New("account with this external id already exists")

	ErrReconcileInProgress = errors.New("a sign-in attempt is already in progress")
	ErrUnknownConfirmation = errors.New("unknown or expired confirmation token")
	ErrInvalidIntent       = errors.New("invalid reconciliation intent")
)

// IsExpectedOutcome reports whether err is a silent, user-driven outcome.
func IsExpectedOutcome(err error) bool {
	return errors.Is(err, ErrUserCancelled) || errors.Is(err, ErrDeclined)
}

// UserMessage maps an error to the single message shown to the user. Silent
// outcomes map to "".
func UserMessage(err error) string {
	switch {
	case err == nil, IsExpectedOutcome(err):
		return ""
	case errors.Is(err, ErrReconcileInProgress):
		return "A sign-in is already in progress."
	case errors.Is(err, ErrUnknownConfirmation):
		return "This sign-in request has expired. Please try again."
	case errors.Is(err, ErrProviderFailure):
		return "Google sign-in failed. Check your connection and try again."
	case errors.Is(err, ErrDirectoryReadFailed), errors.Is(err, ErrDirectoryWriteFailed):
		return "We could not reach your account right now. Please try again."
	case errors.Is(err, ErrCacheWriteFailed):
		return "Signed in, but you will need to sign in again next time."
	default:
		return "Something went wrong. Please try again."
	}
}
