package core

import (
	"errors"
	"fmt"
)

// Caller-facing errors. The HTTP layer maps these onto status codes with
// errors.Is / errors.As; everything else is recovered locally and never
// surfaced to the counterparty.
var (
	// ErrNotFound means the session id is unknown (or owned by another
	// credential, which is deliberately indistinguishable).
	ErrNotFound = errors.New("session not found")
	// ErrSessionClosed means the operation targeted a Terminated or
	// Archived session.
	ErrSessionClosed = errors.New("session closed")
	// ErrAdmissionRejected means the concurrent-session cap was hit.
	ErrAdmissionRejected = errors.New("admission rejected: session capacity exceeded")
	// ErrRateLimited means the per-credential message rate cap was hit.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrGenerationFailed marks a reply-generation failure. Internal only:
	// the orchestrator falls back to a holding reply instead of surfacing it.
	ErrGenerationFailed = errors.New("reply generation failed")
)

// ValidationError reports malformed caller input. No state is mutated when
// one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named input field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
