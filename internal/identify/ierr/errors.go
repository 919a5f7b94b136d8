// Package ierr defines the error taxonomy shared by every pipeline stage.
package ierr

import "errors"

// Sentinel kinds. Stages wrap one of these with fmt.Errorf("...: %w", Kind)
// so callers can classify failures with errors.Is without string matching.
var (
	// ErrValidation marks a precondition violated in the image validator.
	// Fatal for the run.
	ErrValidation = errors.New("validation_error")

	// ErrProviderTransient marks a timeout, 429, 5xx, or other transient
	// network failure. Retried with backoff by the orchestrator.
	ErrProviderTransient = errors.New("provider_transient")

	// ErrProviderFatal marks a malformed 4xx response or an authentication
	// failure. Never retried; the stage fails soft and contributes no
	// evidence for that call.
	ErrProviderFatal = errors.New("provider_fatal")

	// ErrParse marks an LLM response that stayed non-JSON through the final
	// retry attempt.
	ErrParse = errors.New("parse_error")

	// ErrEmptyVision marks an aggregated metadata proposal with no non-null
	// fields and zero confidence. Terminates the run with status=failed.
	ErrEmptyVision = errors.New("empty_vision")

	// ErrDeadlineExceeded marks a run-level deadline breach.
	ErrDeadlineExceeded = errors.New("deadline_exceeded")
)

// Is reports whether err ultimately wraps one of the sentinel kinds above.
func Is(err error, kind error) bool {
	return errors.Is(err, kind)
}
