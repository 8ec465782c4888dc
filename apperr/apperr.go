// Package apperr defines the error classes surfaced at the API and
// pipeline boundaries. Callers classify with errors.Is and wrap with
// fmt.Errorf("%w: ...", apperr.ErrX) or errors.Join.
package apperr

import "errors"

var (
	// ErrValidation marks a malformed or oversized upload. No state is
	// created for the rejected request.
	ErrValidation = errors.New("validation error")

	// ErrStorage marks unwritable or unreachable backing storage.
	ErrStorage = errors.New("storage error")

	// ErrCapability marks a failed, timed out, or malformed response
	// from an external AI capability. Recorded on the meeting record,
	// never propagated out of the background runner.
	ErrCapability = errors.New("capability error")

	// ErrNotFound marks operations against a nonexistent meeting or image.
	ErrNotFound = errors.New("not found")
)
