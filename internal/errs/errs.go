// Package errs defines the service error taxonomy shared by every core
// service. Handlers translate these into HTTP status codes at the boundary;
// anything outside the taxonomy is treated as an internal error and never
// leaks detail to the client.
package errs

import "errors"

// Taxonomy sentinels. Services wrap these via New so the boundary can match
// with errors.Is while still carrying a client-safe message.
var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrSelfReference  = errors.New("self reference")
	ErrAlreadyBlocked = errors.New("already blocked")
	ErrNotBlocked     = errors.New("not blocked")
	ErrAIExclusivity  = errors.New("ai exclusivity violated")
	ErrDependency     = errors.New("dependency failure")
)

// Error ties a client-safe message to a taxonomy sentinel
type Error struct {
	kind    error
	message string
}

// New creates a taxonomy error with a message suitable for the response
// envelope
func New(kind error, message string) *Error {
	return &Error{kind: kind, message: message}
}

func (e *Error) Error() string { return e.message }

// Unwrap exposes the sentinel for errors.Is matching
func (e *Error) Unwrap() error { return e.kind }
