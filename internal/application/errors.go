package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting principal lacks permission
	// for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when the request collides with existing state,
	// such as a slot held by another member or a duplicate occurrence key.
	ErrConflict = errors.New("application: conflict")
	// ErrRateLimited is returned when the rate guard rejects the call.
	// Retryable after the window passes.
	ErrRateLimited = errors.New("application: rate limited")
	// ErrStorageUnavailable is returned when the store could not serve the
	// request in time. Retryable; no partial writes are ever visible.
	ErrStorageUnavailable = errors.New("application: storage unavailable")
)

// IsRetryable reports whether the error is transient and safe for the caller
// to retry, as opposed to a terminal rejection.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrStorageUnavailable)
}

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
