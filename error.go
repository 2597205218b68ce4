package warden

// Error is the error type used by warden. This allows errors to be defined as
// constants following https://dave.cheney.net/2016/04/07/constant-errors.
type Error string

// Error implements the "error" interface of the standard library.
func (err Error) Error() string {
	return string(err)
}

// ErrNotImplemented is returned if a feature is used that is not implemented
// by the corresponding component (usually the Adapter). For instance, not all
// Adapter implementations support emoji reactions or renaming channels and
// using such a feature against an adapter that lacks it returns this error.
const ErrNotImplemented = Error("not implemented")

// ErrNotAllowed is returned if a user is not allowed access to a specific scope.
const ErrNotAllowed = Error("not allowed")
