package domain

import (
	"errors"
	"fmt"
)

// NoEligibleBackendError indicates that no registered backend for a content
// kind passed its capability requirement. This is a configuration error,
// not a runtime failure: a correctly configured registry always carries an
// unconditionally eligible CPU backend per kind.
type NoEligibleBackendError struct {
	Kind Kind
}

func (e *NoEligibleBackendError) Error() string {
	return fmt.Sprintf("no eligible backend for kind %q", e.Kind)
}

// IsNoEligibleBackend reports whether err is a NoEligibleBackendError.
func IsNoEligibleBackend(err error) bool {
	var target *NoEligibleBackendError
	return errors.As(err, &target)
}

// UnknownBackendError indicates a forced backend override named a backend
// that is not registered, or is registered for a different content kind.
type UnknownBackendError struct {
	ID   string
	Kind Kind
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend %q for kind %q", e.ID, e.Kind)
}

// IsUnknownBackend reports whether err is an UnknownBackendError.
func IsUnknownBackend(err error) bool {
	var target *UnknownBackendError
	return errors.As(err, &target)
}
