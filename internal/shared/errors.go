package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these so transports can
// map failures without knowing each package's sentinels.
var (
	// ErrValidation marks input that can be retried after correction.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks state conflicts that need the caller to re-fetch.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks principals lacking a role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyProcessed is the conflict returned for repeated terminal transitions.
	ErrAlreadyProcessed = &Error{kind: ErrConflict, msg: "already processed"}
)

// Error is a domain error tagged with a kind.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error { return e.kind }

// Validation builds a validation error.
func Validation(msg string) *Error { return &Error{kind: ErrValidation, msg: msg} }

// Validationf builds a formatted validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(msg string) *Error { return &Error{kind: ErrNotFound, msg: msg} }

// Conflict builds a conflict error.
func Conflict(msg string) *Error { return &Error{kind: ErrConflict, msg: msg} }

// Forbidden builds an authorization error.
func Forbidden(msg string) *Error { return &Error{kind: ErrForbidden, msg: msg} }

// AlreadyProcessed builds a conflict that signals a duplicate terminal transition.
func AlreadyProcessed(msg string) *Error { return &Error{kind: ErrAlreadyProcessed, msg: msg} }

// KindOf returns the kind wrapped by err, or nil for unclassified errors.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyProcessed):
		return ErrAlreadyProcessed
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrForbidden):
		return ErrForbidden
	}
	return nil
}
