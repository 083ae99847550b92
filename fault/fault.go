// Package fault defines the error taxonomy shared by services and handlers.
// Handlers map a Fault's Type onto an HTTP status; everything that is not a
// Fault is treated as internal.
package fault

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("resource not found")

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrMissing
	ErrUnauthorized
	ErrForbidden
	ErrConflict
	ErrInternal
)

type Fault struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Fault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.typeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.typeString(), e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Fault) Unwrap() error {
	return e.Err
}

func (e *Fault) typeString() string {
	switch e.Type {
	case ErrValidation:
		return "ValidationError"
	case ErrMissing:
		return "NotFound"
	case ErrUnauthorized:
		return "Unauthorized"
	case ErrForbidden:
		return "Forbidden"
	case ErrConflict:
		return "Conflict"
	case ErrInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Validation creates a validation error with a formatted, user-facing message.
func Validation(format string, args ...any) error {
	return &Fault{Type: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error for the named resource.
func NotFound(format string, args ...any) error {
	return &Fault{Type: ErrMissing, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

func Unauthorized(msg string) error {
	return &Fault{Type: ErrUnauthorized, Message: msg}
}

func Forbidden(msg string) error {
	return &Fault{Type: ErrForbidden, Message: msg}
}

func Conflict(format string, args ...any) error {
	return &Fault{Type: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error; its message is safe to log but is not
// shown to API consumers.
func Internal(msg string, err error) error {
	return &Fault{Type: ErrInternal, Message: msg, Err: err}
}

// TypeOf extracts the error type, defaulting to ErrInternal for plain errors.
func TypeOf(err error) ErrorType {
	var f *Fault
	if errors.As(err, &f) {
		return f.Type
	}
	return ErrInternal
}

// Message returns the user-facing message of a Fault, or an empty string.
func Message(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return ""
}

func IsValidation(err error) bool { return is(err, ErrValidation) }
func IsNotFound(err error) bool   { return is(err, ErrMissing) }

func is(err error, t ErrorType) bool {
	var f *Fault
	return errors.As(err, &f) && f.Type == t
}
