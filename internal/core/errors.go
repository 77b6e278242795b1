package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the core wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrSession      = errors.New("session error")
	ErrEmptyHistory = errors.New("nothing to undo")
	ErrStorage      = errors.New("storage error")
	ErrComputation  = errors.New("computation error")

	// ErrNotFound is returned by blob and snapshot stores for unknown keys.
	ErrNotFound = errors.New("not found")
)

// Error is a structured core failure with a stable kind.
type Error struct {
	Kind error
	Msg  string
	Err  error // underlying cause, if any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Kind.Error(), e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind.Error(), e.Msg, e.Err)
}

// Is matches the error's kind, so errors.Is(err, ErrSession) works.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

func validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func sessionf(format string, args ...any) error {
	return &Error{Kind: ErrSession, Msg: fmt.Sprintf(format, args...)}
}

func storageErr(op string, err error) error {
	return &Error{Kind: ErrStorage, Msg: op, Err: err}
}

// KindOf returns the stable kind name of err, or "internal" for foreign errors.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSession):
		return "session"
	case errors.Is(err, ErrEmptyHistory):
		return "empty_history"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrComputation):
		return "computation"
	}
	return "internal"
}
