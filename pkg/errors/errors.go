// Package errors augments the standard errors with sentinel values that
// can be wrapped around a cause without losing their identity.
//
// A sentinel is declared once:
//
//	ErrCorruptArchive = errors.New("corrupt archive")
//
// and returned with its cause:
//
//	return ErrCorruptArchive.Wrap(err)
//
// Wrap never mutates the sentinel, so package-level values are safe to use
// from many goroutines.
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error is a sentinel error, optionally carrying a cause and some detail.
type Error struct {
	msg    string
	detail string
	err    error
	origin *Error
}

// Error message
func (e *Error) Error() string {
	msg := e.msg
	if e.detail != "" {
		msg += " (" + e.detail + ")"
	}
	if e.err != nil {
		return msg + ": " + e.err.Error()
	}
	return msg
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error. It returns a new value which still matches the sentinel with Is.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, detail: e.detail, err: err, origin: e.root()}
}

// Wrapf wraps a cause built from a format string.
func (e *Error) Wrapf(format string, args ...interface{}) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// WithDetail returns a copy of the sentinel annotated with some detail, e.g. a path.
func (e *Error) WithDetail(detail string) *Error {
	return &Error{msg: e.msg, detail: detail, err: e.err, origin: e.root()}
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || e.root() == t.root()
}

func (e *Error) root() *Error {
	if e.origin != nil {
		return e.origin
	}
	return e
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
