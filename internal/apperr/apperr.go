// Package apperr holds the error categories surfaced to callers.
// Each category maps to one gRPC status code at the handler boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	// ErrDuplicate is a conflict caused by an existing row (membership, email).
	ErrDuplicate = errors.New("already exists")
	// ErrConflict is a business-rule violation against current state.
	ErrConflict = errors.New("conflict")
	ErrLimit    = errors.New("plan limit reached")
	ErrInvalid  = errors.New("invalid argument")
)

// Error carries a caller-facing message on top of a category.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticated(msg string) error { return newf(ErrUnauthenticated, "%s", msg) }
func Forbidden(msg string) error       { return newf(ErrForbidden, "%s", msg) }
func NotFound(msg string) error        { return newf(ErrNotFound, "%s", msg) }
func Duplicate(msg string) error       { return newf(ErrDuplicate, "%s", msg) }
func Conflict(msg string) error        { return newf(ErrConflict, "%s", msg) }
func Limit(msg string) error           { return newf(ErrLimit, "%s", msg) }

func Invalid(format string, args ...any) error { return newf(ErrInvalid, format, args...) }

// Message returns the caller-facing text for err, or "" when err is not an *Error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}
