// Package apperror carries typed failures from the service layer to the HTTP boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindValidation          Kind = "VALIDATION_ERROR"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindConflict            Kind = "CONFLICT"
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"
	KindInternal            Kind = "INTERNAL"
)

// CodeEmptyResult marks a NotFound produced by an empty listing rather than a missing id.
const CodeEmptyResult = "EMPTY_RESULT"

// Error is a failure with a kind the boundary can act on.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can write errors.Is(err, apperror.NotFound("")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: string(kind), Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// EmptyResult reports an empty listing as not found.
func EmptyResult(format string, args ...any) *Error {
	e := newError(KindNotFound, format, args...)
	e.Code = CodeEmptyResult
	return e
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func ConcurrencyConflict(format string, args ...any) *Error {
	return newError(KindConcurrencyConflict, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind onto the status code returned to clients.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict, KindConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
