// Package apperr carries the error kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bannerdesk/banner-service/internal/database"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
)

// Error is a classified error with a stable code and a human message.
type Error struct {
	Kind    Kind           `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
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

// WithDetails attaches details and returns e.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, "validation_failed", format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, "not_found", format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, "forbidden", format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, "conflict", format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, "unauthorized", format, args...)
}

// Wrap attaches a cause to a classified error.
func Wrap(e *Error, cause error) *Error {
	e.Err = cause
	return e
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FromStore converts store sentinel errors into classified errors. what
// names the addressed entity, e.g. "image 4".
func FromStore(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return Wrap(NotFound("%s not found", what), err)
	case errors.Is(err, database.ErrInvalidReference):
		return Wrap(Validation("%s references a missing entity", what), err)
	case errors.Is(err, database.ErrConflict):
		return Wrap(Conflict("%s conflicts with existing data", what), err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
