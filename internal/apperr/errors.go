// Package apperr defines the caller-facing error taxonomy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error class.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeForbidden            Code = "forbidden"
	CodeValidation           Code = "validation_error"
	CodeStorage              Code = "storage_error"
	CodeConflict             Code = "conflict"
	CodePartialFailure       Code = "partial_failure"
	CodeAggregateUnavailable Code = "aggregate_unavailable"
	CodeInternal             Code = "internal"
)

// Error carries a Code, a message safe to show callers, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrForbidden            = &Error{Code: CodeForbidden}
	ErrValidation           = &Error{Code: CodeValidation}
	ErrStorage              = &Error{Code: CodeStorage}
	ErrConflict             = &Error{Code: CodeConflict}
	ErrPartialFailure       = &Error{Code: CodePartialFailure}
	ErrAggregateUnavailable = &Error{Code: CodeAggregateUnavailable}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NotFound is also used for records outside the caller's scope so the two
// cases cannot be told apart.
func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found")
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func Storage(message string, cause error) *Error {
	return Wrap(CodeStorage, message, cause)
}

// Conflict reports a record that kept changing under the caller; retrying
// may succeed.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// CodeOf returns the Code of err, or CodeInternal when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to the response status the API layer should use.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeStorage:
		return http.StatusBadGateway
	case CodeConflict:
		return http.StatusConflict
	case CodeAggregateUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message to show callers. Internal errors are
// reduced to a generic text so storage details never leak.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}
