// Package apperr defines the error taxonomy surfaced at the request
// boundary. Authorization and storage failures travel up untouched as
// typed values; handlers translate them to HTTP statuses and the
// websocket handler translates them to close codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeBadRequest Code = iota + 1
	CodeUnauthorized
	CodeForbidden
	CodeNotFound
	CodeInternal
)

type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

func BadRequest(msg string) *Error   { return &Error{Code: CodeBadRequest, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Code: CodeForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }

// Internal wraps a storage or infrastructure failure. The wrapped error
// is kept for logs; only msg is user-visible.
func Internal(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Message: msg, err: err}
}

// CodeOf extracts the taxonomy code, defaulting unknown errors to
// CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// PublicMessage is the short detail safe to return to callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
