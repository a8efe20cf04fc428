// Package errs defines the coded errors shared by the HTTP and MCP surfaces.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure independently of the transport reporting it.
type Code string

const (
	InvalidInput Code = "invalid_input"
	NotFound     Code = "not_found"
	Unavailable  Code = "unavailable"
	Internal     Code = "internal"
)

var statusByCode = map[Code]int{
	InvalidInput: http.StatusBadRequest,
	NotFound:     http.StatusNotFound,
	Unavailable:  http.StatusServiceUnavailable,
	Internal:     http.StatusInternalServerError,
}

// Error is a coded application error. Message is safe to show a client; Err
// is the underlying cause and is only ever logged.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func asCoded(err error) (*Error, bool) {
	var coded *Error
	if err == nil || !errors.As(err, &coded) {
		return nil, false
	}
	return coded, true
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if coded, ok := asCoded(err); ok && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns a message safe to show a client. Untyped errors collapse to
// "internal error" so driver or runtime text never reaches a response.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if coded, ok := asCoded(err); ok && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status. Unknown codes are server errors.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
