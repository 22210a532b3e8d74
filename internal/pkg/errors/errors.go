// Package errors provides the structured application error used at the
// HTTP and hub boundaries.
//
// An AppError is the only error whose code and message reach a client. At a
// hub it becomes a completion error and the connection stays open; over HTTP
// it becomes the response body. Every other error is rendered as a generic
// failure and logged in full.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a client-visible error with a stable code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "CONVERSATION_JOIN_DENIED").
	Code string `json:"code"`

	// Message is a human-readable error message, safe to show to clients.
	Message string `json:"message"`

	// HTTPStatus is used when the error crosses the REST boundary.
	HTTPStatus int `json:"-"`

	// Params carries structured context for client-side interpolation.
	Params map[string]any `json:"params,omitempty"`

	// Err is the wrapped cause. Logged, never serialized.
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap attaches cause to a new AppError.
func Wrap(cause error, code, message string, httpStatus int) *AppError {
	e := New(code, message, httpStatus)
	e.Err = cause
	return e
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]any) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

// Unauthorized creates a 401 error.
func Unauthorized(code, message string) *AppError {
	return New(code, message, http.StatusUnauthorized)
}

// IsAppError reports whether err wraps an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err wraps an AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}

// Body is the client-facing rendering of an error.
type Body struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// Render returns the HTTP status and body for err. Errors that are not
// AppErrors collapse to fallbackCode with a generic message and status 500.
func Render(err error, fallbackCode, fallbackMessage string) (int, Body) {
	if appErr, ok := IsAppError(err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, Body{Code: appErr.Code, Message: appErr.Message, Params: appErr.Params}
	}
	return http.StatusInternalServerError, Body{Code: fallbackCode, Message: fallbackMessage}
}
