// Package errors defines the typed error taxonomy shared by the auction
// engine and its HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies an error class independent of transport.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeInvalidState       Code = "INVALID_STATE"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeForbidden          Code = "FORBIDDEN"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeStoreUnavailable   Code = "STORE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL"
)

// ServiceError carries an error class, an HTTP status suggestion and optional
// structured details. Handlers map ServiceError values to responses; services
// never inspect HTTP status themselves.
type ServiceError struct {
	Code       Code
	HTTPStatus int
	Message    string
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Is reports code equality so callers can match with errors.Is against a
// template error.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if stderrors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, HTTPStatus: status, Message: message, cause: cause}
}

// NotFound reports an absent entity.
func NotFound(message string) *ServiceError {
	if message == "" {
		message = "not found"
	}
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// BadRequest reports malformed or semantically invalid input.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// InvalidState reports a state-machine precondition that cannot be met.
func InvalidState(message string) *ServiceError {
	return newError(CodeInvalidState, http.StatusConflict, message, nil)
}

// PreconditionFailed reports a lost conditional write. The caller should
// re-read state before retrying.
func PreconditionFailed(message string, cause error) *ServiceError {
	return newError(CodePreconditionFailed, http.StatusConflict, message, cause)
}

// InsufficientFunds reports a buyer fund guard failure.
func InsufficientFunds(message string) *ServiceError {
	return newError(CodeInsufficientFunds, http.StatusBadRequest, message, nil)
}

// Forbidden reports a role mismatch.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// Unauthorized reports a missing or invalid principal.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// RateLimited reports that the caller exceeded their request budget.
func RateLimited(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// StoreUnavailable reports an adapter or transport failure with unknown
// outcome.
func StoreUnavailable(message string, cause error) *ServiceError {
	return newError(CodeStoreUnavailable, http.StatusServiceUnavailable, message, cause)
}

// Internal reports an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}
