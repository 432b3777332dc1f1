// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package errors provides the application error types shared by all tandril
// services. Services return AppError (or one of the typed wrappers) so the
// API layer can map failures to HTTP status codes without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the application.
const (
	CodeInternal         = "INTERNAL"
	CodeNotFound         = "NOT_FOUND"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeTimeout          = "TIMEOUT"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidState     = "INVALID_STATE"
	CodePlatform         = "PLATFORM_ERROR"
)

// Sentinel errors for errors.Is checks.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("timeout")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// AppError is the structured application error.
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails sets the details map and returns the error for chaining.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithDetail sets a single detail key and returns the error for chaining.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus overrides the HTTP status and returns the error for chaining.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// New creates an AppError with the default 500 status.
func New(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithStatus creates an AppError with an explicit HTTP status.
func NewWithStatus(code, message string, status int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an explicit HTTP status.
func WrapWithStatus(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Err:        err,
	}
}

// ----------------------------------------------------------------------------
// Convenience constructors
// ----------------------------------------------------------------------------

// NotFound returns a 404 AppError for the named resource.
func NotFound(resource string) *AppError {
	return NewWithStatus(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// AlreadyExists returns a 409 AppError for the named resource.
func AlreadyExists(resource string) *AppError {
	return NewWithStatus(CodeConflict, fmt.Sprintf("%s already exists", resource), http.StatusConflict)
}

// InvalidInput returns a 400 AppError.
func InvalidInput(message string) *AppError {
	return NewWithStatus(CodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized returns a 401 AppError.
func Unauthorized(message string) *AppError {
	return NewWithStatus(CodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden returns a 403 AppError.
func Forbidden(message string) *AppError {
	return NewWithStatus(CodeForbidden, message, http.StatusForbidden)
}

// Internal returns a 500 AppError.
func Internal(message string) *AppError {
	return NewWithStatus(CodeInternal, message, http.StatusInternalServerError)
}

// InvalidState returns a 409 AppError for lifecycle violations, for example
// undoing a command that was never executed or already undone.
func InvalidState(message string) *AppError {
	return NewWithStatus(CodeInvalidState, message, http.StatusConflict)
}

// ValidationFailed returns a 400 AppError carrying per-field messages.
func ValidationFailed(fields map[string]string) *AppError {
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return NewWithStatus(CodeValidationFailed, "validation failed", http.StatusBadRequest).
		WithDetails(details)
}

// ----------------------------------------------------------------------------
// Inspection helpers
// ----------------------------------------------------------------------------

// GetAppError extracts an AppError from an error chain.
func GetAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatusCode maps an error to an HTTP status code.
func HTTPStatusCode(err error) int {
	if ae, ok := GetAppError(err); ok {
		return ae.HTTPStatus
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is delegates to errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// ----------------------------------------------------------------------------
// Typed errors
// ----------------------------------------------------------------------------

// NotFoundError indicates a missing command, history, or resource.
type NotFoundError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *NotFoundError) Unwrap() error { return e.AppError }

// NewNotFoundError creates a NotFoundError for the named resource.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{AppError: NotFound(resource)}
}

// AlreadyExistsError indicates a uniqueness conflict.
type AlreadyExistsError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *AlreadyExistsError) Unwrap() error { return e.AppError }

// NewAlreadyExistsError creates an AlreadyExistsError for the named resource.
func NewAlreadyExistsError(resource string) *AlreadyExistsError {
	return &AlreadyExistsError{AppError: AlreadyExists(resource)}
}

// ValidationError indicates malformed input caught before any external call.
type ValidationError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *ValidationError) Unwrap() error { return e.AppError }

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		AppError: NewWithStatus(CodeValidationFailed, message, http.StatusBadRequest),
	}
}

// StateError indicates a command lifecycle violation, such as undoing a
// command that has no history or was already undone. It always aborts the
// whole operation before any external call is made.
type StateError struct{ *AppError }

// NewStateError creates a StateError with the given message.
func NewStateError(message string) *StateError {
	return &StateError{AppError: InvalidState(message)}
}

// Unwrap exposes the embedded AppError to errors.As.
func (e *StateError) Unwrap() error { return e.AppError }

// UnauthorizedError indicates a missing or invalid caller identity.
type UnauthorizedError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *UnauthorizedError) Unwrap() error { return e.AppError }

// NewUnauthorizedError creates an UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{AppError: Unauthorized(message)}
}

// ForbiddenError indicates an ownership or permission violation.
type ForbiddenError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *ForbiddenError) Unwrap() error { return e.AppError }

// NewForbiddenError creates a ForbiddenError.
func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{AppError: Forbidden(message)}
}

// ConflictError indicates a generic conflict.
type ConflictError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *ConflictError) Unwrap() error { return e.AppError }

// NewConflictError creates a ConflictError.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{AppError: NewWithStatus(CodeConflict, message, http.StatusConflict)}
}

// InternalError indicates an unexpected failure.
type InternalError struct{ *AppError }

// Unwrap exposes the embedded AppError to errors.As.
func (e *InternalError) Unwrap() error { return e.AppError }

// NewInternalError creates an InternalError.
func NewInternalError(message string) *InternalError {
	return &InternalError{AppError: Internal(message)}
}

// ----------------------------------------------------------------------------
// Is* helpers
// ----------------------------------------------------------------------------

// IsNotFoundError reports whether err represents a not-found condition.
func IsNotFoundError(err error) bool {
	var typed *NotFoundError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports whether err represents a validation failure.
func IsValidationError(err error) bool {
	var typed *ValidationError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok {
		if ae.Code == CodeValidationFailed || ae.Code == CodeBadRequest {
			return true
		}
	}
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput)
}

// IsStateError reports whether err represents a lifecycle violation.
func IsStateError(err error) bool {
	var typed *StateError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeInvalidState {
		return true
	}
	return errors.Is(err, ErrInvalidState)
}

// IsConflictError reports whether err represents a conflict.
func IsConflictError(err error) bool {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var exists *AlreadyExistsError
	if errors.As(err, &exists) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeConflict {
		return true
	}
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict)
}

// IsUnauthorizedError reports whether err represents a missing identity.
func IsUnauthorizedError(err error) bool {
	var typed *UnauthorizedError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeUnauthorized {
		return true
	}
	return errors.Is(err, ErrUnauthorized)
}

// IsForbiddenError reports whether err represents a permission violation.
func IsForbiddenError(err error) bool {
	var typed *ForbiddenError
	if errors.As(err, &typed) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeForbidden {
		return true
	}
	return errors.Is(err, ErrForbidden)
}
