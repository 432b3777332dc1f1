// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package errors provides standardized HTTP error responses for the API.
// All API handlers should use these functions to return consistent error responses.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/sarahliz0715/Tandril-sub000/internal/pkg/errors"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"

	// Auth errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Rate limiting
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Server errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// Commerce platform errors
	ErrCodePlatformError      ErrorCode = "PLATFORM_ERROR"
	ErrCodeConnectionInactive ErrorCode = "CONNECTION_INACTIVE"
	ErrCodeCommandNotUndoable ErrorCode = "COMMAND_NOT_UNDOABLE"
)

// APIError represents a standardized API error response.
type APIError struct {
	// HTTP status code
	Status int `json:"status"`

	// Machine-readable error code
	Code ErrorCode `json:"code"`

	// Human-readable error message
	Message string `json:"message"`

	// Optional detailed information about the error
	Details any `json:"details,omitempty"`

	// Request ID for tracing (populated by middleware)
	RequestID string `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// ValidationError contains details about validation failures.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// WriteError writes a JSON error response to the http.ResponseWriter.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(err)
}

// WriteErrorWithRequestID writes an error response with request ID.
func WriteErrorWithRequestID(w http.ResponseWriter, err *APIError, requestID string) {
	err.RequestID = requestID
	WriteError(w, err)
}

// NewError creates a new APIError.
func NewError(status int, code ErrorCode, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// NewErrorWithDetails creates a new APIError with additional details.
func NewErrorWithDetails(status int, code ErrorCode, message string, details any) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ============================================================================
// Common error constructors
// ============================================================================

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized(message string) *APIError {
	if message == "" {
		message = "Authentication required"
	}
	return NewError(http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	if message == "" {
		message = "Access denied"
	}
	return NewError(http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound returns a 404 Not Found error.
func NotFound(resource string) *APIError {
	message := "Resource not found"
	if resource != "" {
		message = resource + " not found"
	}
	return NewError(http.StatusNotFound, ErrCodeNotFound, message)
}

// AlreadyExists returns a 409 Conflict error for duplicate resources.
func AlreadyExists(resource string) *APIError {
	message := "Resource already exists"
	if resource != "" {
		message = resource + " already exists"
	}
	return NewError(http.StatusConflict, ErrCodeAlreadyExists, message)
}

// Conflict returns a 409 Conflict error.
func Conflict(message string) *APIError {
	if message == "" {
		message = "Resource conflict"
	}
	return NewError(http.StatusConflict, ErrCodeConflict, message)
}

// InvalidState returns a 409 error for lifecycle violations, e.g. executing
// a command that was never previewed.
func InvalidState(message string) *APIError {
	if message == "" {
		message = "Operation not allowed in current state"
	}
	return NewError(http.StatusConflict, ErrCodeInvalidState, message)
}

// ValidationFailed returns a 400 Bad Request error with validation details.
func ValidationFailed(errors ValidationErrors) *APIError {
	return NewErrorWithDetails(
		http.StatusBadRequest,
		ErrCodeValidation,
		"Validation failed",
		errors,
	)
}

// InvalidInput returns a 400 Bad Request error.
func InvalidInput(message string) *APIError {
	if message == "" {
		message = "Invalid input"
	}
	return NewError(http.StatusBadRequest, ErrCodeInvalidInput, message)
}

// MissingField returns a 400 error for missing required fields.
func MissingField(field string) *APIError {
	return NewErrorWithDetails(
		http.StatusBadRequest,
		ErrCodeMissingField,
		"Missing required field",
		map[string]string{"field": field},
	)
}

// RateLimited returns a 429 Too Many Requests error.
func RateLimited(retryAfter int) *APIError {
	return NewErrorWithDetails(
		http.StatusTooManyRequests,
		ErrCodeRateLimited,
		"Rate limit exceeded",
		map[string]int{"retry_after_seconds": retryAfter},
	)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	if message == "" {
		message = "Internal server error"
	}
	return NewError(http.StatusInternalServerError, ErrCodeInternal, message)
}

// ServiceUnavailable returns a 503 Service Unavailable error.
func ServiceUnavailable(message string) *APIError {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return NewError(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// Timeout returns a 504 Gateway Timeout error.
func Timeout(message string) *APIError {
	if message == "" {
		message = "Request timed out"
	}
	return NewError(http.StatusGatewayTimeout, ErrCodeTimeout, message)
}

// PlatformError returns a 502 error for upstream commerce platform failures.
func PlatformError(message string) *APIError {
	if message == "" {
		message = "Commerce platform request failed"
	}
	return NewError(http.StatusBadGateway, ErrCodePlatformError, message)
}

// ConnectionInactive returns a 422 error for disabled platform connections.
func ConnectionInactive(connectionID string) *APIError {
	return NewErrorWithDetails(
		http.StatusUnprocessableEntity,
		ErrCodeConnectionInactive,
		"Platform connection is not active",
		map[string]string{"connection_id": connectionID},
	)
}

// CommandNotUndoable returns a 409 error for commands without a usable
// undo record.
func CommandNotUndoable(message string) *APIError {
	if message == "" {
		message = "Command cannot be undone"
	}
	return NewError(http.StatusConflict, ErrCodeCommandNotUndoable, message)
}

// ============================================================================
// Conversion from pkg/errors
// ============================================================================

// FromAppError converts an AppError from pkg/errors to an APIError.
// This is used to bridge internal errors to HTTP responses.
func FromAppError(err error) *APIError {
	// Extract *pkgerrors.AppError from the error chain.
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) {
		code := ErrorCode(appErr.Code)
		if code == "" {
			code = ErrCodeInternal
		}

		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}

		// Use the Message field for a clean message rather than Error()
		// which includes the code prefix and wrapped error.
		message := appErr.Message
		if message == "" {
			message = err.Error()
		}

		var details any
		if len(appErr.Details) > 0 {
			details = appErr.Details
		}

		return &APIError{
			Status:  status,
			Code:    code,
			Message: message,
			Details: details,
		}
	}

	// Fallback: use sentinel error mapping from pkg/errors.
	status := pkgerrors.HTTPStatusCode(err)
	if status != http.StatusInternalServerError {
		code := httpStatusToErrorCode(status)
		return &APIError{
			Status:  status,
			Code:    code,
			Message: err.Error(),
		}
	}

	// Plain error, return as internal.
	return Internal(err.Error())
}

// httpStatusToErrorCode maps an HTTP status to an appropriate error code.
func httpStatusToErrorCode(status int) ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeInvalidInput
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	default:
		return ErrCodeInternal
	}
}

// FromError converts any error to an APIError.
// Uses error text and defaults to internal error.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	// Check if it's already an APIError
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}

	// Try to convert from AppError
	return FromAppError(err)
}
