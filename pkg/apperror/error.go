// Package apperror defines the application error taxonomy and its HTTP mapping.
package apperror

import (
	"fmt"
	"net/http"
)

// Error is an application error carrying a stable machine-readable code,
// a human-readable message and an HTTP status. Internal errors are kept
// for logging and never serialized to clients.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error.
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of the error with an internal error attached.
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   err,
		Details:    e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   e.Internal,
		Details:    details,
	}
}

// New creates a new application error.
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Error taxonomy. Every failure surfaced by the service maps to one of
// these kinds; callers may refine the message but not the code space.
var (
	// Authentication
	ErrUnauthenticated = New(http.StatusUnauthorized, "unauthenticated", "Authentication required")
	ErrInvalidToken    = New(http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
	ErrMissingToken    = New(http.StatusUnauthorized, "missing_token", "Missing authorization token")

	// Authorization
	ErrForbidden   = New(http.StatusForbidden, "forbidden", "Insufficient permissions")
	ErrNoWorkspace = New(http.StatusForbidden, "no_workspace", "Account is not attached to any workspace")

	// Resources
	ErrNotFound = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrConflict = New(http.StatusConflict, "conflict", "Resource already exists")

	// Input
	ErrValidation = New(http.StatusBadRequest, "validation", "Invalid request")

	// Infrastructure
	ErrInternal = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrDatabase = New(http.StatusInternalServerError, "database_error", "Database operation failed")
	ErrUpstream = New(http.StatusBadGateway, "upstream_error", "Upstream service failed")
)

// NewValidation creates a validation error with a custom message.
func NewValidation(message string) *Error {
	return ErrValidation.WithMessage(message)
}

// NewConflict creates a conflict error with a specific code and message.
// Used for the lifecycle conflicts clients branch on (seat limit,
// duplicate invitations, already-consumed tokens).
func NewConflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

// NewNotFound creates a not found error for a resource type.
func NewNotFound(resourceType string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s not found", resourceType))
}

// NewForbidden creates a forbidden error with a custom message.
func NewForbidden(message string) *Error {
	return ErrForbidden.WithMessage(message)
}
