package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinels survive WithDetails/Wrap copies.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithDetails returns a copy carrying extra details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage returns a copy with a more specific message.
func (e *DomainError) WithMessage(message string) *DomainError {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap returns a copy wrapping the underlying cause.
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// Authentication failures.
var (
	ErrNoToken      = NewDomainError("NO_TOKEN", "authentication token is required", http.StatusUnauthorized, nil)
	ErrInvalidToken = NewDomainError("INVALID_TOKEN", "invalid token", http.StatusUnauthorized, nil)
	ErrTokenExpired = NewDomainError("TOKEN_EXPIRED", "token expired", http.StatusUnauthorized, nil)
)

// Policy failures.
var (
	ErrForbidden = NewDomainError("FORBIDDEN", "insufficient permissions", http.StatusForbidden, nil)
	ErrNotOwner  = NewDomainError("NOT_OWNER", "resource belongs to another user", http.StatusForbidden, nil)
)

// Validation failures.
var (
	ErrValidation           = NewDomainError("VALIDATION_FAILED", "invalid request", http.StatusBadRequest, nil)
	ErrMissingField         = NewDomainError("MISSING_FIELD", "required field missing", http.StatusBadRequest, nil)
	ErrInvalidStatus        = NewDomainError("INVALID_STATUS", "status must be one of Open, In Progress, Closed", http.StatusBadRequest, nil)
	ErrInvalidPriority      = NewDomainError("INVALID_PRIORITY", "priority must be one of low, medium, high", http.StatusBadRequest, nil)
	ErrDuplicateEmail       = NewDomainError("DUPLICATE_EMAIL", "user already exists", http.StatusBadRequest, nil)
	ErrInvalidCredentials   = NewDomainError("INVALID_CREDENTIALS", "invalid credentials", http.StatusBadRequest, nil)
	ErrInvalidOrExpiredCode = NewDomainError("INVALID_OR_EXPIRED_CODE", "invalid or expired code", http.StatusBadRequest, nil)
)

// Lookup failures.
var (
	ErrTicketNotFound = NewDomainError("TICKET_NOT_FOUND", "ticket not found", http.StatusNotFound, nil)
	ErrUserNotFound   = NewDomainError("USER_NOT_FOUND", "no account found with this email", http.StatusNotFound, nil)
)

// ErrTokenGenerationFailed is returned once the ticket token retry budget is spent.
var ErrTokenGenerationFailed = NewDomainError("TOKEN_GENERATION_FAILED", "could not allocate a unique ticket token", http.StatusInternalServerError, nil)

// ErrNotificationDispatchFailed is only ever logged.
var ErrNotificationDispatchFailed = NewDomainError("NOTIFICATION_DISPATCH_FAILED", "notification dispatch failed", http.StatusBadGateway, nil)

func NewValidationError(message string, details map[string]any) error {
	return ErrValidation.WithMessage(message).WithDetails(details)
}

// NewMissingField reports the absent request fields.
func NewMissingField(fields ...string) error {
	return ErrMissingField.WithDetails(map[string]any{"fields": fields})
}

func NewForbidden(message string) error {
	return ErrForbidden.WithMessage(message)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// HTTPStatus returns the status an error maps to.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return ToDomainError(err).HTTPStatus
}
