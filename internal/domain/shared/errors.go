// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")
	ErrInProgress   = errors.New("operation already in progress")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "catalog", "admin"
	Op      string // Operation that failed, e.g., "Login", "Fetch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrLessonNotFound     = NewDomainError("progress", "CompleteLesson", ErrNotFound, "lesson not found in catalog")
	ErrInvalidLessonID    = NewDomainError("progress", "Validate", ErrInvalidID, "invalid lesson ID")
	ErrInvalidLearnerID   = NewDomainError("progress", "Validate", ErrInvalidID, "invalid learner ID")
	ErrCorruptState       = NewDomainError("progress", "Load", ErrInvalidFormat, "stored progress state is corrupt")
	ErrInvalidStreakState = NewDomainError("progress", "Streak", ErrInvalidFormat, "stored streak is corrupt")
)

// Catalog domain errors
var (
	ErrCatalogUnavailable = NewDomainError("catalog", "Fetch", ErrServiceUnavailable, "course catalog is unavailable")
	ErrCourseNotFound     = NewDomainError("catalog", "Find", ErrNotFound, "course not found")
	ErrInvalidCatalog     = NewDomainError("catalog", "Parse", ErrInvalidFormat, "invalid catalog document")
)

// Admin domain errors
var (
	ErrInvalidCredentials = NewDomainError("admin", "Login", ErrUnauthorized, "invalid username or password")
	ErrSessionExpired     = NewDomainError("admin", "Validate", ErrExpired, "session expired")
	ErrSessionInactive    = NewDomainError("admin", "Validate", ErrExpired, "session inactive for too long")
	ErrSessionRevoked     = NewDomainError("admin", "Validate", ErrUnauthorized, "session revoked")
	ErrNoSession          = NewDomainError("admin", "Validate", ErrUnauthorized, "no session")
	ErrInvalidToken       = NewDomainError("admin", "Validate", ErrUnauthorized, "invalid session token")
	ErrUnknownRole        = NewDomainError("admin", "Authorize", ErrForbidden, "unknown role")
	ErrMissingCapability  = NewDomainError("admin", "Authorize", ErrForbidden, "missing capability")
)

// Navigation errors
var (
	ErrNavigationInFlight = NewDomainError("navigation", "Navigate", ErrInProgress, "navigation already in progress")
	ErrNavigationFailed   = NewDomainError("navigation", "Navigate", ErrExternalService, "router navigation failed")
	ErrEmptyURL           = NewDomainError("navigation", "Navigate", ErrEmptyValue, "url cannot be empty")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsAuth checks if the error should be reported as 401/403.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrExpired)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}
