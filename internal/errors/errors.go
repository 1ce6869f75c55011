package errors

import "fmt"

// ErrorCode represents a Lore error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrPrivacyViolation ErrorCode = "PRIVACY_VIOLATION" // 422
	ErrMigrationFailed  ErrorCode = "MIGRATION_FAILED"  // 500
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// LoreError represents a structured error with code, status, and details.
type LoreError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *LoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LoreError {
	return &LoreError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a learning cannot be found.
func NewNotFound(id string) *LoreError {
	return &LoreError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("learning not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewConflict creates a 409 error for integrity conflicts.
func NewConflict(msg string) *LoreError {
	return &LoreError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewPrivacyViolation creates a 422 error when content fails the privacy filter.
func NewPrivacyViolation(pattern string) *LoreError {
	return &LoreError{
		Code:    ErrPrivacyViolation,
		Status:  422,
		Message: fmt.Sprintf("content rejected: matches secret-like pattern %q", pattern),
		Details: map[string]any{"pattern": pattern},
	}
}

// NewMigrationFailed creates a 500 error for a failed schema migration.
// The message should state whether a backup restore succeeded.
func NewMigrationFailed(version int, msg string) *LoreError {
	return &LoreError{
		Code:    ErrMigrationFailed,
		Status:  500,
		Message: fmt.Sprintf("migration %d failed: %s", version, msg),
		Details: map[string]any{"version": version},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LoreError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LoreError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a LoreError with the given code.
func Is(err error, code ErrorCode) bool {
	if lErr, ok := err.(*LoreError); ok {
		return lErr.Code == code
	}
	return false
}
