// Package errors provides tagged error codes for the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local storage errors (fail-open: logged, absorbed, never thrown)
	ErrStorage          ErrorCode = "STORAGE_ERROR"
	ErrStorageOpen      ErrorCode = "STORAGE_OPEN_FAILED"
	ErrStorageCorrupt   ErrorCode = "STORAGE_CORRUPT"
	ErrStorageMigration ErrorCode = "STORAGE_MIGRATION_FAILED"

	// Remote backend errors (converted into retries, never propagated)
	ErrRemote        ErrorCode = "REMOTE_ERROR"
	ErrRemoteNetwork ErrorCode = "REMOTE_NETWORK_ERROR"
	ErrRemoteAuth    ErrorCode = "REMOTE_AUTH_FAILED"
	ErrRemoteStatus  ErrorCode = "REMOTE_BAD_STATUS"

	// Sync errors
	ErrSyncFailed ErrorCode = "SYNC_FAILED"
)

// Class groups error codes so metrics and tests can distinguish local
// storage faults from remote failures without parsing messages.
type Class string

const (
	ClassStorage Class = "storage"
	ClassRemote  Class = "remote"
	ClassOther   Class = "other"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ClassOf returns the failure class of an error code.
func ClassOf(code ErrorCode) Class {
	switch code {
	case ErrStorage, ErrStorageOpen, ErrStorageCorrupt, ErrStorageMigration:
		return ClassStorage
	case ErrRemote, ErrRemoteNetwork, ErrRemoteAuth, ErrRemoteStatus:
		return ClassRemote
	default:
		return ClassOther
	}
}

// ClassOfError returns the failure class of an error, or ClassOther for
// errors that are not AppErrors.
func ClassOfError(err error) Class {
	if appErr, ok := err.(*AppError); ok {
		return ClassOf(appErr.Code)
	}
	return ClassOther
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
