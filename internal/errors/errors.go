// Package errors provides error code definitions shared across the sync engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure so callers can react without
// string matching.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local store errors
	ErrStore       ErrorCode = "STORE_ERROR"
	ErrStoreTx     ErrorCode = "STORE_TX_FAILED"
	ErrConstraint  ErrorCode = "CONSTRAINT_VIOLATION"
	ErrUnknownType ErrorCode = "UNKNOWN_ENTITY_TYPE"

	// Remote service errors
	ErrRemote         ErrorCode = "REMOTE_ERROR"
	ErrRemoteConflict ErrorCode = "REMOTE_CONFLICT"
	ErrRemoteNotFound ErrorCode = "REMOTE_NOT_FOUND"
	ErrRemoteTimeout  ErrorCode = "REMOTE_TIMEOUT"

	// Sync errors
	ErrOffline        ErrorCode = "OFFLINE"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
	ErrPullFailed     ErrorCode = "PULL_FAILED"
)

// AppError carries an error code alongside a human-readable message and an
// optional wrapped cause.
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

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
