package lifecycle

import (
	"fmt"

	"github.com/silt-io/silt/pkg/task"
)

// Error represents a lifecycle orchestration failure.
//
// These are coordination errors (lock contention, teardown failures), as
// opposed to the engine-level errors the store packages produce. Callers
// dispatch on Code: ErrLockUnavailable is the only retryable kind.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is the full, prefixed diagnostic message
	Message string

	// Cause is the underlying fault, if any
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode represents the category of a lifecycle error.
type ErrorCode int

const (
	// ErrInvalidArgument indicates the caller requested an impossible
	// combination (clean close together with a state wipe). Never retried.
	ErrInvalidArgument ErrorCode = iota

	// ErrLockUnavailable indicates another owner holds the task's state
	// directory. Recoverable: callers may retry with backoff.
	ErrLockUnavailable

	// ErrFatalLock indicates the lock mechanism itself faulted. Fatal.
	ErrFatalLock

	// ErrCloseFailed indicates the store manager failed to close during a
	// clean shutdown.
	ErrCloseFailed

	// ErrUnlockFailed indicates the directory lock failed to release during
	// a clean shutdown.
	ErrUnlockFailed

	// ErrWipeFailed indicates the recursive deletion of the task's state
	// directory failed. Always fatal, regardless of clean or dirty mode.
	ErrWipeFailed
)

// NewInvalidArgumentError creates an Error for an impossible argument
// combination.
func NewInvalidArgumentError(message string) *Error {
	return &Error{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewLockUnavailableError creates an Error for a state directory held by
// another owner.
func NewLockUnavailableError(logPrefix string, id task.ID) *Error {
	return &Error{
		Code:    ErrLockUnavailable,
		Message: fmt.Sprintf("%sFailed to lock the state directory for task %s", logPrefix, id),
	}
}

// NewFatalLockError creates an Error for a faulted lock mechanism.
func NewFatalLockError(logPrefix string, id task.ID, cause error) *Error {
	return &Error{
		Code:    ErrFatalLock,
		Message: fmt.Sprintf("%sFatal error while trying to lock the state directory for task %s", logPrefix, id),
		Cause:   cause,
	}
}

// NewCloseFailedError creates an Error wrapping a store manager close
// failure during a clean shutdown.
func NewCloseFailedError(logPrefix string, cause error) *Error {
	return &Error{
		Code:    ErrCloseFailed,
		Message: fmt.Sprintf("%sFailed to close state manager", logPrefix),
		Cause:   cause,
	}
}

// NewUnlockFailedError creates an Error wrapping a lock release failure
// during a clean shutdown.
func NewUnlockFailedError(logPrefix string, cause error) *Error {
	return &Error{
		Code:    ErrUnlockFailed,
		Message: fmt.Sprintf("%sFailed to release state dir lock", logPrefix),
		Cause:   cause,
	}
}

// NewWipeFailedError creates an Error wrapping a failed state wipe.
func NewWipeFailedError(id task.ID, cause error) *Error {
	return &Error{
		Code:    ErrWipeFailed,
		Message: fmt.Sprintf("Failed to wiping state stores for task %s", id),
		Cause:   cause,
	}
}
