package store

// Error represents a state store failure.
//
// These are engine-level errors (missing key, closed store, I/O fault) as
// opposed to lifecycle errors, which the lifecycle package defines for its
// own orchestration failures.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Store is the name of the store the error relates to (if applicable)
	Store string

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Store != "" {
		return e.Message + ": " + e.Store
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrKeyNotFound indicates the requested key does not exist.
	ErrKeyNotFound ErrorCode = iota

	// ErrStoreClosed indicates an operation was attempted after Close.
	ErrStoreClosed

	// ErrIOError indicates the underlying engine faulted.
	ErrIOError

	// ErrInvalidKey indicates an empty or otherwise unusable key.
	ErrInvalidKey
)

// NewKeyNotFoundError creates an Error for a missing key.
func NewKeyNotFoundError(storeName string) *Error {
	return &Error{
		Code:    ErrKeyNotFound,
		Message: "key not found",
		Store:   storeName,
	}
}

// NewStoreClosedError creates an Error for operations on a closed store.
func NewStoreClosedError(storeName string) *Error {
	return &Error{
		Code:    ErrStoreClosed,
		Message: "store is closed",
		Store:   storeName,
	}
}

// NewIOError creates an Error wrapping an engine fault.
func NewIOError(storeName, message string, cause error) *Error {
	return &Error{
		Code:    ErrIOError,
		Message: message,
		Store:   storeName,
		Cause:   cause,
	}
}

// NewInvalidKeyError creates an Error for an unusable key.
func NewInvalidKeyError(storeName string) *Error {
	return &Error{
		Code:    ErrInvalidKey,
		Message: "key must not be empty",
		Store:   storeName,
	}
}

// IsNotFound reports whether err is a store Error with code ErrKeyNotFound.
func IsNotFound(err error) bool {
	se, ok := err.(*Error)
	return ok && se.Code == ErrKeyNotFound
}
