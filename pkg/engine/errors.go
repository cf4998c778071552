// Package engine provides the main memstrat client tying together policies,
// extraction, context assembly, cross-learning, and retention.
package engine

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates that a connection to the storage backend failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")
)

// EngineError wraps errors with operation context.
//
// Example:
//
//	err := &EngineError{
//	    Op:  "ExtractFromMessage",
//	    Err: memory.ErrValidation,
//	}
//	// Error() returns: "memstrat: ExtractFromMessage: validation failed"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message in the form
// "memstrat: <Op>: <Err>".
func (e *EngineError) Error() string {
	return fmt.Sprintf("memstrat: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is and errors.As work
// through EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates an EngineError wrapping the given error, or nil if
// err is nil.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:  op,
		Err: err,
	}
}
