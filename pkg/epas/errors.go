package epas

import (
	"errors"
	"fmt"
)

// Resource and consistency errors. Absence (a missing neighbor, a filter
// with no matches) is reported as an empty result, never as one of these.
var (
	ErrNotFound          = errors.New("epas: not found")
	ErrNotInitialized    = errors.New("epas: index not initialized")
	ErrDimensionMismatch = errors.New("epas: vector dimension mismatch")
	ErrCorrupt           = errors.New("epas: store data corrupted")
	ErrDuplicateID       = errors.New("epas: duplicate chunk id")
	ErrInvalidSection    = errors.New("epas: invalid section")
)

// Error wraps errors with operation context.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("epas.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
