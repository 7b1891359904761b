package helper

import "fmt"

// Error wraps an error with the operation that produced it.
type Error struct {
	Operation string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new operation-scoped error.
func NewError(operation string, err error) error {
	return &Error{Operation: operation, Err: err}
}
