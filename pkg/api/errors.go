package api

import "fmt"

// Error is a handler failure that carries the status it should produce.
// The default exception handler renders it as a plaintext response with
// that status instead of a 500.
type Error struct {
	Status  Status
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given status and message.
func NewError(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// NewBadRequestError creates an Error for a malformed request.
func NewBadRequestError(message string) *Error {
	return NewError(StatusBadRequest, message)
}

// NewForbiddenError creates an Error for a rejected caller.
func NewForbiddenError(message string) *Error {
	return NewError(StatusForbidden, message)
}

// NewNotFoundError creates an Error for a resource that does not exist.
func NewNotFoundError(message string) *Error {
	return NewError(StatusNotFound, message)
}

// NewConflictError creates an Error for a state conflict.
func NewConflictError(message string) *Error {
	return NewError(StatusConflict, message)
}

// NewServerError wraps an internal failure.
func NewServerError(message string, err error) *Error {
	return &Error{Status: StatusInternalServerError, Message: message, Err: err}
}
