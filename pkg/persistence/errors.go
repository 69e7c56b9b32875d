// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRequestNotFound indicates a lifecycle request was not found by the given identifier.
	ErrRequestNotFound = errors.New("request not found")

	// ErrTaskNotFound indicates a lifecycle task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUserNotFound indicates a directory user was not found by the given identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrDependencyNotFound indicates a task references a predecessor that does not exist.
	ErrDependencyNotFound = errors.New("dependency task not found")
)

// RequestError wraps request-related errors with additional context.
type RequestError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Transition")
	RequestID string // Request ID if applicable
	Err       error  // Underlying error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s operation failed for request %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRequestError creates a new request error with context.
func NewRequestError(op, requestID string, err error) *RequestError {
	return &RequestError{
		Op:        op,
		RequestID: requestID,
		Err:       err,
	}
}

// TaskError wraps task-related errors with additional context.
type TaskError struct {
	Op     string // Operation being performed
	TaskID string // Task ID if applicable
	Err    error  // Underlying error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{
		Op:     op,
		TaskID: taskID,
		Err:    err,
	}
}

// IsRequestNotFound checks if an error indicates a request was not found.
func IsRequestNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsUserNotFound checks if an error indicates a directory user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsDependencyNotFound checks if an error indicates a missing predecessor task.
func IsDependencyNotFound(err error) bool {
	return errors.Is(err, ErrDependencyNotFound)
}
