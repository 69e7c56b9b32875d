// Package services implements the lifecycle request workflow and the task
// graph operations on top of the persistence layer.
package services

import (
	"errors"
	"fmt"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence"
)

// Not-found errors re-exported from persistence so callers only depend on
// the service layer.
var (
	ErrRequestNotFound = persistence.ErrRequestNotFound
	ErrTaskNotFound    = persistence.ErrTaskNotFound
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrMissingActor        = errors.New("acting user id is required")
	ErrDanglingDependency  = errors.New("dependency references an unknown task")
	ErrUnknownActionType   = errors.New("unknown action type")
	ErrInvalidActionConfig = errors.New("invalid action configuration")
)

// State machine errors (409 Conflict).
var (
	ErrInvalidState = errors.New("invalid state")

	ErrTaskAlreadyCompleted = fmt.Errorf("%w: task is already completed", ErrInvalidState)
	ErrTaskAlreadySkipped   = fmt.Errorf("%w: task is already skipped", ErrInvalidState)
	ErrTaskBlocked          = fmt.Errorf("%w: task is blocked by an unmet dependency", ErrInvalidState)
)

// InvalidStateError reports an illegal transition and carries the entity's
// current status so callers can render an accurate message.
type InvalidStateError struct {
	Action string // e.g. "approve", "cancel", "complete"
	Entity string // "request" or "task"
	Status string // current status that blocked the transition
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s with status: %s", e.Action, e.Entity, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

func newRequestStateError(action string, status models.RequestStatus) *InvalidStateError {
	return &InvalidStateError{Action: action, Entity: "request", Status: string(status)}
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrMissingActor) ||
		errors.Is(err, ErrDanglingDependency) ||
		errors.Is(err, ErrUnknownActionType) ||
		errors.Is(err, ErrInvalidActionConfig)
}

// IsInvalidState checks if an error is an illegal-transition conflict that
// should map to HTTP 409.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsNotFound checks if an error is a missing-entity error that should map
// to HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) || errors.Is(err, ErrTaskNotFound)
}
