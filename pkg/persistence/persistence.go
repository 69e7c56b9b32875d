// Package persistence provides the data storage abstraction layer for
// lifecycle requests, tasks, the audit trail, and the user directory.
package persistence

import (
	"context"
	"time"

	"github.com/helioshq/helios/pkg/models"
)

type Persistence interface {
	RequestRepository() RequestRepository
	TaskRepository() TaskRepository
	AuditRepository() AuditRepository
	UserRepository() UserRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// RequestFilter narrows a request listing. All set fields are combined
// with AND.
type RequestFilter struct {
	Statuses    []models.RequestStatus
	RequestType *models.RequestType
	RequestedBy string
	ManagerID   string

	// Range filter on the request's start date.
	StartDateFrom *time.Time
	StartDateTo   *time.Time

	// Case-insensitive substring match over email, first name, last name.
	Search string

	Limit  int
	Offset int
}

// RequestUpdate is a sparse field update. Nil fields are left untouched.
// Status is deliberately absent: status changes go through Transition only.
type RequestUpdate struct {
	Email         *string
	FirstName     *string
	LastName      *string
	PersonalEmail *string
	StartDate     *time.Time
	EndDate       *time.Time
	TemplateID    *string
	JobTitle      *string
	DepartmentID  *string
	ManagerID     *string
	Location      *string
	Metadata      map[string]any

	TasksTotal     *int
	TasksCompleted *int
}

// Empty reports whether the update carries no fields.
func (u RequestUpdate) Empty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil &&
		u.PersonalEmail == nil && u.StartDate == nil && u.EndDate == nil &&
		u.TemplateID == nil && u.JobTitle == nil && u.DepartmentID == nil &&
		u.ManagerID == nil && u.Location == nil && u.Metadata == nil &&
		u.TasksTotal == nil && u.TasksCompleted == nil
}

// RequestTransition is a status-guarded state change. The write succeeds
// only when the row's current status is in AllowedFrom, so two concurrent
// transitions on the same request produce exactly one winner.
type RequestTransition struct {
	To          models.RequestStatus
	AllowedFrom []models.RequestStatus

	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectionReason *string
}

type RequestRepository interface {
	Create(ctx context.Context, request *models.LifecycleRequest) error

	// GetByID returns nil, nil when no request with that id exists in the
	// organization.
	GetByID(ctx context.Context, orgID, id string) (*models.LifecycleRequest, error)

	// List returns the filtered page ordered by created_at descending,
	// plus the unpaginated total.
	List(ctx context.Context, orgID string, filter RequestFilter) ([]*models.LifecycleRequest, int64, error)

	// Update applies a sparse field update and returns the updated row,
	// or nil when the request does not exist.
	Update(ctx context.Context, orgID, id string, update RequestUpdate) (*models.LifecycleRequest, error)

	// Transition applies a guarded status change. It returns false when
	// the guard did not match (missing row or disallowed current status).
	Transition(ctx context.Context, orgID, id string, transition RequestTransition) (bool, error)

	// CountByStatus returns a count for every request status, including
	// zeroes for statuses with no rows.
	CountByStatus(ctx context.Context, orgID string) (map[models.RequestStatus]int, error)

	// ActiveOnboardings returns onboard requests in approved or
	// in_progress status, ordered by start date ascending.
	ActiveOnboardings(ctx context.Context, orgID string) ([]*models.LifecycleRequest, error)
}

// TaskFilter narrows a task listing. All set fields are combined with AND.
type TaskFilter struct {
	RequestID     string
	UserID        string
	AssigneeTypes []models.AssigneeType
	AssigneeID    string
	Statuses      []models.TaskStatus
	Category      string

	// OverdueOnly restricts to pending tasks with a due date before Now.
	OverdueOnly bool
	Now         time.Time

	DueFrom *time.Time
	DueTo   *time.Time

	Limit  int
	Offset int
}

// CompletionStamp records who finished (or skipped) a task and when.
type CompletionStamp struct {
	By    string
	Notes *string
	At    time.Time
}

// CascadeResult reports the outcome of a guarded complete/skip write.
type CascadeResult struct {
	// Updated is false when the status guard did not match.
	Updated bool
	// Unblocked counts direct dependents moved from blocked to pending.
	Unblocked int64
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.LifecycleTask) error

	// GetByID returns nil, nil when no task with that id exists in the
	// organization.
	GetByID(ctx context.Context, orgID, id string) (*models.LifecycleTask, error)

	// List returns the filtered page ordered by due date ascending with
	// nulls last, tiebreak sequence order, plus the unpaginated total.
	List(ctx context.Context, orgID string, filter TaskFilter) ([]*models.LifecycleTask, int64, error)

	// ListForUser returns tasks visible to a user: directly assigned,
	// role-queue tasks (hr/it) when elevated, manager tasks for requests
	// the user manages, and self-service tasks where the user is the
	// subject.
	ListForUser(ctx context.Context, orgID, userID string, elevated bool, statuses []models.TaskStatus, limit, offset int) ([]*models.LifecycleTask, int64, error)

	// Complete marks an actionable (pending or in_progress) task completed
	// and, in the same transaction, unblocks its direct dependents.
	Complete(ctx context.Context, orgID, id string, stamp CompletionStamp) (CascadeResult, error)

	// Skip marks an actionable task skipped with the same cascade
	// semantics as Complete.
	Skip(ctx context.Context, orgID, id string, stamp CompletionStamp) (CascadeResult, error)

	// Start conditionally moves a pending task to in_progress. It returns
	// false, nil when the task is not currently pending.
	Start(ctx context.Context, orgID, id string, now time.Time) (bool, error)

	// Overdue returns pending tasks whose due date is before now, ordered
	// by due date ascending.
	Overdue(ctx context.Context, orgID string, now time.Time) ([]*models.LifecycleTask, error)

	// Counts aggregates task state, optionally scoped to tasks assigned
	// to or about the given user. Pass userID == "" for the whole
	// organization.
	Counts(ctx context.Context, orgID, userID string, now time.Time) (models.TaskCounts, error)

	// DeleteByRequest removes every task owned by a request and returns
	// the number removed.
	DeleteByRequest(ctx context.Context, orgID, requestID string) (int64, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error

	// ListRecent returns the newest entries first.
	ListRecent(ctx context.Context, orgID string, limit int) ([]*models.AuditEntry, error)
}

type UserRepository interface {
	// GetByID returns nil, nil when no user with that id exists in the
	// organization.
	GetByID(ctx context.Context, orgID, id string) (*models.UserProfile, error)
}
