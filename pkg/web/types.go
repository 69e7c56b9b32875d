// Package web provides HTTP request and response types for the lifecycle API.
package web

import (
	"time"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/services"
)

// CreateRequestBody represents the request body for creating a lifecycle
// request.
type CreateRequestBody struct {
	RequestType string `json:"request_type" validate:"required,oneof=onboard offboard transfer"`

	Email         string  `json:"email"                    validate:"required,email"`
	FirstName     string  `json:"first_name"               validate:"required"`
	LastName      string  `json:"last_name"                validate:"required"`
	PersonalEmail *string `json:"personal_email,omitempty" validate:"omitempty,email"`
	UserID        *string `json:"user_id,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	TemplateID   *string        `json:"template_id,omitempty"`
	JobTitle     *string        `json:"job_title,omitempty"`
	DepartmentID *string        `json:"department_id,omitempty"`
	ManagerID    *string        `json:"manager_id,omitempty"`
	Location     *string        `json:"location,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UpdateRequestBody represents the request body for a sparse request update.
// All fields are optional; status is not updatable through this path.
type UpdateRequestBody struct {
	Email         *string        `json:"email,omitempty"          validate:"omitempty,email"`
	FirstName     *string        `json:"first_name,omitempty"`
	LastName      *string        `json:"last_name,omitempty"`
	PersonalEmail *string        `json:"personal_email,omitempty" validate:"omitempty,email"`
	StartDate     *time.Time     `json:"start_date,omitempty"`
	EndDate       *time.Time     `json:"end_date,omitempty"`
	TemplateID    *string        `json:"template_id,omitempty"`
	JobTitle      *string        `json:"job_title,omitempty"`
	DepartmentID  *string        `json:"department_id,omitempty"`
	ManagerID     *string        `json:"manager_id,omitempty"`
	Location      *string        `json:"location,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RejectRequestBody carries the optional rejection reason.
type RejectRequestBody struct {
	Reason *string `json:"reason,omitempty"`
}

// CreateTaskBody represents the request body for creating a lifecycle task.
type CreateTaskBody struct {
	RequestID *string `json:"request_id,omitempty"`
	UserID    *string `json:"user_id,omitempty"`

	Title       string  `json:"title"                 validate:"required"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`

	AssigneeType string  `json:"assignee_type"           validate:"required,oneof=user manager hr it system"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	AssigneeRole *string `json:"assignee_role,omitempty"`

	TriggerType       string     `json:"trigger_type,omitempty" validate:"omitempty,oneof=on_approval days_before_start on_start days_after_start"`
	TriggerOffsetDays int        `json:"trigger_offset_days"`
	DueDate           *time.Time `json:"due_date,omitempty"`

	ActionType   *string        `json:"action_type,omitempty"`
	ActionConfig map[string]any `json:"action_config,omitempty"`

	SequenceOrder   int     `json:"sequence_order"`
	DependsOnTaskID *string `json:"depends_on_task_id,omitempty"`
}

// CreateTasksBody represents a batch task creation request.
type CreateTasksBody struct {
	Tasks []CreateTaskBody `json:"tasks" validate:"required,min=1,dive"`
}

// CompleteTaskBody carries the optional completion notes.
type CompleteTaskBody struct {
	Notes *string `json:"notes,omitempty"`
}

// SkipTaskBody carries the optional skip reason.
type SkipTaskBody struct {
	Reason *string `json:"reason,omitempty"`
}

func (b CreateTaskBody) toServiceRequest() services.CreateTaskRequest {
	return services.CreateTaskRequest{
		RequestID:         b.RequestID,
		UserID:            b.UserID,
		Title:             b.Title,
		Description:       b.Description,
		Category:          b.Category,
		AssigneeType:      models.AssigneeType(b.AssigneeType),
		AssigneeID:        b.AssigneeID,
		AssigneeRole:      b.AssigneeRole,
		TriggerType:       models.TriggerType(b.TriggerType),
		TriggerOffsetDays: b.TriggerOffsetDays,
		DueDate:           b.DueDate,
		ActionType:        b.ActionType,
		ActionConfig:      b.ActionConfig,
		SequenceOrder:     b.SequenceOrder,
		DependsOnTaskID:   b.DependsOnTaskID,
	}
}
