package models

import "time"

// TaskStatus represents the execution state of a lifecycle task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusSkipped    TaskStatus = "skipped"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// AssigneeType identifies who is responsible for a task.
type AssigneeType string

const (
	AssigneeTypeUser    AssigneeType = "user"    // the subject of the request
	AssigneeTypeManager AssigneeType = "manager" // the request's manager
	AssigneeTypeHR      AssigneeType = "hr"
	AssigneeTypeIT      AssigneeType = "it"
	AssigneeTypeSystem  AssigneeType = "system"
)

// TriggerType determines how a task's due date relates to the request schedule.
type TriggerType string

const (
	TriggerOnApproval     TriggerType = "on_approval"
	TriggerDaysBeforeStart TriggerType = "days_before_start"
	TriggerOnStart        TriggerType = "on_start"
	TriggerDaysAfterStart TriggerType = "days_after_start"
)

// LifecycleTask is one actionable unit of work, usually derived from a
// lifecycle request but sometimes created standalone against a user.
type LifecycleTask struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	RequestID      *string `json:"request_id,omitempty"`
	UserID         *string `json:"user_id,omitempty"`

	Title       string  `json:"title"                 validate:"required"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`

	AssigneeType AssigneeType `json:"assignee_type" validate:"required,oneof=user manager hr it system"`
	AssigneeID   *string      `json:"assignee_id,omitempty"`
	AssigneeRole *string      `json:"assignee_role,omitempty"`

	TriggerType       TriggerType `json:"trigger_type"        validate:"omitempty,oneof=on_approval days_before_start on_start days_after_start"`
	TriggerOffsetDays int         `json:"trigger_offset_days"`
	DueDate           *time.Time  `json:"due_date,omitempty"`

	Status          TaskStatus `json:"status"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletedBy     *string    `json:"completed_by,omitempty"`
	CompletionNotes *string    `json:"completion_notes,omitempty"`

	// Automation hook. The action itself runs elsewhere; the task record
	// only tracks its lifecycle state.
	ActionType   *string        `json:"action_type,omitempty"`
	ActionConfig map[string]any `json:"action_config,omitempty"`

	SequenceOrder   int     `json:"sequence_order"`
	DependsOnTaskID *string `json:"depends_on_task_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actionable reports whether the task may be acted on by an assignee.
// Blocked tasks must be unblocked by their predecessor first.
func (s TaskStatus) Actionable() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// TaskCounts aggregates task state for dashboards.
type TaskCounts struct {
	Pending        int `json:"pending"`
	InProgress     int `json:"in_progress"`
	Overdue        int `json:"overdue"`
	CompletedToday int `json:"completed_today"`
}
