// Package models defines the core domain models for lifecycle requests and tasks.
package models

import "time"

// RequestType classifies a lifecycle request.
type RequestType string

const (
	RequestTypeOnboard  RequestType = "onboard"
	RequestTypeOffboard RequestType = "offboard"
	RequestTypeTransfer RequestType = "transfer"
)

// RequestStatus represents the workflow state of a lifecycle request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusRejected   RequestStatus = "rejected"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// RequestStatuses lists every request status. Count queries report all of
// them, zero-defaulted, so dashboards never see a missing key.
var RequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApproved,
	RequestStatusRejected,
	RequestStatusInProgress,
	RequestStatusCompleted,
	RequestStatusCancelled,
}

// Terminal reports whether the status permits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled || s == RequestStatusRejected
}

// Cancellable reports whether a request in this status may still be cancelled.
func (s RequestStatus) Cancellable() bool {
	return s != RequestStatusCompleted && s != RequestStatusCancelled
}

// LifecycleRequest is one onboarding, offboarding, or transfer case.
type LifecycleRequest struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	RequestType    RequestType `json:"request_type"  validate:"required,oneof=onboard offboard transfer"`

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

	Status          RequestStatus `json:"status"`
	RequestedBy     string        `json:"requested_by"`
	ApprovedBy      *string       `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`

	// Denormalized progress counters for UI convenience. Authoritative
	// counts come from the task repository.
	TasksTotal     int `json:"tasks_total"`
	TasksCompleted int `json:"tasks_completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequestDetails is a LifecycleRequest enriched with display names resolved
// from the user directory. The names are read-only projections and never
// persisted with the request.
type RequestDetails struct {
	LifecycleRequest

	RequesterName string `json:"requester_name,omitempty"`
	ApproverName  string `json:"approver_name,omitempty"`
	ManagerName   string `json:"manager_name,omitempty"`
}
