package models

import "time"

// Audit action names. Each state-changing operation appends exactly one
// entry tagged with one of these.
const (
	AuditRequestCreated   = "request_created"
	AuditRequestApproved  = "request_approved"
	AuditRequestRejected  = "request_rejected"
	AuditRequestCancelled = "request_cancelled"
	AuditTaskCompleted    = "task_completed"
	AuditTaskSkipped      = "task_skipped"
)

// AuditEntry is one immutable record in the organization's audit trail.
type AuditEntry struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	UserID         *string        `json:"user_id,omitempty"` // subject account, when one exists
	Action         string         `json:"action"`
	Details        map[string]any `json:"details,omitempty"`
	PerformedBy    string         `json:"performed_by"`
	CreatedAt      time.Time      `json:"created_at"`
}
