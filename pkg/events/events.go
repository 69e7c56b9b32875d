// Package events defines event types and structures for lifecycle
// notifications.
package events

import (
	"time"

	"github.com/helioshq/helios/pkg/models"
)

type EventType string

// NotificationsTopic carries every notification event published by the core.
const NotificationsTopic = "helios.notifications"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RequestApprovedEvent EventType = "request.approved"
	RequestRejectedEvent EventType = "request.rejected"
	TasksOverdueEvent    EventType = "tasks.overdue"
)

type BaseEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	OrganizationID string    `json:"organization_id"`
}

// RequestApproved is published after a lifecycle request transitions to
// approved. Downstream channels (email, chat) render it into the approval
// message for the original requester.
type RequestApproved struct {
	BaseEvent

	RequestID    string             `json:"request_id"`
	RequestType  models.RequestType `json:"request_type"`
	Email        string             `json:"email"`
	FirstName    string             `json:"first_name"`
	LastName     string             `json:"last_name"`
	RequestedBy  string             `json:"requested_by"`
	ApprovedBy   string             `json:"approved_by"`
	ApproverName string             `json:"approver_name,omitempty"`
}

func (e RequestApproved) GetType() EventType {
	return RequestApprovedEvent
}

// RequestRejected is published after a lifecycle request transitions to
// rejected.
type RequestRejected struct {
	BaseEvent

	RequestID   string             `json:"request_id"`
	RequestType models.RequestType `json:"request_type"`
	Email       string             `json:"email"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	RequestedBy string             `json:"requested_by"`
	RejectedBy  string             `json:"rejected_by"`
	Reason      string             `json:"reason,omitempty"`
}

func (e RequestRejected) GetType() EventType {
	return RequestRejectedEvent
}

// TasksOverdue is published by the reminder sweep when pending tasks have
// slipped past their due date.
type TasksOverdue struct {
	BaseEvent

	TaskIDs []string `json:"task_ids"`
	Count   int      `json:"count"`
}

func (e TasksOverdue) GetType() EventType {
	return TasksOverdueEvent
}
