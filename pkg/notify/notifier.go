// Package notify delivers lifecycle notifications to interested parties.
// The core fires notifications without waiting for delivery; downstream
// consumers pick them up from the event bus.
package notify

import (
	"context"

	"github.com/helioshq/helios/pkg/models"
)

// ApprovalNotice describes an approved request for the requester.
type ApprovalNotice struct {
	Request      *models.LifecycleRequest
	ApprovedBy   string
	ApproverName string
}

// RejectionNotice describes a rejected request for the requester.
type RejectionNotice struct {
	Request    *models.LifecycleRequest
	RejectedBy string
	Reason     string
}

// OverdueNotice lists tasks that slipped past their due date.
type OverdueNotice struct {
	OrganizationID string
	TaskIDs        []string
}

type Notifier interface {
	RequestApproved(ctx context.Context, notice ApprovalNotice) error
	RequestRejected(ctx context.Context, notice RejectionNotice) error
	TasksOverdue(ctx context.Context, notice OverdueNotice) error
}
