package notify

import (
	"context"
	"time"

	"github.com/helioshq/helios/pkg/eventbus"
	"github.com/helioshq/helios/pkg/events"
)

// BusNotifier publishes notification events on the event bus. Messages are
// keyed by request ID so per-request ordering survives partitioning.
type BusNotifier struct {
	bus eventbus.EventPublisher
}

func NewBusNotifier(bus eventbus.EventPublisher) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (n *BusNotifier) RequestApproved(ctx context.Context, notice ApprovalNotice) error {
	req := notice.Request

	event := events.RequestApproved{
		BaseEvent:    n.baseEvent(events.RequestApprovedEvent, req.OrganizationID),
		RequestID:    req.ID,
		RequestType:  req.RequestType,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		RequestedBy:  req.RequestedBy,
		ApprovedBy:   notice.ApprovedBy,
		ApproverName: notice.ApproverName,
	}

	return n.bus.Publish(ctx, req.ID, event)
}

func (n *BusNotifier) RequestRejected(ctx context.Context, notice RejectionNotice) error {
	req := notice.Request

	event := events.RequestRejected{
		BaseEvent:   n.baseEvent(events.RequestRejectedEvent, req.OrganizationID),
		RequestID:   req.ID,
		RequestType: req.RequestType,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		RequestedBy: req.RequestedBy,
		RejectedBy:  notice.RejectedBy,
		Reason:      notice.Reason,
	}

	return n.bus.Publish(ctx, req.ID, event)
}

func (n *BusNotifier) TasksOverdue(ctx context.Context, notice OverdueNotice) error {
	event := events.TasksOverdue{
		BaseEvent: n.baseEvent(events.TasksOverdueEvent, notice.OrganizationID),
		TaskIDs:   notice.TaskIDs,
		Count:     len(notice.TaskIDs),
	}

	return n.bus.Publish(ctx, notice.OrganizationID, event)
}

func (n *BusNotifier) baseEvent(eventType events.EventType, orgID string) events.BaseEvent {
	id := ""
	if gen, ok := n.bus.(interface{ GenerateID() string }); ok {
		id = gen.GenerateID()
	}

	return events.BaseEvent{
		ID:             id,
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		OrganizationID: orgID,
	}
}
