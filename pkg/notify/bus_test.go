package notify

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioshq/helios/pkg/channels/gochannel"
	"github.com/helioshq/helios/pkg/eventbus"
	"github.com/helioshq/helios/pkg/events"
	"github.com/helioshq/helios/pkg/models"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestBusNotifierRequestApproved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.RequestApproved, 1)

	err := bus.Handle(events.RequestApprovedEvent, func(_ context.Context, event any) error {
		approved, ok := event.(*events.RequestApproved)
		if ok {
			received <- approved
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	notifier := NewBusNotifier(bus)

	err = notifier.RequestApproved(ctx, ApprovalNotice{
		Request: &models.LifecycleRequest{
			ID:             "req-1",
			OrganizationID: "org-1",
			RequestType:    models.RequestTypeOnboard,
			Email:          "jordan@example.com",
			FirstName:      "Jordan",
			LastName:       "Lee",
			RequestedBy:    "user-9",
		},
		ApprovedBy:   "user-2",
		ApproverName: "Sam Rivera",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "req-1", event.RequestID)
		assert.Equal(t, "org-1", event.OrganizationID)
		assert.Equal(t, models.RequestTypeOnboard, event.RequestType)
		assert.Equal(t, "user-2", event.ApprovedBy)
		assert.Equal(t, "Sam Rivera", event.ApproverName)
		assert.Equal(t, events.RequestApprovedEvent, event.GetType())
		assert.NotEmpty(t, event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for approval event")
	}
}

func TestBusNotifierRequestRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.RequestRejected, 1)

	err := bus.Handle(events.RequestRejectedEvent, func(_ context.Context, event any) error {
		rejected, ok := event.(*events.RequestRejected)
		if ok {
			received <- rejected
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	notifier := NewBusNotifier(bus)

	err = notifier.RequestRejected(ctx, RejectionNotice{
		Request: &models.LifecycleRequest{
			ID:             "req-2",
			OrganizationID: "org-1",
			RequestType:    models.RequestTypeOffboard,
			Email:          "casey@example.com",
			RequestedBy:    "user-9",
		},
		RejectedBy: "user-3",
		Reason:     "duplicate request",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "req-2", event.RequestID)
		assert.Equal(t, "user-3", event.RejectedBy)
		assert.Equal(t, "duplicate request", event.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rejection event")
	}
}

func TestBusNotifierTasksOverdue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.TasksOverdue, 1)

	err := bus.Handle(events.TasksOverdueEvent, func(_ context.Context, event any) error {
		overdue, ok := event.(*events.TasksOverdue)
		if ok {
			received <- overdue
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	notifier := NewBusNotifier(bus)

	err = notifier.TasksOverdue(ctx, OverdueNotice{
		OrganizationID: "org-1",
		TaskIDs:        []string{"task-1", "task-2"},
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "org-1", event.OrganizationID)
		assert.Equal(t, []string{"task-1", "task-2"}, event.TaskIDs)
		assert.Equal(t, 2, event.Count)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for overdue event")
	}
}
