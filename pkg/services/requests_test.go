package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/notify"
	"github.com/helioshq/helios/pkg/persistence"
	"github.com/helioshq/helios/pkg/persistence/file"
)

// recordingNotifier captures dispatched notices for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	approvals  []notify.ApprovalNotice
	rejections []notify.RejectionNotice
	overdues   []notify.OverdueNotice
	dispatched chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{dispatched: make(chan struct{}, 16)}
}

func (n *recordingNotifier) RequestApproved(_ context.Context, notice notify.ApprovalNotice) error {
	n.mu.Lock()
	n.approvals = append(n.approvals, notice)
	n.mu.Unlock()
	n.dispatched <- struct{}{}

	return nil
}

func (n *recordingNotifier) RequestRejected(_ context.Context, notice notify.RejectionNotice) error {
	n.mu.Lock()
	n.rejections = append(n.rejections, notice)
	n.mu.Unlock()
	n.dispatched <- struct{}{}

	return nil
}

func (n *recordingNotifier) TasksOverdue(_ context.Context, notice notify.OverdueNotice) error {
	n.mu.Lock()
	n.overdues = append(n.overdues, notice)
	n.mu.Unlock()
	n.dispatched <- struct{}{}

	return nil
}

func (n *recordingNotifier) waitForDispatch(t *testing.T) {
	t.Helper()

	select {
	case <-n.dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification dispatch")
	}
}

func newRequestsService(t *testing.T) (*Requests, *recordingNotifier, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	dir := directory.NewStoreDirectory(p.UserRepository(), testOrgID)
	notifier := newRecordingNotifier()

	return NewRequests(p, notifier, dir, newTestLogger(), testOrgID), notifier, p
}

func createPendingRequest(t *testing.T, svc *Requests, email string) *models.LifecycleRequest {
	t.Helper()

	request, err := svc.Create(context.Background(), CreateRequestRequest{
		RequestType: models.RequestTypeOnboard,
		Email:       email,
		FirstName:   "Sarah",
		LastName:    "Chen",
		RequestedBy: "user-hr",
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)

	return request
}

func TestCreateRequestValidation(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequestRequest{
		RequestType: "promotion",
		Email:       "a@example.com",
		FirstName:   "A",
		LastName:    "B",
		RequestedBy: "user-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Create(ctx, CreateRequestRequest{
		RequestType: models.RequestTypeOnboard,
		Email:       "a@example.com",
		FirstName:   "A",
		LastName:    "B",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestApproveOnlyFromPending(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sarah@example.com")

	approved, err := svc.Approve(ctx, request.ID, "user-admin")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, "user-admin", *approved.ApprovedBy)

	// A second approval loses the guard and reports the current status.
	_, err = svc.Approve(ctx, request.ID, "user-admin")
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))
	assert.Contains(t, err.Error(), "cannot approve request with status: approved")

	// Rejection from approved is equally illegal and leaves the row alone.
	_, err = svc.Reject(ctx, request.ID, "user-admin", nil)
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))

	current, err := svc.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, current.Status)
	assert.Nil(t, current.RejectionReason)
}

func TestApproveNotFound(t *testing.T) {
	svc, _, _ := newRequestsService(t)

	_, err := svc.Approve(context.Background(), "missing", "user-admin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestApproveEmitsAuditAndNotification(t *testing.T) {
	svc, notifier, p := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sarah@example.com")

	approved, err := svc.Approve(ctx, request.ID, "user-admin")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	notifier.waitForDispatch(t)

	notifier.mu.Lock()
	require.Len(t, notifier.approvals, 1)
	assert.Equal(t, request.ID, notifier.approvals[0].Request.ID)
	assert.Equal(t, "user-admin", notifier.approvals[0].ApprovedBy)
	notifier.mu.Unlock()

	entries, err := p.AuditRepository().ListRecent(ctx, testOrgID, 10)
	require.NoError(t, err)

	var found bool

	for _, entry := range entries {
		if entry.Action == models.AuditRequestApproved {
			found = true

			assert.Equal(t, "user-admin", entry.PerformedBy)
			assert.Equal(t, request.ID, entry.Details["request_id"])
		}
	}

	assert.True(t, found, "expected a request_approved audit entry")
}

func TestRejectRecordsReasonAndNotifies(t *testing.T) {
	svc, notifier, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "casey@example.com")

	reason := "duplicate of an existing case"

	rejected, err := svc.Reject(ctx, request.ID, "user-admin", &reason)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, reason, *rejected.RejectionReason)

	notifier.waitForDispatch(t)

	notifier.mu.Lock()
	require.Len(t, notifier.rejections, 1)
	assert.Equal(t, reason, notifier.rejections[0].Reason)
	notifier.mu.Unlock()
}

func TestCancelSkipsNotification(t *testing.T) {
	svc, notifier, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "casey@example.com")

	cancelled, err := svc.Cancel(ctx, request.ID, "user-hr")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)

	select {
	case <-notifier.dispatched:
		t.Fatal("cancellation must not dispatch a notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelCompletedRequestFails(t *testing.T) {
	svc, _, p := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sam@example.com")

	// Drive the request to completed the way the external provisioner does.
	applied, err := p.RequestRepository().Transition(ctx, testOrgID, request.ID, persistence.RequestTransition{
		To:          models.RequestStatusCompleted,
		AllowedFrom: []models.RequestStatus{models.RequestStatusPending},
	})
	require.NoError(t, err)
	require.True(t, applied)

	_, err = svc.Cancel(ctx, request.ID, "user-hr")
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))
	assert.Contains(t, err.Error(), "cannot cancel request with status: completed")
}

func TestCancelFromRejected(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sam@example.com")

	_, err := svc.Reject(ctx, request.ID, "user-admin", nil)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, request.ID, "user-hr")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)
}

func TestUpdateTerminalRequestFails(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sam@example.com")

	_, err := svc.Cancel(ctx, request.ID, "user-hr")
	require.NoError(t, err)

	title := "Engineer"

	_, err = svc.Update(ctx, request.ID, persistence.RequestUpdate{JobTitle: &title})
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))
}

func TestUpdateSparseFields(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sam@example.com")

	// An empty update returns the current row untouched.
	same, err := svc.Update(ctx, request.ID, persistence.RequestUpdate{})
	require.NoError(t, err)
	assert.Equal(t, request.Email, same.Email)

	title := "Engineer"
	location := "Berlin"

	updated, err := svc.Update(ctx, request.ID, persistence.RequestUpdate{
		JobTitle: &title,
		Location: &location,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.JobTitle)
	assert.Equal(t, title, *updated.JobTitle)
	assert.Equal(t, location, *updated.Location)
	assert.Equal(t, request.Email, updated.Email)
}

func TestRequestCountsCoverAllStatuses(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	first := createPendingRequest(t, svc, "one@example.com")
	createPendingRequest(t, svc, "two@example.com")

	_, err := svc.Approve(ctx, first.ID, "user-admin")
	require.NoError(t, err)

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, len(models.RequestStatuses))

	assert.Equal(t, 1, counts[models.RequestStatusPending])
	assert.Equal(t, 1, counts[models.RequestStatusApproved])
	assert.Equal(t, 0, counts[models.RequestStatusRejected])
	assert.Equal(t, 0, counts[models.RequestStatusCompleted])

	total := 0
	for _, count := range counts {
		total += count
	}

	assert.Equal(t, 2, total)

	pending, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestListPaginationReportsFullTotal(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		createPendingRequest(t, svc, email)
	}

	resp, err := svc.List(ctx, ListRequestsRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Requests, 1)
	assert.Equal(t, int64(3), resp.TotalCount)
}

func TestListFiltersAndSearch(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "sarah@example.com")
	createPendingRequest(t, svc, "other@example.com")

	_, err := svc.Approve(ctx, request.ID, "user-admin")
	require.NoError(t, err)

	resp, err := svc.List(ctx, ListRequestsRequest{
		Statuses: []models.RequestStatus{models.RequestStatusApproved},
		Search:   "SARAH",
	})
	require.NoError(t, err)
	require.Len(t, resp.Requests, 1)
	assert.Equal(t, request.ID, resp.Requests[0].ID)

	// Conjunctive filters: a matching search with a non-matching status
	// yields nothing.
	resp, err = svc.List(ctx, ListRequestsRequest{
		Statuses: []models.RequestStatus{models.RequestStatusRejected},
		Search:   "sarah",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Requests)
	assert.Equal(t, int64(0), resp.TotalCount)
}

func TestActiveOnboardings(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	soon := time.Now().UTC().Add(24 * time.Hour)
	later := time.Now().UTC().Add(96 * time.Hour)

	second, err := svc.Create(ctx, CreateRequestRequest{
		RequestType: models.RequestTypeOnboard,
		Email:       "later@example.com",
		FirstName:   "Lee",
		LastName:    "Park",
		StartDate:   &later,
		RequestedBy: "user-hr",
	})
	require.NoError(t, err)

	first, err := svc.Create(ctx, CreateRequestRequest{
		RequestType: models.RequestTypeOnboard,
		Email:       "soon@example.com",
		FirstName:   "Ana",
		LastName:    "Silva",
		StartDate:   &soon,
		RequestedBy: "user-hr",
	})
	require.NoError(t, err)

	// Pending onboardings are not active yet.
	active, err := svc.ActiveOnboardings(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.Approve(ctx, first.ID, "user-admin")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, second.ID, "user-admin")
	require.NoError(t, err)

	active, err = svc.ActiveOnboardings(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)
}

func TestGetEnrichesDisplayNames(t *testing.T) {
	svc, _, p := newRequestsService(t)
	ctx := context.Background()

	seedUser(t, p, "user-hr", models.RoleHR)
	seedUser(t, p, "user-admin", models.RoleAdmin)

	request := createPendingRequest(t, svc, "sarah@example.com")

	_, err := svc.Approve(ctx, request.ID, "user-admin")
	require.NoError(t, err)

	details, err := svc.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", details.RequesterName)
	assert.Equal(t, "Test User", details.ApproverName)
	assert.Empty(t, details.ManagerName)
}

func TestConcurrentApprovalsSingleWinner(t *testing.T) {
	svc, _, _ := newRequestsService(t)
	ctx := context.Background()

	request := createPendingRequest(t, svc, "race@example.com")

	const attempts = 8

	var wg sync.WaitGroup

	errs := make([]error, attempts)

	for i := range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = svc.Approve(ctx, request.ID, "user-admin")
		}()
	}

	wg.Wait()

	successes := 0

	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.True(t, IsInvalidState(err))
		}
	}

	assert.Equal(t, 1, successes)
}
