package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence/file"
)

const testOrgID = "org-test"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTasksService(t *testing.T) (*Tasks, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	dir := directory.NewStoreDirectory(p.UserRepository(), testOrgID)

	return NewTasks(p, dir, newTestLogger(), testOrgID), p
}

func seedUser(t *testing.T, p *file.Persistence, id string, role models.Role) {
	t.Helper()

	err := p.Users().Save(context.Background(), testOrgID, &models.UserProfile{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
	})
	require.NoError(t, err)
}

func TestCreateTaskDefaultsAndBlockedStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	root, err := svc.Create(ctx, CreateTaskRequest{
		Title:        "Create mailbox",
		AssigneeType: models.AssigneeTypeIT,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, root.Status)
	assert.NotEmpty(t, root.ID)

	dependent, err := svc.Create(ctx, CreateTaskRequest{
		Title:           "Assign license",
		AssigneeType:    models.AssigneeTypeIT,
		DependsOnTaskID: &root.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBlocked, dependent.Status)
}

func TestCreateTaskWithDanglingDependency(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	missing := "no-such-task"

	_, err := svc.Create(ctx, CreateTaskRequest{
		Title:           "Orphaned",
		AssigneeType:    models.AssigneeTypeHR,
		DependsOnTaskID: &missing,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingDependency)
	assert.True(t, IsValidationError(err))
}

func TestCreateTaskValidatesActionConfig(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	actionType := "create_mailbox"

	_, err := svc.Create(ctx, CreateTaskRequest{
		Title:        "Provision mailbox",
		AssigneeType: models.AssigneeTypeSystem,
		ActionType:   &actionType,
		ActionConfig: map[string]any{"quota_mb": 100},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidActionConfig)

	unknown := "provision_badge"

	_, err = svc.Create(ctx, CreateTaskRequest{
		Title:        "Badge",
		AssigneeType: models.AssigneeTypeSystem,
		ActionType:   &unknown,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestCreateBatchReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	created, err := svc.CreateBatch(ctx, []CreateTaskRequest{
		{Title: "Valid task", AssigneeType: models.AssigneeTypeHR},
		{Title: "", AssigneeType: models.AssigneeTypeHR},
		{Title: "Another valid task", AssigneeType: models.AssigneeTypeIT},
	})
	require.Error(t, err)
	assert.Len(t, created, 2)
	assert.Contains(t, err.Error(), "title is required")
}

func TestCompleteTaskIdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	task, err := svc.Create(ctx, CreateTaskRequest{
		Title:        "Grant VPN access",
		AssigneeType: models.AssigneeTypeIT,
	})
	require.NoError(t, err)

	notes := "done via console"

	completed, err := svc.Complete(ctx, task.ID, "user-it", &notes)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, "user-it", *completed.CompletedBy)
	assert.Equal(t, notes, *completed.CompletionNotes)

	_, err = svc.Complete(ctx, task.ID, "user-other", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)
	assert.True(t, IsInvalidState(err))

	// First completion stamp survives the failed retry.
	current, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-it", *current.CompletedBy)
}

func TestCompleteTaskNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	_, err := svc.Complete(ctx, "missing", "user-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestOneHopUnblockCascade(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	taskA, err := svc.Create(ctx, CreateTaskRequest{Title: "A", AssigneeType: models.AssigneeTypeHR})
	require.NoError(t, err)

	taskB, err := svc.Create(ctx, CreateTaskRequest{
		Title: "B", AssigneeType: models.AssigneeTypeHR, DependsOnTaskID: &taskA.ID,
	})
	require.NoError(t, err)

	taskC, err := svc.Create(ctx, CreateTaskRequest{
		Title: "C", AssigneeType: models.AssigneeTypeHR, DependsOnTaskID: &taskB.ID,
	})
	require.NoError(t, err)

	// Blocked tasks cannot be completed directly.
	_, err = svc.Complete(ctx, taskB.ID, "user-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskBlocked)

	// Completing A unblocks B but not C.
	_, err = svc.Complete(ctx, taskA.ID, "user-1", nil)
	require.NoError(t, err)

	current, err := svc.Get(ctx, taskB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, current.Status)

	current, err = svc.Get(ctx, taskC.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBlocked, current.Status)

	// Completing B finally unblocks C.
	_, err = svc.Complete(ctx, taskB.ID, "user-1", nil)
	require.NoError(t, err)

	current, err = svc.Get(ctx, taskC.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, current.Status)
}

func TestSkipTaskCascadesLikeComplete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	taskA, err := svc.Create(ctx, CreateTaskRequest{Title: "A", AssigneeType: models.AssigneeTypeIT})
	require.NoError(t, err)

	taskB, err := svc.Create(ctx, CreateTaskRequest{
		Title: "B", AssigneeType: models.AssigneeTypeIT, DependsOnTaskID: &taskA.ID,
	})
	require.NoError(t, err)

	reason := "not needed for contractors"

	skipped, err := svc.Skip(ctx, taskA.ID, "user-1", &reason)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSkipped, skipped.Status)
	assert.Equal(t, reason, *skipped.CompletionNotes)

	current, err := svc.Get(ctx, taskB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, current.Status)
}

func TestSkipCompletedTaskFailsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	svc, p := newTasksService(t)

	taskA, err := svc.Create(ctx, CreateTaskRequest{Title: "A", AssigneeType: models.AssigneeTypeHR})
	require.NoError(t, err)

	taskB, err := svc.Create(ctx, CreateTaskRequest{
		Title: "B", AssigneeType: models.AssigneeTypeHR, DependsOnTaskID: &taskA.ID,
	})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, taskA.ID, "user-1", nil)
	require.NoError(t, err)

	auditBefore, err := p.AuditRepository().ListRecent(ctx, testOrgID, 100)
	require.NoError(t, err)

	_, err = svc.Skip(ctx, taskA.ID, "user-2", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)

	auditAfter, err := p.AuditRepository().ListRecent(ctx, testOrgID, 100)
	require.NoError(t, err)
	assert.Len(t, auditAfter, len(auditBefore))

	// B was already unblocked by the completion and stays pending.
	current, err := svc.Get(ctx, taskB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, current.Status)
}

func TestStartTaskIsConditional(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	task, err := svc.Create(ctx, CreateTaskRequest{Title: "A", AssigneeType: models.AssigneeTypeIT})
	require.NoError(t, err)

	started, err := svc.Start(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, started)
	assert.Equal(t, models.TaskStatusInProgress, started.Status)

	// Starting again is a no-op, not an error.
	again, err := svc.Start(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestListTasksOverdueOnlyFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	past := time.Now().UTC().Add(-48 * time.Hour)
	future := time.Now().UTC().Add(48 * time.Hour)

	overdue, err := svc.Create(ctx, CreateTaskRequest{
		Title: "Overdue", AssigneeType: models.AssigneeTypeIT, DueDate: &past,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateTaskRequest{
		Title: "Future", AssigneeType: models.AssigneeTypeIT, DueDate: &future,
	})
	require.NoError(t, err)

	lateButDone, err := svc.Create(ctx, CreateTaskRequest{
		Title: "Late but done", AssigneeType: models.AssigneeTypeIT, DueDate: &past,
	})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, lateButDone.ID, "user-1", nil)
	require.NoError(t, err)

	resp, err := svc.List(ctx, ListTasksRequest{OverdueOnly: true})
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, overdue.ID, resp.Tasks[0].ID)
	assert.Equal(t, int64(1), resp.TotalCount)
}

func TestListTasksOrderingAndPagination(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	soon := time.Now().UTC().Add(time.Hour)
	later := time.Now().UTC().Add(72 * time.Hour)

	_, err := svc.Create(ctx, CreateTaskRequest{
		Title: "Later", AssigneeType: models.AssigneeTypeHR, DueDate: &later, SequenceOrder: 1,
	})
	require.NoError(t, err)

	first, err := svc.Create(ctx, CreateTaskRequest{
		Title: "Soon", AssigneeType: models.AssigneeTypeHR, DueDate: &soon, SequenceOrder: 2,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateTaskRequest{
		Title: "No due date", AssigneeType: models.AssigneeTypeHR, SequenceOrder: 0,
	})
	require.NoError(t, err)

	resp, err := svc.List(ctx, ListTasksRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, int64(3), resp.TotalCount)
	assert.Equal(t, first.ID, resp.Tasks[0].ID)
	assert.Equal(t, "Later", resp.Tasks[1].Title)

	// Tasks without a due date sort last.
	resp, err = svc.List(ctx, ListTasksRequest{Limit: 10, Offset: 2})
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "No due date", resp.Tasks[0].Title)
}

func TestListMineRoleVisibility(t *testing.T) {
	ctx := context.Background()
	svc, p := newTasksService(t)

	seedUser(t, p, "user-it", models.RoleIT)
	seedUser(t, p, "user-member", models.RoleMember)

	_, err := svc.Create(ctx, CreateTaskRequest{Title: "IT queue", AssigneeType: models.AssigneeTypeIT})
	require.NoError(t, err)

	assignee := "user-member"

	direct, err := svc.Create(ctx, CreateTaskRequest{
		Title: "Directly assigned", AssigneeType: models.AssigneeTypeUser, AssigneeID: &assignee,
	})
	require.NoError(t, err)

	// The elevated IT user sees the role queue plus nothing else here.
	resp, err := svc.ListMine(ctx, "user-it", nil, 20, 0)
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "IT queue", resp.Tasks[0].Title)

	// The member only sees the task assigned to them.
	resp, err = svc.ListMine(ctx, "user-member", nil, 20, 0)
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, direct.ID, resp.Tasks[0].ID)
}

func TestTaskCounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	past := time.Now().UTC().Add(-24 * time.Hour)

	_, err := svc.Create(ctx, CreateTaskRequest{
		Title: "Overdue pending", AssigneeType: models.AssigneeTypeIT, DueDate: &past,
	})
	require.NoError(t, err)

	inProgress, err := svc.Create(ctx, CreateTaskRequest{Title: "Running", AssigneeType: models.AssigneeTypeIT})
	require.NoError(t, err)

	_, err = svc.Start(ctx, inProgress.ID)
	require.NoError(t, err)

	done, err := svc.Create(ctx, CreateTaskRequest{Title: "Done", AssigneeType: models.AssigneeTypeIT})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, done.ID, "user-1", nil)
	require.NoError(t, err)

	counts, err := svc.Counts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.InProgress)
	assert.Equal(t, 1, counts.Overdue)
	assert.Equal(t, 1, counts.CompletedToday)
}

func TestDeleteTasksForRequest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTasksService(t)

	requestID := "req-1"

	for range 3 {
		_, err := svc.Create(ctx, CreateTaskRequest{
			Title: "Owned", AssigneeType: models.AssigneeTypeHR, RequestID: &requestID,
		})
		require.NoError(t, err)
	}

	_, err := svc.Create(ctx, CreateTaskRequest{Title: "Ad hoc", AssigneeType: models.AssigneeTypeHR})
	require.NoError(t, err)

	removed, err := svc.DeleteForRequest(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	resp, err := svc.List(ctx, ListTasksRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Tasks, 1)
}
