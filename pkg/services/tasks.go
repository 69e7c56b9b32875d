package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/helioshq/helios/pkg/actions"
	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/otelhelper"
	"github.com/helioshq/helios/pkg/persistence"
)

var taskTracer = otel.Tracer("helios/services/tasks")

// Tasks manages the lifecycle task graph: creation with dependency linking,
// visibility queries, and the completion/skip transitions with their unblock
// cascade.
type Tasks struct {
	persistence persistence.Persistence
	directory   directory.Directory
	logger      *slog.Logger
	orgID       string
}

func NewTasks(p persistence.Persistence, dir directory.Directory, logger *slog.Logger, orgID string) *Tasks {
	return &Tasks{
		persistence: p,
		directory:   dir,
		logger:      logger.With("module", "tasks_service"),
		orgID:       orgID,
	}
}

// CreateTaskRequest carries the fields for one new task.
type CreateTaskRequest struct {
	RequestID *string
	UserID    *string

	Title       string `validate:"required"`
	Description *string
	Category    *string

	AssigneeType models.AssigneeType `validate:"required,oneof=user manager hr it system"`
	AssigneeID   *string
	AssigneeRole *string

	TriggerType       models.TriggerType
	TriggerOffsetDays int
	DueDate           *time.Time

	ActionType   *string
	ActionConfig map[string]any

	SequenceOrder   int
	DependsOnTaskID *string
}

// Create inserts one task. Tasks carrying a dependency start out blocked and
// stay that way until their predecessor completes or is skipped.
func (s *Tasks) Create(ctx context.Context, req CreateTaskRequest) (*models.LifecycleTask, error) {
	if err := s.validateCreate(ctx, req); err != nil {
		return nil, err
	}

	status := models.TaskStatusPending
	if req.DependsOnTaskID != nil {
		status = models.TaskStatusBlocked
	}

	now := time.Now().UTC()
	task := &models.LifecycleTask{
		ID:                uuid.New().String(),
		OrganizationID:    s.orgID,
		RequestID:         req.RequestID,
		UserID:            req.UserID,
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		AssigneeType:      req.AssigneeType,
		AssigneeID:        req.AssigneeID,
		AssigneeRole:      req.AssigneeRole,
		TriggerType:       req.TriggerType,
		TriggerOffsetDays: req.TriggerOffsetDays,
		DueDate:           req.DueDate,
		Status:            status,
		ActionType:        req.ActionType,
		ActionConfig:      req.ActionConfig,
		SequenceOrder:     req.SequenceOrder,
		DependsOnTaskID:   req.DependsOnTaskID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.persistence.TaskRepository().Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// CreateBatch inserts tasks one by one. Each insert is independent; a failure
// does not roll back earlier inserts, but every failure is reported back in
// the joined error alongside whatever was created.
func (s *Tasks) CreateBatch(ctx context.Context, reqs []CreateTaskRequest) ([]*models.LifecycleTask, error) {
	created := make([]*models.LifecycleTask, 0, len(reqs))

	var errs []error

	for i, req := range reqs {
		task, err := s.Create(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %d (%s): %w", i, req.Title, err))

			continue
		}

		created = append(created, task)
	}

	return created, errors.Join(errs...)
}

func (s *Tasks) validateCreate(ctx context.Context, req CreateTaskRequest) error {
	if req.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}

	switch req.AssigneeType {
	case models.AssigneeTypeUser, models.AssigneeTypeManager, models.AssigneeTypeHR,
		models.AssigneeTypeIT, models.AssigneeTypeSystem:
	default:
		return fmt.Errorf("%w: invalid assignee type %q", ErrInvalidRequest, req.AssigneeType)
	}

	if req.ActionType != nil {
		if !actions.Known(*req.ActionType) {
			return fmt.Errorf("%w: %s", ErrUnknownActionType, *req.ActionType)
		}

		if err := actions.ValidateConfig(*req.ActionType, req.ActionConfig); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidActionConfig, err.Error())
		}
	}

	if req.DependsOnTaskID != nil {
		predecessor, err := s.persistence.TaskRepository().GetByID(ctx, s.orgID, *req.DependsOnTaskID)
		if err != nil {
			return fmt.Errorf("failed to resolve dependency: %w", err)
		}

		if predecessor == nil {
			return fmt.Errorf("%w: %s", ErrDanglingDependency, *req.DependsOnTaskID)
		}
	}

	return nil
}

// Get retrieves a task by id.
func (s *Tasks) Get(ctx context.Context, id string) (*models.LifecycleTask, error) {
	task, err := s.persistence.TaskRepository().GetByID(ctx, s.orgID, id)
	if err != nil {
		return nil, err
	}

	if task == nil {
		return nil, ErrTaskNotFound
	}

	return task, nil
}

// ListTasksRequest contains options for listing tasks. All set filters are
// combined with AND.
type ListTasksRequest struct {
	RequestID     string
	UserID        string
	AssigneeTypes []models.AssigneeType
	AssigneeID    string
	Statuses      []models.TaskStatus
	Category      string
	OverdueOnly   bool
	DueFrom       *time.Time
	DueTo         *time.Time

	Limit  int
	Offset int
}

// ListTasksResponse contains the result of listing tasks.
type ListTasksResponse struct {
	Tasks      []*models.LifecycleTask `json:"tasks"`
	TotalCount int64                   `json:"total_count"`
}

// List retrieves tasks ordered by due date ascending with nulls last,
// tiebreak sequence order.
func (s *Tasks) List(ctx context.Context, req ListTasksRequest) (*ListTasksResponse, error) {
	limit, offset := normalizePage(req.Limit, req.Offset)

	if err := validateTaskStatuses(req.Statuses); err != nil {
		return nil, err
	}

	filter := persistence.TaskFilter{
		RequestID:     req.RequestID,
		UserID:        req.UserID,
		AssigneeTypes: req.AssigneeTypes,
		AssigneeID:    req.AssigneeID,
		Statuses:      req.Statuses,
		Category:      req.Category,
		OverdueOnly:   req.OverdueOnly,
		Now:           time.Now().UTC(),
		DueFrom:       req.DueFrom,
		DueTo:         req.DueTo,
		Limit:         limit,
		Offset:        offset,
	}

	tasks, total, err := s.persistence.TaskRepository().List(ctx, s.orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &ListTasksResponse{Tasks: tasks, TotalCount: total}, nil
}

// ListMine returns the tasks visible to a user: directly assigned tasks,
// manager tasks for requests they manage, self-service tasks where they are
// the subject, and the hr/it role queues when their directory role grants
// elevated visibility.
func (s *Tasks) ListMine(ctx context.Context, userID string, statuses []models.TaskStatus, limit, offset int) (*ListTasksResponse, error) {
	if userID == "" {
		return nil, ErrMissingActor
	}

	limit, offset = normalizePage(limit, offset)

	if err := validateTaskStatuses(statuses); err != nil {
		return nil, err
	}

	elevated := false

	profile, err := s.directory.Lookup(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "Directory lookup failed, treating caller as member",
			"user_id", userID, "error", err)
	} else if profile != nil {
		elevated = profile.Role.Elevated()
	}

	tasks, total, err := s.persistence.TaskRepository().ListForUser(ctx, s.orgID, userID, elevated, statuses, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for user: %w", err)
	}

	return &ListTasksResponse{Tasks: tasks, TotalCount: total}, nil
}

// Complete marks a task completed, stamps the completion fields, appends an
// audit entry, and unblocks the task's direct dependents. Completing an
// already completed task fails rather than silently succeeding.
func (s *Tasks) Complete(ctx context.Context, id, completedBy string, notes *string) (*models.LifecycleTask, error) {
	ctx, span := otelhelper.StartSpan(ctx, taskTracer, "tasks.complete",
		attribute.String(otelhelper.TaskIDKey, id),
		attribute.String(otelhelper.ActorIDKey, completedBy),
	)
	defer span.End()

	task, err := s.finish(ctx, id, completedBy, notes, models.TaskStatusCompleted)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return task, nil
}

// Skip marks a task skipped with the reason recorded in the completion
// notes. The unblock cascade runs exactly as it does for completion.
func (s *Tasks) Skip(ctx context.Context, id, skippedBy string, reason *string) (*models.LifecycleTask, error) {
	ctx, span := otelhelper.StartSpan(ctx, taskTracer, "tasks.skip",
		attribute.String(otelhelper.TaskIDKey, id),
		attribute.String(otelhelper.ActorIDKey, skippedBy),
	)
	defer span.End()

	task, err := s.finish(ctx, id, skippedBy, reason, models.TaskStatusSkipped)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return task, nil
}

func (s *Tasks) finish(ctx context.Context, id, actor string, notes *string, to models.TaskStatus) (*models.LifecycleTask, error) {
	if actor == "" {
		return nil, ErrMissingActor
	}

	repo := s.persistence.TaskRepository()

	stamp := persistence.CompletionStamp{
		By:    actor,
		Notes: notes,
		At:    time.Now().UTC(),
	}

	var (
		result persistence.CascadeResult
		err    error
	)

	if to == models.TaskStatusCompleted {
		result, err = repo.Complete(ctx, s.orgID, id, stamp)
	} else {
		result, err = repo.Skip(ctx, s.orgID, id, stamp)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if !result.Updated {
		return nil, s.classifyFinishFailure(ctx, id)
	}

	task, err := repo.GetByID(ctx, s.orgID, id)
	if err != nil {
		return nil, err
	}

	if task == nil {
		return nil, ErrTaskNotFound
	}

	action := models.AuditTaskCompleted
	if to == models.TaskStatusSkipped {
		action = models.AuditTaskSkipped
	}

	s.audit(ctx, task, action, actor, notes)

	s.logger.InfoContext(ctx, "Task finished",
		"task_id", id, "status", to, "unblocked", result.Unblocked)

	return task, nil
}

// classifyFinishFailure turns a failed status guard into the precise domain
// error by re-reading the row. The guard and the read are not atomic, but a
// row that moved in between was in a non-actionable state either way.
func (s *Tasks) classifyFinishFailure(ctx context.Context, id string) error {
	task, err := s.persistence.TaskRepository().GetByID(ctx, s.orgID, id)
	if err != nil {
		return err
	}

	if task == nil {
		return ErrTaskNotFound
	}

	switch task.Status {
	case models.TaskStatusCompleted:
		return ErrTaskAlreadyCompleted
	case models.TaskStatusSkipped:
		return ErrTaskAlreadySkipped
	case models.TaskStatusBlocked:
		return ErrTaskBlocked
	default:
		return &InvalidStateError{Action: "update", Entity: "task", Status: string(task.Status)}
	}
}

// Start moves a pending task to in_progress. Not being pending is a no-op,
// not an error; the method returns nil in that case.
func (s *Tasks) Start(ctx context.Context, id string) (*models.LifecycleTask, error) {
	started, err := s.persistence.TaskRepository().Start(ctx, s.orgID, id, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}

	if !started {
		return nil, nil
	}

	return s.persistence.TaskRepository().GetByID(ctx, s.orgID, id)
}

// Overdue returns pending tasks whose due date has passed, oldest first.
func (s *Tasks) Overdue(ctx context.Context) ([]*models.LifecycleTask, error) {
	return s.persistence.TaskRepository().Overdue(ctx, s.orgID, time.Now().UTC())
}

// Counts aggregates task state for dashboards, optionally scoped to one
// user's assigned and subject tasks.
func (s *Tasks) Counts(ctx context.Context, userID string) (models.TaskCounts, error) {
	return s.persistence.TaskRepository().Counts(ctx, s.orgID, userID, time.Now())
}

// DeleteForRequest removes every task owned by a request.
func (s *Tasks) DeleteForRequest(ctx context.Context, requestID string) (int64, error) {
	if requestID == "" {
		return 0, fmt.Errorf("%w: request id is required", ErrInvalidRequest)
	}

	return s.persistence.TaskRepository().DeleteByRequest(ctx, s.orgID, requestID)
}

func (s *Tasks) audit(ctx context.Context, task *models.LifecycleTask, action, actor string, notes *string) {
	details := map[string]any{
		"task_id": task.ID,
		"title":   task.Title,
	}
	if task.RequestID != nil {
		details["request_id"] = *task.RequestID
	}

	if notes != nil {
		details["notes"] = *notes
	}

	entry := &models.AuditEntry{
		ID:             uuid.New().String(),
		OrganizationID: s.orgID,
		UserID:         task.UserID,
		Action:         action,
		Details:        details,
		PerformedBy:    actor,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.persistence.AuditRepository().Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to append audit entry",
			"action", action, "task_id", task.ID, "error", err)
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}

	if limit > 100 {
		limit = 100
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

func validateTaskStatuses(statuses []models.TaskStatus) error {
	for _, status := range statuses {
		switch status {
		case models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted,
			models.TaskStatusSkipped, models.TaskStatusBlocked:
		default:
			return fmt.Errorf("%w: invalid task status %q", ErrInvalidRequest, status)
		}
	}

	return nil
}
