package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence"
)

// TaskRepository handles lifecycle task database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
	t.id
  , t.organization_id
  , t.request_id
  , t.user_id
  , t.title
  , t.description
  , t.category
  , t.assignee_type
  , t.assignee_id
  , t.assignee_role
  , t.trigger_type
  , t.trigger_offset_days
  , t.due_date
  , t.status
  , t.completed_at
  , t.completed_by
  , t.completion_notes
  , t.action_type
  , t.action_config
  , t.sequence_order
  , t.depends_on_task_id
  , t.created_at
  , t.updated_at
`

const taskOrdering = ` ORDER BY t.due_date ASC NULLS LAST, t.sequence_order ASC`

// Create inserts a new task row.
func (r *TaskRepository) Create(ctx context.Context, task *models.LifecycleTask) error {
	actionConfigJSON, err := json.Marshal(task.ActionConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal action config: %w", err)
	}

	query := `
		INSERT INTO lifecycle_tasks (
			id, organization_id, request_id, user_id, title, description, category,
			assignee_type, assignee_id, assignee_role, trigger_type, trigger_offset_days,
			due_date, status, completed_at, completed_by, completion_notes,
			action_type, action_config, sequence_order, depends_on_task_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.OrganizationID,
		task.RequestID,
		task.UserID,
		task.Title,
		task.Description,
		task.Category,
		task.AssigneeType,
		task.AssigneeID,
		task.AssigneeRole,
		task.TriggerType,
		task.TriggerOffsetDays,
		task.DueDate,
		task.Status,
		task.CompletedAt,
		task.CompletedBy,
		task.CompletionNotes,
		task.ActionType,
		actionConfigJSON,
		task.SequenceOrder,
		task.DependsOnTaskID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTaskError("Create", task.ID, err)
	}

	return nil
}

// GetByID returns a task by its ID, or nil when it does not exist.
func (r *TaskRepository) GetByID(ctx context.Context, orgID, id string) (*models.LifecycleTask, error) {
	query := `SELECT ` + taskColumns + ` FROM lifecycle_tasks t WHERE t.id = $1 AND t.organization_id = $2`

	row := r.db.QueryRowContext(ctx, query, id, orgID)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewTaskError("GetByID", id, err)
	}

	return task, nil
}

// List returns the filtered page plus the unpaginated total.
func (r *TaskRepository) List(ctx context.Context, orgID string, filter persistence.TaskFilter) ([]*models.LifecycleTask, int64, error) {
	where, args := taskFilterClauses(orgID, filter)

	var total int64

	countQuery := `SELECT COUNT(*) FROM lifecycle_tasks t WHERE ` + where

	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := `SELECT ` + taskColumns + ` FROM lifecycle_tasks t WHERE ` + where + taskOrdering +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	return r.queryTasks(ctx, query, args, total)
}

// ListForUser returns tasks visible to a user. Visibility is the union of
// direct assignment, elevated role-queue access (hr/it), manager tasks for
// requests the user manages, and self-service tasks about the user.
func (r *TaskRepository) ListForUser(ctx context.Context, orgID, userID string, elevated bool, statuses []models.TaskStatus, limit, offset int) ([]*models.LifecycleTask, int64, error) {
	clauses := []string{
		"t.assignee_id = $2",
		"(t.assignee_type = 'manager' AND req.manager_id = $2)",
		"(t.assignee_type = 'user' AND t.user_id = $2)",
	}
	if elevated {
		clauses = append(clauses, "t.assignee_type IN ('it', 'hr')")
	}

	where := "t.organization_id = $1 AND (" + strings.Join(clauses, " OR ") + ")"
	args := []any{orgID, userID}

	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}

		where += fmt.Sprintf(" AND t.status = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(values))
	}

	from := ` FROM lifecycle_tasks t LEFT JOIN user_requests req ON t.request_id = req.id WHERE `

	var total int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count user tasks: %w", err)
	}

	query := `SELECT ` + taskColumns + from + where + taskOrdering +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	return r.queryTasks(ctx, query, args, total)
}

// Complete marks an actionable task completed and unblocks its direct
// dependents in the same transaction, so a concurrent completion on the same
// dependency chain never observes a half-applied cascade.
func (r *TaskRepository) Complete(ctx context.Context, orgID, id string, stamp persistence.CompletionStamp) (persistence.CascadeResult, error) {
	return r.finish(ctx, orgID, id, models.TaskStatusCompleted, stamp)
}

// Skip marks an actionable task skipped with the same cascade semantics as
// Complete.
func (r *TaskRepository) Skip(ctx context.Context, orgID, id string, stamp persistence.CompletionStamp) (persistence.CascadeResult, error) {
	return r.finish(ctx, orgID, id, models.TaskStatusSkipped, stamp)
}

func (r *TaskRepository) finish(ctx context.Context, orgID, id string, to models.TaskStatus, stamp persistence.CompletionStamp) (persistence.CascadeResult, error) {
	var result persistence.CascadeResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Guarded status write: only actionable tasks can be finished.
	updateQuery := `
		UPDATE lifecycle_tasks
		SET status = $1
		  , completed_at = $2
		  , completed_by = $3
		  , completion_notes = $4
		  , updated_at = $5
		WHERE id = $6 AND organization_id = $7 AND status = ANY($8)
	`

	updateResult, err := tx.ExecContext(ctx, updateQuery,
		to,
		stamp.At,
		stamp.By,
		stamp.Notes,
		stamp.At,
		id,
		orgID,
		pq.Array([]string{string(models.TaskStatusPending), string(models.TaskStatusInProgress)}),
	)
	if err != nil {
		return result, persistence.NewTaskError("finish", id, err)
	}

	rowsAffected, err := updateResult.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = tx.Commit()
		if err != nil {
			return result, fmt.Errorf("failed to commit transaction: %w", err)
		}

		return result, nil
	}

	// One-hop cascade: direct dependents only. A chain of blocked tasks
	// needs each predecessor finished in turn.
	cascadeQuery := `
		UPDATE lifecycle_tasks
		SET status = $1, updated_at = $2
		WHERE organization_id = $3 AND depends_on_task_id = $4 AND status = $5
	`

	cascadeResult, err := tx.ExecContext(ctx, cascadeQuery,
		models.TaskStatusPending,
		stamp.At,
		orgID,
		id,
		models.TaskStatusBlocked,
	)
	if err != nil {
		return result, persistence.NewTaskError("finish", id, err)
	}

	unblocked, err := cascadeResult.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Updated = true
	result.Unblocked = unblocked

	return result, nil
}

// Start conditionally moves a pending task to in_progress.
func (r *TaskRepository) Start(ctx context.Context, orgID, id string, now time.Time) (bool, error) {
	query := `
		UPDATE lifecycle_tasks
		SET status = $1, updated_at = $2
		WHERE id = $3 AND organization_id = $4 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		models.TaskStatusInProgress, now, id, orgID, models.TaskStatusPending)
	if err != nil {
		return false, persistence.NewTaskError("Start", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Overdue returns pending tasks whose due date is in the past.
func (r *TaskRepository) Overdue(ctx context.Context, orgID string, now time.Time) ([]*models.LifecycleTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM lifecycle_tasks t
		WHERE t.organization_id = $1 AND t.status = $2 AND t.due_date < $3
		ORDER BY t.due_date ASC
	`

	tasks, _, err := r.queryTasks(ctx, query, []any{orgID, models.TaskStatusPending, now}, 0)
	if err != nil {
		return nil, err
	}

	return tasks, nil
}

// Counts aggregates task state, optionally scoped to one user's tasks.
func (r *TaskRepository) Counts(ctx context.Context, orgID, userID string, now time.Time) (models.TaskCounts, error) {
	var counts models.TaskCounts

	scope := ""
	args := []any{orgID, models.TaskStatusPending, models.TaskStatusInProgress, now}

	if userID != "" {
		scope = " AND (assignee_id = $5 OR user_id = $5)"
		args = append(args, userID)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2) AS pending
		  , COUNT(*) FILTER (WHERE status = $3) AS in_progress
		  , COUNT(*) FILTER (WHERE status = $2 AND due_date < $4) AS overdue
		  , COUNT(*) FILTER (WHERE status = 'completed' AND completed_at >= $` + fmt.Sprint(len(args)+1) + `) AS completed_today
		FROM lifecycle_tasks
		WHERE organization_id = $1` + scope

	args = append(args, dayStart)

	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&counts.Pending, &counts.InProgress, &counts.Overdue, &counts.CompletedToday)
	if err != nil {
		return counts, fmt.Errorf("failed to aggregate task counts: %w", err)
	}

	return counts, nil
}

// DeleteByRequest removes every task owned by a request.
func (r *TaskRepository) DeleteByRequest(ctx context.Context, orgID, requestID string) (int64, error) {
	query := `DELETE FROM lifecycle_tasks WHERE organization_id = $1 AND request_id = $2`

	result, err := r.db.ExecContext(ctx, query, orgID, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks for request %s: %w", requestID, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args []any, total int64) ([]*models.LifecycleTask, int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]*models.LifecycleTask, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, total, nil
}

// taskFilterClauses builds the conjunctive WHERE clause for a filter.
func taskFilterClauses(orgID string, filter persistence.TaskFilter) (string, []any) {
	clauses := []string{"t.organization_id = $1"}
	args := []any{orgID}

	add := func(clause string, value any) {
		clauses = append(clauses, fmt.Sprintf(clause, len(args)+1))
		args = append(args, value)
	}

	if filter.RequestID != "" {
		add("t.request_id = $%d", filter.RequestID)
	}

	if filter.UserID != "" {
		add("t.user_id = $%d", filter.UserID)
	}

	if len(filter.AssigneeTypes) > 0 {
		types := make([]string, 0, len(filter.AssigneeTypes))
		for _, assigneeType := range filter.AssigneeTypes {
			types = append(types, string(assigneeType))
		}

		add("t.assignee_type = ANY($%d)", pq.Array(types))
	}

	if filter.AssigneeID != "" {
		add("t.assignee_id = $%d", filter.AssigneeID)
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}

		add("t.status = ANY($%d)", pq.Array(statuses))
	}

	if filter.Category != "" {
		add("t.category = $%d", filter.Category)
	}

	if filter.OverdueOnly {
		clauses = append(clauses, fmt.Sprintf("t.status = '%s'", models.TaskStatusPending))
		add("t.due_date < $%d", filter.Now)
	}

	if filter.DueFrom != nil {
		add("t.due_date >= $%d", *filter.DueFrom)
	}

	if filter.DueTo != nil {
		add("t.due_date <= $%d", *filter.DueTo)
	}

	return strings.Join(clauses, " AND "), args
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*models.LifecycleTask, error) {
	var (
		task             models.LifecycleTask
		actionConfigJSON []byte
	)

	err := scanner.Scan(
		&task.ID,
		&task.OrganizationID,
		&task.RequestID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Category,
		&task.AssigneeType,
		&task.AssigneeID,
		&task.AssigneeRole,
		&task.TriggerType,
		&task.TriggerOffsetDays,
		&task.DueDate,
		&task.Status,
		&task.CompletedAt,
		&task.CompletedBy,
		&task.CompletionNotes,
		&task.ActionType,
		&actionConfigJSON,
		&task.SequenceOrder,
		&task.DependsOnTaskID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if actionConfigJSON != nil {
		err := json.Unmarshal(actionConfigJSON, &task.ActionConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal action config: %w", err)
		}
	}

	return &task, nil
}
