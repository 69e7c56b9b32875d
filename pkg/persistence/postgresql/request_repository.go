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

// RequestRepository handles lifecycle request database operations.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *sql.DB, logger *slog.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

const requestColumns = `
	id
  , organization_id
  , request_type
  , email
  , first_name
  , last_name
  , personal_email
  , user_id
  , start_date
  , end_date
  , template_id
  , job_title
  , department_id
  , manager_id
  , location
  , metadata
  , status
  , requested_by
  , approved_by
  , approved_at
  , rejection_reason
  , tasks_total
  , tasks_completed
  , created_at
  , updated_at
`

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.LifecycleRequest) error {
	metadataJSON, err := json.Marshal(request.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO user_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`

	_, err = r.db.ExecContext(ctx, query,
		request.ID,
		request.OrganizationID,
		request.RequestType,
		request.Email,
		request.FirstName,
		request.LastName,
		request.PersonalEmail,
		request.UserID,
		request.StartDate,
		request.EndDate,
		request.TemplateID,
		request.JobTitle,
		request.DepartmentID,
		request.ManagerID,
		request.Location,
		metadataJSON,
		request.Status,
		request.RequestedBy,
		request.ApprovedBy,
		request.ApprovedAt,
		request.RejectionReason,
		request.TasksTotal,
		request.TasksCompleted,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRequestError("Create", request.ID, err)
	}

	return nil
}

// GetByID returns a request by its ID, or nil when it does not exist.
func (r *RequestRepository) GetByID(ctx context.Context, orgID, id string) (*models.LifecycleRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM user_requests WHERE id = $1 AND organization_id = $2`

	row := r.db.QueryRowContext(ctx, query, id, orgID)

	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewRequestError("GetByID", id, err)
	}

	return request, nil
}

// List returns the filtered page ordered by created_at descending, plus the
// unpaginated total.
func (r *RequestRepository) List(ctx context.Context, orgID string, filter persistence.RequestFilter) ([]*models.LifecycleRequest, int64, error) {
	where, args := requestFilterClauses(orgID, filter)

	var total int64

	countQuery := `SELECT COUNT(*) FROM user_requests WHERE ` + where

	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	query := `SELECT ` + requestColumns + ` FROM user_requests WHERE ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query requests: %w", err)
	}

	defer r.closeRows(ctx, rows)

	requests := make([]*models.LifecycleRequest, 0)

	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan request: %w", err)
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, total, nil
}

// Update applies a sparse field update and returns the updated row.
func (r *RequestRepository) Update(ctx context.Context, orgID, id string, update persistence.RequestUpdate) (*models.LifecycleRequest, error) {
	if update.Empty() {
		return r.GetByID(ctx, orgID, id)
	}

	sets := []string{}
	args := []any{}

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}

	if update.Email != nil {
		add("email", *update.Email)
	}

	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}

	if update.LastName != nil {
		add("last_name", *update.LastName)
	}

	if update.PersonalEmail != nil {
		add("personal_email", *update.PersonalEmail)
	}

	if update.StartDate != nil {
		add("start_date", *update.StartDate)
	}

	if update.EndDate != nil {
		add("end_date", *update.EndDate)
	}

	if update.TemplateID != nil {
		add("template_id", *update.TemplateID)
	}

	if update.JobTitle != nil {
		add("job_title", *update.JobTitle)
	}

	if update.DepartmentID != nil {
		add("department_id", *update.DepartmentID)
	}

	if update.ManagerID != nil {
		add("manager_id", *update.ManagerID)
	}

	if update.Location != nil {
		add("location", *update.Location)
	}

	if update.Metadata != nil {
		metadataJSON, err := json.Marshal(update.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		add("metadata", metadataJSON)
	}

	if update.TasksTotal != nil {
		add("tasks_total", *update.TasksTotal)
	}

	if update.TasksCompleted != nil {
		add("tasks_completed", *update.TasksCompleted)
	}

	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf(
		"UPDATE user_requests SET %s WHERE id = $%d AND organization_id = $%d",
		strings.Join(sets, ", "), len(args)+1, len(args)+2,
	)
	args = append(args, id, orgID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewRequestError("Update", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, orgID, id)
}

// Transition applies a status-guarded state change. The WHERE clause on the
// current status makes concurrent transitions race-safe: only one write can
// match.
func (r *RequestRepository) Transition(ctx context.Context, orgID, id string, transition persistence.RequestTransition) (bool, error) {
	allowed := make([]string, 0, len(transition.AllowedFrom))
	for _, status := range transition.AllowedFrom {
		allowed = append(allowed, string(status))
	}

	query := `
		UPDATE user_requests
		SET status = $1
		  , approved_by = COALESCE($2, approved_by)
		  , approved_at = COALESCE($3, approved_at)
		  , rejection_reason = COALESCE($4, rejection_reason)
		  , updated_at = $5
		WHERE id = $6 AND organization_id = $7 AND status = ANY($8)
	`

	result, err := r.db.ExecContext(ctx, query,
		transition.To,
		transition.ApprovedBy,
		transition.ApprovedAt,
		transition.RejectionReason,
		time.Now().UTC(),
		id,
		orgID,
		pq.Array(allowed),
	)
	if err != nil {
		return false, persistence.NewRequestError("Transition", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountByStatus returns a count for every request status, zero-defaulted.
func (r *RequestRepository) CountByStatus(ctx context.Context, orgID string) (map[models.RequestStatus]int, error) {
	counts := make(map[models.RequestStatus]int, len(models.RequestStatuses))
	for _, status := range models.RequestStatuses {
		counts[status] = 0
	}

	query := `SELECT status, COUNT(*) FROM user_requests WHERE organization_id = $1 GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests by status: %w", err)
	}

	defer r.closeRows(ctx, rows)

	for rows.Next() {
		var (
			status models.RequestStatus
			count  int
		)

		err := rows.Scan(&status, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}

		counts[status] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// ActiveOnboardings returns onboard requests in approved or in_progress
// status, ordered by start date ascending.
func (r *RequestRepository) ActiveOnboardings(ctx context.Context, orgID string) ([]*models.LifecycleRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM user_requests
		WHERE organization_id = $1
		  AND request_type = $2
		  AND status = ANY($3)
		ORDER BY start_date ASC NULLS LAST
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, models.RequestTypeOnboard,
		pq.Array([]string{string(models.RequestStatusApproved), string(models.RequestStatusInProgress)}))
	if err != nil {
		return nil, fmt.Errorf("failed to query active onboardings: %w", err)
	}

	defer r.closeRows(ctx, rows)

	requests := make([]*models.LifecycleRequest, 0)

	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		requests = append(requests, request)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating active onboardings: %w", err)
	}

	return requests, nil
}

func (r *RequestRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// requestFilterClauses builds the conjunctive WHERE clause for a filter.
func requestFilterClauses(orgID string, filter persistence.RequestFilter) (string, []any) {
	clauses := []string{"organization_id = $1"}
	args := []any{orgID}

	add := func(clause string, value any) {
		clauses = append(clauses, fmt.Sprintf(clause, len(args)+1))
		args = append(args, value)
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}

		add("status = ANY($%d)", pq.Array(statuses))
	}

	if filter.RequestType != nil {
		add("request_type = $%d", *filter.RequestType)
	}

	if filter.RequestedBy != "" {
		add("requested_by = $%d", filter.RequestedBy)
	}

	if filter.ManagerID != "" {
		add("manager_id = $%d", filter.ManagerID)
	}

	if filter.StartDateFrom != nil {
		add("start_date >= $%d", *filter.StartDateFrom)
	}

	if filter.StartDateTo != nil {
		add("start_date <= $%d", *filter.StartDateTo)
	}

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		clauses = append(clauses, fmt.Sprintf(
			"(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1,
		))
		args = append(args, pattern)
	}

	return strings.Join(clauses, " AND "), args
}

func scanRequest(scanner interface {
	Scan(dest ...any) error
}) (*models.LifecycleRequest, error) {
	var (
		request      models.LifecycleRequest
		metadataJSON []byte
	)

	err := scanner.Scan(
		&request.ID,
		&request.OrganizationID,
		&request.RequestType,
		&request.Email,
		&request.FirstName,
		&request.LastName,
		&request.PersonalEmail,
		&request.UserID,
		&request.StartDate,
		&request.EndDate,
		&request.TemplateID,
		&request.JobTitle,
		&request.DepartmentID,
		&request.ManagerID,
		&request.Location,
		&metadataJSON,
		&request.Status,
		&request.RequestedBy,
		&request.ApprovedBy,
		&request.ApprovedAt,
		&request.RejectionReason,
		&request.TasksTotal,
		&request.TasksCompleted,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		err := json.Unmarshal(metadataJSON, &request.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &request, nil
}
