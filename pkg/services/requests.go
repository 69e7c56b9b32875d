package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/helioshq/helios/pkg/directory"
	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/notify"
	"github.com/helioshq/helios/pkg/otelhelper"
	"github.com/helioshq/helios/pkg/persistence"
)

var requestTracer = otel.Tracer("helios/services/requests")

// notifyTimeout bounds the detached notification dispatch after a
// transition has committed.
const notifyTimeout = 10 * time.Second

// Requests drives the lifecycle request state machine and orchestrates
// audit logging and notification dispatch on transitions.
type Requests struct {
	persistence persistence.Persistence
	notifier    notify.Notifier
	directory   directory.Directory
	logger      *slog.Logger
	orgID       string
}

func NewRequests(p persistence.Persistence, notifier notify.Notifier, dir directory.Directory, logger *slog.Logger, orgID string) *Requests {
	return &Requests{
		persistence: p,
		notifier:    notifier,
		directory:   dir,
		logger:      logger.With("module", "requests_service"),
		orgID:       orgID,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Requests) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateRequestRequest carries the fields for a new lifecycle request.
type CreateRequestRequest struct {
	RequestType models.RequestType `validate:"required,oneof=onboard offboard transfer"`

	Email         string  `validate:"required,email"`
	FirstName     string  `validate:"required"`
	LastName      string  `validate:"required"`
	PersonalEmail *string `validate:"omitempty,email"`
	UserID        *string

	StartDate *time.Time
	EndDate   *time.Time

	TemplateID   *string
	JobTitle     *string
	DepartmentID *string
	ManagerID    *string
	Location     *string
	Metadata     map[string]any

	RequestedBy string `validate:"required"`
}

// Create inserts a new request in pending status and records the creation
// in the audit trail.
func (s *Requests) Create(ctx context.Context, req CreateRequestRequest) (*models.LifecycleRequest, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request := &models.LifecycleRequest{
		ID:             uuid.New().String(),
		OrganizationID: s.orgID,
		RequestType:    req.RequestType,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PersonalEmail:  req.PersonalEmail,
		UserID:         req.UserID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		TemplateID:     req.TemplateID,
		JobTitle:       req.JobTitle,
		DepartmentID:   req.DepartmentID,
		ManagerID:      req.ManagerID,
		Location:       req.Location,
		Metadata:       req.Metadata,
		Status:         models.RequestStatusPending,
		RequestedBy:    req.RequestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.persistence.RequestRepository().Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.audit(ctx, request, models.AuditRequestCreated, req.RequestedBy, map[string]any{
		"request_type": request.RequestType,
		"email":        request.Email,
	})

	return request, nil
}

func (s *Requests) validateCreate(req CreateRequestRequest) error {
	switch req.RequestType {
	case models.RequestTypeOnboard, models.RequestTypeOffboard, models.RequestTypeTransfer:
	default:
		return fmt.Errorf("%w: invalid request type %q", ErrInvalidRequest, req.RequestType)
	}

	if req.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	if req.FirstName == "" || req.LastName == "" {
		return fmt.Errorf("%w: first and last name are required", ErrInvalidRequest)
	}

	if req.RequestedBy == "" {
		return ErrMissingActor
	}

	return nil
}

// Get retrieves a request enriched with display names resolved from the
// directory. The names are projections only; missing directory entries
// leave them blank.
func (s *Requests) Get(ctx context.Context, id string) (*models.RequestDetails, error) {
	request, err := s.persistence.RequestRepository().GetByID(ctx, s.orgID, id)
	if err != nil {
		return nil, err
	}

	if request == nil {
		return nil, ErrRequestNotFound
	}

	details := &models.RequestDetails{LifecycleRequest: *request}

	details.RequesterName = s.displayName(ctx, request.RequestedBy)

	if request.ApprovedBy != nil {
		details.ApproverName = s.displayName(ctx, *request.ApprovedBy)
	}

	if request.ManagerID != nil {
		details.ManagerName = s.displayName(ctx, *request.ManagerID)
	}

	return details, nil
}

func (s *Requests) displayName(ctx context.Context, userID string) string {
	profile, err := s.directory.Lookup(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "Directory lookup failed", "user_id", userID, "error", err)

		return ""
	}

	if profile == nil {
		return ""
	}

	return profile.DisplayName()
}

// ListRequestsRequest contains options for listing requests. All set
// filters are combined with AND.
type ListRequestsRequest struct {
	Statuses    []models.RequestStatus
	RequestType *models.RequestType
	RequestedBy string
	ManagerID   string

	StartDateFrom *time.Time
	StartDateTo   *time.Time

	// Case-insensitive substring match over email and names.
	Search string

	Limit  int
	Offset int
}

// ListRequestsResponse contains the result of listing requests.
type ListRequestsResponse struct {
	Requests   []*models.LifecycleRequest `json:"requests"`
	TotalCount int64                      `json:"total_count"`
}

// List retrieves requests newest first with an accurate unpaginated total.
func (s *Requests) List(ctx context.Context, req ListRequestsRequest) (*ListRequestsResponse, error) {
	limit, offset := normalizePage(req.Limit, req.Offset)

	for _, status := range req.Statuses {
		if !validRequestStatus(status) {
			return nil, fmt.Errorf("%w: invalid status %q", ErrInvalidRequest, status)
		}
	}

	if req.RequestType != nil {
		switch *req.RequestType {
		case models.RequestTypeOnboard, models.RequestTypeOffboard, models.RequestTypeTransfer:
		default:
			return nil, fmt.Errorf("%w: invalid request type %q", ErrInvalidRequest, *req.RequestType)
		}
	}

	filter := persistence.RequestFilter{
		Statuses:      req.Statuses,
		RequestType:   req.RequestType,
		RequestedBy:   req.RequestedBy,
		ManagerID:     req.ManagerID,
		StartDateFrom: req.StartDateFrom,
		StartDateTo:   req.StartDateTo,
		Search:        req.Search,
		Limit:         limit,
		Offset:        offset,
	}

	requests, total, err := s.persistence.RequestRepository().List(ctx, s.orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	return &ListRequestsResponse{Requests: requests, TotalCount: total}, nil
}

// Update applies a sparse field update. Requests in a terminal state are
// immutable; an empty update returns the current row unchanged. Status is
// not updatable here, transitions go through Approve, Reject, and Cancel.
func (s *Requests) Update(ctx context.Context, id string, update persistence.RequestUpdate) (*models.LifecycleRequest, error) {
	current, err := s.persistence.RequestRepository().GetByID(ctx, s.orgID, id)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return nil, ErrRequestNotFound
	}

	if current.Status.Terminal() {
		return nil, newRequestStateError("update", current.Status)
	}

	if update.Empty() {
		return current, nil
	}

	updated, err := s.persistence.RequestRepository().Update(ctx, s.orgID, id, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	if updated == nil {
		return nil, ErrRequestNotFound
	}

	return updated, nil
}

// Approve transitions a pending request to approved, stamps the approval,
// appends an audit entry, and dispatches the approval notification without
// waiting for it. Exactly one of two concurrent approvals wins; the loser
// gets an invalid-state error carrying the actual current status.
func (s *Requests) Approve(ctx context.Context, id, approvedBy string) (*models.LifecycleRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, requestTracer, "requests.approve",
		attribute.String(otelhelper.RequestIDKey, id),
		attribute.String(otelhelper.ActorIDKey, approvedBy),
	)
	defer span.End()

	if approvedBy == "" {
		otelhelper.SetError(span, ErrMissingActor)

		return nil, ErrMissingActor
	}

	now := time.Now().UTC()
	transition := persistence.RequestTransition{
		To:          models.RequestStatusApproved,
		AllowedFrom: []models.RequestStatus{models.RequestStatusPending},
		ApprovedBy:  &approvedBy,
		ApprovedAt:  &now,
	}

	request, err := s.transition(ctx, id, "approve", transition)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	s.audit(ctx, request, models.AuditRequestApproved, approvedBy, map[string]any{
		"email": request.Email,
	})

	s.dispatch(ctx, "approval", func(ctx context.Context) error {
		return s.notifier.RequestApproved(ctx, notify.ApprovalNotice{
			Request:      request,
			ApprovedBy:   approvedBy,
			ApproverName: s.displayName(ctx, approvedBy),
		})
	})

	return request, nil
}

// Reject transitions a pending request to rejected with an optional reason.
// Audit and notification semantics match Approve.
func (s *Requests) Reject(ctx context.Context, id, rejectedBy string, reason *string) (*models.LifecycleRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, requestTracer, "requests.reject",
		attribute.String(otelhelper.RequestIDKey, id),
		attribute.String(otelhelper.ActorIDKey, rejectedBy),
	)
	defer span.End()

	if rejectedBy == "" {
		otelhelper.SetError(span, ErrMissingActor)

		return nil, ErrMissingActor
	}

	transition := persistence.RequestTransition{
		To:              models.RequestStatusRejected,
		AllowedFrom:     []models.RequestStatus{models.RequestStatusPending},
		RejectionReason: reason,
	}

	request, err := s.transition(ctx, id, "reject", transition)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	details := map[string]any{"email": request.Email}
	if reason != nil {
		details["reason"] = *reason
	}

	s.audit(ctx, request, models.AuditRequestRejected, rejectedBy, details)

	s.dispatch(ctx, "rejection", func(ctx context.Context) error {
		notice := notify.RejectionNotice{Request: request, RejectedBy: rejectedBy}
		if reason != nil {
			notice.Reason = *reason
		}

		return s.notifier.RequestRejected(ctx, notice)
	})

	return request, nil
}

// Cancel transitions a request to cancelled from any non-terminal-cancel
// state. No notification is dispatched on cancellation.
func (s *Requests) Cancel(ctx context.Context, id, cancelledBy string) (*models.LifecycleRequest, error) {
	ctx, span := otelhelper.StartSpan(ctx, requestTracer, "requests.cancel",
		attribute.String(otelhelper.RequestIDKey, id),
		attribute.String(otelhelper.ActorIDKey, cancelledBy),
	)
	defer span.End()

	if cancelledBy == "" {
		otelhelper.SetError(span, ErrMissingActor)

		return nil, ErrMissingActor
	}

	transition := persistence.RequestTransition{
		To: models.RequestStatusCancelled,
		AllowedFrom: []models.RequestStatus{
			models.RequestStatusPending,
			models.RequestStatusApproved,
			models.RequestStatusInProgress,
			models.RequestStatusRejected,
		},
	}

	request, err := s.transition(ctx, id, "cancel", transition)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	s.audit(ctx, request, models.AuditRequestCancelled, cancelledBy, map[string]any{
		"email": request.Email,
	})

	return request, nil
}

// transition applies a guarded status change and maps a failed guard to the
// precise domain error by re-reading the row.
func (s *Requests) transition(ctx context.Context, id, action string, t persistence.RequestTransition) (*models.LifecycleRequest, error) {
	repo := s.persistence.RequestRepository()

	applied, err := repo.Transition(ctx, s.orgID, id, t)
	if err != nil {
		return nil, fmt.Errorf("failed to %s request: %w", action, err)
	}

	if !applied {
		current, err := repo.GetByID(ctx, s.orgID, id)
		if err != nil {
			return nil, err
		}

		if current == nil {
			return nil, ErrRequestNotFound
		}

		return nil, newRequestStateError(action, current.Status)
	}

	request, err := repo.GetByID(ctx, s.orgID, id)
	if err != nil {
		return nil, err
	}

	if request == nil {
		return nil, ErrRequestNotFound
	}

	s.logger.InfoContext(ctx, "Request transitioned",
		"request_id", id, "action", action, "status", request.Status)

	return request, nil
}

// dispatch runs a notification send detached from the caller. The
// transition has already committed, so a failed or slow send is logged and
// never surfaced.
func (s *Requests) dispatch(ctx context.Context, kind string, send func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)

	go func() {
		ctx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to dispatch notification",
				"kind", kind, "error", err)
		}
	}()
}

// Counts returns a count for every request status, zero-defaulted.
func (s *Requests) Counts(ctx context.Context) (map[models.RequestStatus]int, error) {
	return s.persistence.RequestRepository().CountByStatus(ctx, s.orgID)
}

// PendingCount returns the number of requests awaiting approval.
func (s *Requests) PendingCount(ctx context.Context) (int, error) {
	counts, err := s.Counts(ctx)
	if err != nil {
		return 0, err
	}

	return counts[models.RequestStatusPending], nil
}

// ActiveOnboardings returns onboard requests in approved or in_progress
// status ordered by start date, soonest first.
func (s *Requests) ActiveOnboardings(ctx context.Context) ([]*models.LifecycleRequest, error) {
	return s.persistence.RequestRepository().ActiveOnboardings(ctx, s.orgID)
}

func (s *Requests) audit(ctx context.Context, request *models.LifecycleRequest, action, actor string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}

	details["request_id"] = request.ID

	entry := &models.AuditEntry{
		ID:             uuid.New().String(),
		OrganizationID: s.orgID,
		UserID:         request.UserID,
		Action:         action,
		Details:        details,
		PerformedBy:    actor,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.persistence.AuditRepository().Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to append audit entry",
			"action", action, "request_id", request.ID, "error", err)
	}
}

func validRequestStatus(status models.RequestStatus) bool {
	for _, known := range models.RequestStatuses {
		if status == known {
			return true
		}
	}

	return false
}
