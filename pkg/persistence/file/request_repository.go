package file

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence"
)

const requestsCollection = "requests"

// RequestRepository handles lifecycle request file operations.
type RequestRepository struct {
	store *store
}

func (r *RequestRepository) Create(_ context.Context, request *models.LifecycleRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(requestsCollection, request.ID, request)
}

func (r *RequestRepository) GetByID(_ context.Context, orgID, id string) (*models.LifecycleRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(orgID, id)
}

func (r *RequestRepository) getLocked(orgID, id string) (*models.LifecycleRequest, error) {
	var request models.LifecycleRequest

	found, err := r.store.read(requestsCollection, id, &request)
	if err != nil {
		return nil, err
	}

	if !found || request.OrganizationID != orgID {
		return nil, nil
	}

	return &request, nil
}

func (r *RequestRepository) allLocked(orgID string) ([]*models.LifecycleRequest, error) {
	ids, err := r.store.ids(requestsCollection)
	if err != nil {
		return nil, err
	}

	requests := make([]*models.LifecycleRequest, 0, len(ids))

	for _, id := range ids {
		request, err := r.getLocked(orgID, id)
		if err != nil {
			return nil, err
		}

		if request != nil {
			requests = append(requests, request)
		}
	}

	return requests, nil
}

func (r *RequestRepository) List(_ context.Context, orgID string, filter persistence.RequestFilter) ([]*models.LifecycleRequest, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.allLocked(orgID)
	if err != nil {
		return nil, 0, err
	}

	filtered := make([]*models.LifecycleRequest, 0, len(all))

	for _, request := range all {
		if matchesRequestFilter(request, filter) {
			filtered = append(filtered, request)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := int64(len(filtered))

	return paginate(filtered, filter.Offset, filter.Limit), total, nil
}

func matchesRequestFilter(request *models.LifecycleRequest, filter persistence.RequestFilter) bool {
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, request.Status) {
		return false
	}

	if filter.RequestType != nil && request.RequestType != *filter.RequestType {
		return false
	}

	if filter.RequestedBy != "" && request.RequestedBy != filter.RequestedBy {
		return false
	}

	if filter.ManagerID != "" && (request.ManagerID == nil || *request.ManagerID != filter.ManagerID) {
		return false
	}

	if filter.StartDateFrom != nil && (request.StartDate == nil || request.StartDate.Before(*filter.StartDateFrom)) {
		return false
	}

	if filter.StartDateTo != nil && (request.StartDate == nil || request.StartDate.After(*filter.StartDateTo)) {
		return false
	}

	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		haystack := strings.ToLower(request.Email + " " + request.FirstName + " " + request.LastName)

		if !strings.Contains(haystack, needle) {
			return false
		}
	}

	return true
}

func (r *RequestRepository) Update(_ context.Context, orgID, id string, update persistence.RequestUpdate) (*models.LifecycleRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	request, err := r.getLocked(orgID, id)
	if err != nil || request == nil {
		return nil, err
	}

	if update.Empty() {
		return request, nil
	}

	if update.Email != nil {
		request.Email = *update.Email
	}

	if update.FirstName != nil {
		request.FirstName = *update.FirstName
	}

	if update.LastName != nil {
		request.LastName = *update.LastName
	}

	if update.PersonalEmail != nil {
		request.PersonalEmail = update.PersonalEmail
	}

	if update.StartDate != nil {
		request.StartDate = update.StartDate
	}

	if update.EndDate != nil {
		request.EndDate = update.EndDate
	}

	if update.TemplateID != nil {
		request.TemplateID = update.TemplateID
	}

	if update.JobTitle != nil {
		request.JobTitle = update.JobTitle
	}

	if update.DepartmentID != nil {
		request.DepartmentID = update.DepartmentID
	}

	if update.ManagerID != nil {
		request.ManagerID = update.ManagerID
	}

	if update.Location != nil {
		request.Location = update.Location
	}

	if update.Metadata != nil {
		request.Metadata = update.Metadata
	}

	if update.TasksTotal != nil {
		request.TasksTotal = *update.TasksTotal
	}

	if update.TasksCompleted != nil {
		request.TasksCompleted = *update.TasksCompleted
	}

	request.UpdatedAt = time.Now().UTC()

	err = r.store.write(requestsCollection, request.ID, request)
	if err != nil {
		return nil, err
	}

	return request, nil
}

func (r *RequestRepository) Transition(_ context.Context, orgID, id string, transition persistence.RequestTransition) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	request, err := r.getLocked(orgID, id)
	if err != nil {
		return false, err
	}

	// Guard: the transition only applies from an allowed current status.
	if request == nil || !slices.Contains(transition.AllowedFrom, request.Status) {
		return false, nil
	}

	request.Status = transition.To

	if transition.ApprovedBy != nil {
		request.ApprovedBy = transition.ApprovedBy
	}

	if transition.ApprovedAt != nil {
		request.ApprovedAt = transition.ApprovedAt
	}

	if transition.RejectionReason != nil {
		request.RejectionReason = transition.RejectionReason
	}

	request.UpdatedAt = time.Now().UTC()

	err = r.store.write(requestsCollection, request.ID, request)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *RequestRepository) CountByStatus(_ context.Context, orgID string) (map[models.RequestStatus]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	counts := make(map[models.RequestStatus]int, len(models.RequestStatuses))
	for _, status := range models.RequestStatuses {
		counts[status] = 0
	}

	all, err := r.allLocked(orgID)
	if err != nil {
		return nil, err
	}

	for _, request := range all {
		counts[request.Status]++
	}

	return counts, nil
}

func (r *RequestRepository) ActiveOnboardings(_ context.Context, orgID string) ([]*models.LifecycleRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.allLocked(orgID)
	if err != nil {
		return nil, err
	}

	active := make([]*models.LifecycleRequest, 0)

	for _, request := range all {
		if request.RequestType != models.RequestTypeOnboard {
			continue
		}

		if request.Status == models.RequestStatusApproved || request.Status == models.RequestStatusInProgress {
			active = append(active, request)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		left, right := active[i].StartDate, active[j].StartDate
		if left == nil {
			return false
		}

		if right == nil {
			return true
		}

		return left.Before(*right)
	})

	return active, nil
}

// paginate slices a window out of items, clamping out-of-range offsets.
func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}

	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
