package file

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence"
)

const tasksCollection = "tasks"

// TaskRepository handles lifecycle task file operations.
type TaskRepository struct {
	store *store
}

func (r *TaskRepository) Create(_ context.Context, task *models.LifecycleTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(tasksCollection, task.ID, task)
}

func (r *TaskRepository) GetByID(_ context.Context, orgID, id string) (*models.LifecycleTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(orgID, id)
}

func (r *TaskRepository) getLocked(orgID, id string) (*models.LifecycleTask, error) {
	var task models.LifecycleTask

	found, err := r.store.read(tasksCollection, id, &task)
	if err != nil {
		return nil, err
	}

	if !found || task.OrganizationID != orgID {
		return nil, nil
	}

	return &task, nil
}

func (r *TaskRepository) allLocked(orgID string) ([]*models.LifecycleTask, error) {
	ids, err := r.store.ids(tasksCollection)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.LifecycleTask, 0, len(ids))

	for _, id := range ids {
		task, err := r.getLocked(orgID, id)
		if err != nil {
			return nil, err
		}

		if task != nil {
			tasks = append(tasks, task)
		}
	}

	return tasks, nil
}

// sortTasks orders by due date ascending with nulls last, tiebreak
// sequence order, matching the SQL backend.
func sortTasks(tasks []*models.LifecycleTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		left, right := tasks[i].DueDate, tasks[j].DueDate

		switch {
		case left == nil && right == nil:
			return tasks[i].SequenceOrder < tasks[j].SequenceOrder
		case left == nil:
			return false
		case right == nil:
			return true
		case left.Equal(*right):
			return tasks[i].SequenceOrder < tasks[j].SequenceOrder
		default:
			return left.Before(*right)
		}
	})
}

func (r *TaskRepository) List(_ context.Context, orgID string, filter persistence.TaskFilter) ([]*models.LifecycleTask, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.allLocked(orgID)
	if err != nil {
		return nil, 0, err
	}

	filtered := make([]*models.LifecycleTask, 0, len(all))

	for _, task := range all {
		if matchesTaskFilter(task, filter) {
			filtered = append(filtered, task)
		}
	}

	sortTasks(filtered)

	total := int64(len(filtered))

	return paginate(filtered, filter.Offset, filter.Limit), total, nil
}

func matchesTaskFilter(task *models.LifecycleTask, filter persistence.TaskFilter) bool {
	if filter.RequestID != "" && (task.RequestID == nil || *task.RequestID != filter.RequestID) {
		return false
	}

	if filter.UserID != "" && (task.UserID == nil || *task.UserID != filter.UserID) {
		return false
	}

	if len(filter.AssigneeTypes) > 0 && !slices.Contains(filter.AssigneeTypes, task.AssigneeType) {
		return false
	}

	if filter.AssigneeID != "" && (task.AssigneeID == nil || *task.AssigneeID != filter.AssigneeID) {
		return false
	}

	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, task.Status) {
		return false
	}

	if filter.Category != "" && (task.Category == nil || *task.Category != filter.Category) {
		return false
	}

	if filter.OverdueOnly {
		if task.Status != models.TaskStatusPending || task.DueDate == nil || !task.DueDate.Before(filter.Now) {
			return false
		}
	}

	if filter.DueFrom != nil && (task.DueDate == nil || task.DueDate.Before(*filter.DueFrom)) {
		return false
	}

	if filter.DueTo != nil && (task.DueDate == nil || task.DueDate.After(*filter.DueTo)) {
		return false
	}

	return true
}

func (r *TaskRepository) ListForUser(_ context.Context, orgID, userID string, elevated bool, statuses []models.TaskStatus, limit, offset int) ([]*models.LifecycleTask, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.allLocked(orgID)
	if err != nil {
		return nil, 0, err
	}

	requests := &RequestRepository{store: r.store}
	visible := make([]*models.LifecycleTask, 0)

	for _, task := range all {
		if len(statuses) > 0 && !slices.Contains(statuses, task.Status) {
			continue
		}

		ok, err := r.visibleToLocked(requests, task, orgID, userID, elevated)
		if err != nil {
			return nil, 0, err
		}

		if ok {
			visible = append(visible, task)
		}
	}

	sortTasks(visible)

	total := int64(len(visible))

	return paginate(visible, offset, limit), total, nil
}

func (r *TaskRepository) visibleToLocked(requests *RequestRepository, task *models.LifecycleTask, orgID, userID string, elevated bool) (bool, error) {
	if task.AssigneeID != nil && *task.AssigneeID == userID {
		return true, nil
	}

	if elevated && (task.AssigneeType == models.AssigneeTypeIT || task.AssigneeType == models.AssigneeTypeHR) {
		return true, nil
	}

	if task.AssigneeType == models.AssigneeTypeUser && task.UserID != nil && *task.UserID == userID {
		return true, nil
	}

	if task.AssigneeType == models.AssigneeTypeManager && task.RequestID != nil {
		request, err := requests.getLocked(orgID, *task.RequestID)
		if err != nil {
			return false, err
		}

		if request != nil && request.ManagerID != nil && *request.ManagerID == userID {
			return true, nil
		}
	}

	return false, nil
}

func (r *TaskRepository) Complete(_ context.Context, orgID, id string, stamp persistence.CompletionStamp) (persistence.CascadeResult, error) {
	return r.finish(orgID, id, models.TaskStatusCompleted, stamp)
}

func (r *TaskRepository) Skip(_ context.Context, orgID, id string, stamp persistence.CompletionStamp) (persistence.CascadeResult, error) {
	return r.finish(orgID, id, models.TaskStatusSkipped, stamp)
}

// finish applies the guarded status write and the one-hop unblock cascade
// under the store mutex, mirroring the SQL backend's transaction.
func (r *TaskRepository) finish(orgID, id string, to models.TaskStatus, stamp persistence.CompletionStamp) (persistence.CascadeResult, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var result persistence.CascadeResult

	task, err := r.getLocked(orgID, id)
	if err != nil {
		return result, err
	}

	if task == nil || !task.Status.Actionable() {
		return result, nil
	}

	task.Status = to
	task.CompletedAt = &stamp.At
	task.CompletedBy = &stamp.By
	task.CompletionNotes = stamp.Notes
	task.UpdatedAt = stamp.At

	err = r.store.write(tasksCollection, task.ID, task)
	if err != nil {
		return result, err
	}

	all, err := r.allLocked(orgID)
	if err != nil {
		return result, err
	}

	for _, dependent := range all {
		if dependent.Status != models.TaskStatusBlocked {
			continue
		}

		if dependent.DependsOnTaskID == nil || *dependent.DependsOnTaskID != id {
			continue
		}

		dependent.Status = models.TaskStatusPending
		dependent.UpdatedAt = stamp.At

		err = r.store.write(tasksCollection, dependent.ID, dependent)
		if err != nil {
			return result, err
		}

		result.Unblocked++
	}

	result.Updated = true

	return result, nil
}

func (r *TaskRepository) Start(_ context.Context, orgID, id string, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	task, err := r.getLocked(orgID, id)
	if err != nil {
		return false, err
	}

	if task == nil || task.Status != models.TaskStatusPending {
		return false, nil
	}

	task.Status = models.TaskStatusInProgress
	task.UpdatedAt = now

	err = r.store.write(tasksCollection, task.ID, task)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *TaskRepository) Overdue(_ context.Context, orgID string, now time.Time) ([]*models.LifecycleTask, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.allLocked(orgID)
	if err != nil {
		return nil, err
	}

	overdue := make([]*models.LifecycleTask, 0)

	for _, task := range all {
		if task.Status == models.TaskStatusPending && task.DueDate != nil && task.DueDate.Before(now) {
			overdue = append(overdue, task)
		}
	}

	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(*overdue[j].DueDate)
	})

	return overdue, nil
}

func (r *TaskRepository) Counts(_ context.Context, orgID, userID string, now time.Time) (models.TaskCounts, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var counts models.TaskCounts

	all, err := r.allLocked(orgID)
	if err != nil {
		return counts, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, task := range all {
		if userID != "" {
			assigned := task.AssigneeID != nil && *task.AssigneeID == userID
			subject := task.UserID != nil && *task.UserID == userID

			if !assigned && !subject {
				continue
			}
		}

		switch task.Status {
		case models.TaskStatusPending:
			counts.Pending++

			if task.DueDate != nil && task.DueDate.Before(now) {
				counts.Overdue++
			}
		case models.TaskStatusInProgress:
			counts.InProgress++
		case models.TaskStatusCompleted:
			if task.CompletedAt != nil && !task.CompletedAt.Before(dayStart) {
				counts.CompletedToday++
			}
		}
	}

	return counts, nil
}

func (r *TaskRepository) DeleteByRequest(_ context.Context, orgID, requestID string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.allLocked(orgID)
	if err != nil {
		return 0, err
	}

	var deleted int64

	for _, task := range all {
		if task.RequestID == nil || *task.RequestID != requestID {
			continue
		}

		err = r.store.remove(tasksCollection, task.ID)
		if err != nil {
			return deleted, err
		}

		deleted++
	}

	return deleted, nil
}
