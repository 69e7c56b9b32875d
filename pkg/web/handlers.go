// Package web provides HTTP handlers and REST API endpoints for lifecycle
// requests and tasks.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence"
	"github.com/helioshq/helios/pkg/services"
)

// CallerHeader carries the acting user's id. Authentication itself happens
// upstream; by the time a request reaches this API the header is trusted.
const CallerHeader = "X-User-Id"

type APIHandlers struct {
	requestService *services.Requests
	taskService    *services.Tasks
	validator      *validator.Validate
}

func NewAPIHandlers(
	requestService *services.Requests,
	taskService *services.Tasks,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		requestService: requestService,
		taskService:    taskService,
		validator:      validator,
	}
}

func (h *APIHandlers) caller(c fiber.Ctx) string {
	return strings.TrimSpace(c.Get(CallerHeader))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.requestService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Helios API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Helios API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Requests

func (h *APIHandlers) CreateRequest(c fiber.Ctx) error {
	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	var body CreateRequestBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.requestService.Create(c.Context(), services.CreateRequestRequest{
		RequestType:   models.RequestType(body.RequestType),
		Email:         body.Email,
		FirstName:     body.FirstName,
		LastName:      body.LastName,
		PersonalEmail: body.PersonalEmail,
		UserID:        body.UserID,
		StartDate:     body.StartDate,
		EndDate:       body.EndDate,
		TemplateID:    body.TemplateID,
		JobTitle:      body.JobTitle,
		DepartmentID:  body.DepartmentID,
		ManagerID:     body.ManagerID,
		Location:      body.Location,
		Metadata:      body.Metadata,
		RequestedBy:   caller,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetRequests(c fiber.Ctx) error {
	req, err := h.parseListRequestsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.requestService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"requests":    result.Requests,
		"total_count": result.TotalCount,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) parseListRequestsRequest(c fiber.Ctx) (*services.ListRequestsRequest, error) {
	req := &services.ListRequestsRequest{}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return nil, err
	}

	req.Limit = limit
	req.Offset = offset

	if statusStr := c.Query("status"); statusStr != "" {
		for _, s := range strings.Split(statusStr, ",") {
			req.Statuses = append(req.Statuses, models.RequestStatus(strings.TrimSpace(s)))
		}
	}

	if typeStr := c.Query("request_type"); typeStr != "" {
		requestType := models.RequestType(typeStr)
		req.RequestType = &requestType
	}

	req.RequestedBy = c.Query("requested_by")
	req.ManagerID = c.Query("manager_id")
	req.Search = c.Query("search")

	if fromStr := c.Query("start_date_from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, err
		}

		req.StartDateFrom = &from
	}

	if toStr := c.Query("start_date_to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, err
		}

		req.StartDateTo = &to
	}

	return req, nil
}

func (h *APIHandlers) GetRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	details, err := h.requestService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) UpdateRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	var body UpdateRequestBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.requestService.Update(c.Context(), id, persistence.RequestUpdate{
		Email:         body.Email,
		FirstName:     body.FirstName,
		LastName:      body.LastName,
		PersonalEmail: body.PersonalEmail,
		StartDate:     body.StartDate,
		EndDate:       body.EndDate,
		TemplateID:    body.TemplateID,
		JobTitle:      body.JobTitle,
		DepartmentID:  body.DepartmentID,
		ManagerID:     body.ManagerID,
		Location:      body.Location,
		Metadata:      body.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ApproveRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	approved, err := h.requestService.Approve(c.Context(), id, caller)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(approved)
}

func (h *APIHandlers) RejectRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	var body RejectRequestBody
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	rejected, err := h.requestService.Reject(c.Context(), id, caller, body.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rejected)
}

func (h *APIHandlers) CancelRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	cancelled, err := h.requestService.Cancel(c.Context(), id, caller)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cancelled)
}

func (h *APIHandlers) GetRequestCounts(c fiber.Ctx) error {
	counts, err := h.requestService.Counts(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(counts)
}

func (h *APIHandlers) GetActiveOnboardings(c fiber.Ctx) error {
	active, err := h.requestService.ActiveOnboardings(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"requests": active})
}

// Tasks

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var body CreateTaskBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.taskService.Create(c.Context(), body.toServiceRequest())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) CreateTasks(c fiber.Ctx) error {
	var body CreateTasksBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	reqs := make([]services.CreateTaskRequest, 0, len(body.Tasks))
	for _, task := range body.Tasks {
		reqs = append(reqs, task.toServiceRequest())
	}

	created, err := h.taskService.CreateBatch(c.Context(), reqs)
	if err != nil && len(created) == 0 {
		return handleServiceError(c, err)
	}

	response := fiber.Map{"tasks": created, "created_count": len(created)}
	if err != nil {
		// Partial success: report what failed alongside what landed.
		response["errors"] = strings.Split(err.Error(), "\n")
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	req, err := h.parseListTasksRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.taskService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       result.Tasks,
		"total_count": result.TotalCount,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) parseListTasksRequest(c fiber.Ctx) (*services.ListTasksRequest, error) {
	req := &services.ListTasksRequest{}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return nil, err
	}

	req.Limit = limit
	req.Offset = offset

	req.RequestID = c.Query("request_id")
	req.UserID = c.Query("user_id")
	req.AssigneeID = c.Query("assignee_id")
	req.Category = c.Query("category")

	if typesStr := c.Query("assignee_type"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			req.AssigneeTypes = append(req.AssigneeTypes, models.AssigneeType(strings.TrimSpace(t)))
		}
	}

	if statusStr := c.Query("status"); statusStr != "" {
		for _, s := range strings.Split(statusStr, ",") {
			req.Statuses = append(req.Statuses, models.TaskStatus(strings.TrimSpace(s)))
		}
	}

	if overdueStr := c.Query("overdue_only"); overdueStr != "" {
		overdue, err := strconv.ParseBool(overdueStr)
		if err != nil {
			return nil, err
		}

		req.OverdueOnly = overdue
	}

	if fromStr := c.Query("due_from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, err
		}

		req.DueFrom = &from
	}

	if toStr := c.Query("due_to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, err
		}

		req.DueTo = &to
	}

	return req, nil
}

func (h *APIHandlers) GetMyTasks(c fiber.Ctx) error {
	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	var statuses []models.TaskStatus

	if statusStr := c.Query("status"); statusStr != "" {
		for _, s := range strings.Split(statusStr, ",") {
			statuses = append(statuses, models.TaskStatus(strings.TrimSpace(s)))
		}
	}

	result, err := h.taskService.ListMine(c.Context(), caller, statuses, limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       result.Tasks,
		"total_count": result.TotalCount,
	})
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	task, err := h.taskService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	var body CompleteTaskBody
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	task, err := h.taskService.Complete(c.Context(), id, caller, body.Notes)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) SkipTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	caller := h.caller(c)
	if caller == "" {
		return unauthorized(c, "X-User-Id header is required")
	}

	var body SkipTaskBody
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	task, err := h.taskService.Skip(c.Context(), id, caller, body.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) StartTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	task, err := h.taskService.Start(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if task == nil {
		// Not currently pending: a no-op, not an error.
		return c.Status(fiber.StatusNoContent).Send(nil)
	}

	return c.JSON(task)
}

func (h *APIHandlers) GetOverdueTasks(c fiber.Ctx) error {
	tasks, err := h.taskService.Overdue(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) GetTaskCounts(c fiber.Ctx) error {
	counts, err := h.taskService.Counts(c.Context(), c.Query("user_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(counts)
}

func (h *APIHandlers) DeleteRequestTasks(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	removed, err := h.taskService.DeleteForRequest(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"deleted_count": removed})
}

func parsePagination(c fiber.Ctx) (int, int, error) {
	limit := 0
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}

		limit = parsed
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}

		offset = parsed
	}

	return limit, offset, nil
}
