package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/veldt/genforge/internal/api/shared"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/platform/logger"
	"github.com/veldt/genforge/internal/service"
	"github.com/veldt/genforge/internal/store"
)

// TaskHandler handles generation task HTTP requests
type TaskHandler struct {
	taskService service.TaskService
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks requests.
// The task is accepted into the pending state; processing and charging
// happen asynchronously, so a 202 response carries no charge yet.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	request, err := domain.NewGenerationRequest(
		userID,
		domain.WorkType(req.Type),
		req.Params,
		domain.CostParams{
			Width:      req.CostParams.Width,
			Height:     req.CostParams.Height,
			Steps:      req.CostParams.Steps,
			Iterations: req.CostParams.Iterations,
		},
	)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), request)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("task accepted",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", userID.String()),
		slog.String("work_type", string(task.Request.Type)))

	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(task))
}

// GetTask handles GET /api/tasks/{id} requests.
// Tasks belonging to other users are reported as not found.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.GetTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if task.UserID != userID {
		log.Warn("task ownership mismatch",
			slog.String("task_id", taskID.String()),
			slog.String("user_id", userID.String()))
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /api/tasks requests.
// Supports optional status, limit, and offset query parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	filter := store.TaskFilter{Limit: 50}

	if status := r.URL.Query().Get("status"); status != "" {
		if !domain.IsValidTaskStatus(domain.TaskStatus(status)) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
			return
		}
		filter.Status = domain.TaskStatus(status)
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 200 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = offset
	}

	tasks, err := h.taskService.ListTasks(r.Context(), userID, filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	response := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, task := range tasks {
		response.Tasks = append(response.Tasks, taskToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// StartTask handles POST /api/tasks/{id}/start requests.
// It claims the task, charges the user, and submits the job. A task
// already claimed reports a conflict; a balance too low to cover the
// cost reports payment required and leaves the task pending.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := h.requireOwnedTask(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.StartProcessing(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("task processing started",
		slog.String("task_id", taskID.String()),
		slog.String("user_id", userID.String()))

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// CancelTask handles POST /api/tasks/{id}/cancel requests.
// Only pending tasks can be cancelled; nothing was charged for them.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := h.requireOwnedTask(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.CancelTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("task cancelled",
		slog.String("task_id", taskID.String()),
		slog.String("user_id", userID.String()))

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// requireOwnedTask extracts the user and path task ID and verifies the
// task belongs to the caller, writing the error response on failure.
func (h *TaskHandler) requireOwnedTask(
	w http.ResponseWriter,
	r *http.Request,
) (userID, taskID uuid.UUID, ok bool) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	uid, found := getUserIDFromContext(r)
	if !found {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	tid, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.GetTask(r.Context(), tid)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if task.UserID != uid {
		log.Warn("task ownership mismatch",
			slog.String("task_id", tid.String()),
			slog.String("user_id", uid.String()))
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	return uid, tid, true
}
