package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskpilot.app/server/internal/http/dto"
	"taskpilot.app/server/internal/http/middleware"
	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/service"
	"taskpilot.app/server/internal/store"
)

type TaskHandler struct {
	taskService service.TaskService
}

func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	status := c.Query("status")
	if status != "" && status != "active" && status != "completed" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be 'active' or 'completed'"})
		return
	}

	tasks, err := h.taskService.List(ctx, user.ID, status)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": dto.ToTaskResponses(tasks)})
}

func (h *TaskHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.Create(ctx, user.ID, model.TaskCreate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, model.ErrEmptyTitle) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}
		slog.ErrorContext(ctx, "failed to create task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskResponse(task))
}

func (h *TaskHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	task, err := h.taskService.Get(ctx, user.ID, taskID)
	if err != nil {
		h.respondTaskError(c, err, "failed to load task")
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskResponse(task))
}

func (h *TaskHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.Update(ctx, user.ID, taskID, model.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, model.ErrEmptyTitle) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
			return
		}
		h.respondTaskError(c, err, "failed to update task")
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskResponse(task))
}

func (h *TaskHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	task, err := h.taskService.SetCompleted(ctx, user.ID, taskID, true)
	if err != nil {
		h.respondTaskError(c, err, "failed to complete task")
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskResponse(task))
}

func (h *TaskHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	if err := h.taskService.Delete(ctx, user.ID, taskID); err != nil {
		h.respondTaskError(c, err, "failed to delete task")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) respondTaskError(c *gin.Context, err error, msg string) {
	ctx := c.Request.Context()
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	slog.ErrorContext(ctx, msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func taskIDParam(c *gin.Context) (int64, bool) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return taskID, true
}
