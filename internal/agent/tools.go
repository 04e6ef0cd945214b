package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/common/logger"
	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/store"
)

// Tool parameter structs. The user is never a parameter: identity is
// injected by the caller, so the model cannot act on another user's
// tasks no matter what arguments it produces.

// AddTaskParams for creating a task.
type AddTaskParams struct {
	Title       string `json:"title" jsonschema:"required,description=The task title"`
	Description string `json:"description,omitempty" jsonschema:"description=Optional task description"`
}

// ListTasksParams for listing tasks.
type ListTasksParams struct {
	Status string `json:"status,omitempty" jsonschema:"enum=completed,enum=active,description=Optional filter - 'completed' or 'active'"`
}

// UpdateTaskParams for editing a task's title or description.
type UpdateTaskParams struct {
	TaskID      int64   `json:"task_id" jsonschema:"required,description=The ID of the task to update"`
	Title       *string `json:"title,omitempty" jsonschema:"description=New title"`
	Description *string `json:"description,omitempty" jsonschema:"description=New description"`
}

// CompleteTaskParams for marking a task done.
type CompleteTaskParams struct {
	TaskID int64 `json:"task_id" jsonschema:"required,description=The ID of the task to complete"`
}

// DeleteTaskParams for removing a task.
type DeleteTaskParams struct {
	TaskID int64 `json:"task_id" jsonschema:"required,description=The ID of the task to delete"`
}

// TaskService is the task operation surface the tools execute against.
// Satisfied by the service layer's TaskService, so the chat and REST
// surfaces share one set of validation and ownership rules.
type TaskService interface {
	Create(ctx context.Context, userID int64, in model.TaskCreate) (*model.Task, error)
	Update(ctx context.Context, userID, taskID int64, in model.TaskUpdate) (*model.Task, error)
	SetCompleted(ctx context.Context, userID, taskID int64, completed bool) (*model.Task, error)
	Delete(ctx context.Context, userID, taskID int64) error
	List(ctx context.Context, userID int64, status string) ([]model.Task, error)
}

// TaskTools exposes task CRUD operations to the reasoning loop.
// Every execution is scoped to the calling user; a task owned by
// someone else produces the same observation as a missing task.
type TaskTools struct {
	tasks       TaskService
	definitions []llm.Tool
}

// NewTaskTools creates the tool registry for the agent loop.
func NewTaskTools(tasks TaskService) *TaskTools {
	t := &TaskTools{
		tasks: tasks,
	}

	t.definitions = []llm.Tool{
		{
			Name:        "add_task",
			Description: "Add a new task. Returns a success message with the new task ID.",
			Parameters:  llm.GenerateSchemaFrom(AddTaskParams{}),
		},
		{
			Name:        "list_tasks",
			Description: "List the user's tasks, optionally filtered by status ('completed' or 'active'). Returns a formatted list.",
			Parameters:  llm.GenerateSchemaFrom(ListTasksParams{}),
		},
		{
			Name:        "update_task",
			Description: "Update a task's title or description. Returns a success message or an explanation of why the task could not be updated.",
			Parameters:  llm.GenerateSchemaFrom(UpdateTaskParams{}),
		},
		{
			Name:        "complete_task",
			Description: "Mark a task as completed. Returns a success message or an explanation of why the task could not be completed.",
			Parameters:  llm.GenerateSchemaFrom(CompleteTaskParams{}),
		},
		{
			Name:        "delete_task",
			Description: "Delete a task. Returns a success message or an explanation of why the task could not be deleted.",
			Parameters:  llm.GenerateSchemaFrom(DeleteTaskParams{}),
		},
	}

	return t
}

// Definitions returns tool definitions for the LLM.
func (t *TaskTools) Definitions() []llm.Tool {
	return t.definitions
}

// Execute runs a tool by name for the given user and returns the
// observation text. Failures the model can act on (bad arguments,
// missing task, unknown tool) come back as observations with ok=false;
// only infrastructure faults are returned as errors.
func (t *TaskTools) Execute(ctx context.Context, userID int64, name, arguments string) (string, bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ToolName: &name})

	slog.DebugContext(ctx, "executing tool", "tool", name)

	switch name {
	case "add_task":
		return t.executeAddTask(ctx, userID, arguments)
	case "list_tasks":
		return t.executeListTasks(ctx, userID, arguments)
	case "update_task":
		return t.executeUpdateTask(ctx, userID, arguments)
	case "complete_task":
		return t.executeCompleteTask(ctx, userID, arguments)
	case "delete_task":
		return t.executeDeleteTask(ctx, userID, arguments)
	default:
		return fmt.Sprintf("Unknown tool: %s", name), false, nil
	}
}

func (t *TaskTools) executeAddTask(ctx context.Context, userID int64, arguments string) (string, bool, error) {
	params, err := llm.ParseToolArguments[AddTaskParams](arguments)
	if err != nil {
		return fmt.Sprintf("Error creating task: %s", err), false, nil
	}

	in := model.TaskCreate{Title: params.Title}
	if params.Description != "" {
		in.Description = &params.Description
	}

	task, err := t.tasks.Create(ctx, userID, in)
	if err != nil {
		if errors.Is(err, model.ErrEmptyTitle) {
			return "Error creating task: title is required", false, nil
		}
		return "", false, fmt.Errorf("create task: %w", err)
	}

	return fmt.Sprintf("Task created successfully with ID: %d", task.ID), true, nil
}

func (t *TaskTools) executeListTasks(ctx context.Context, userID int64, arguments string) (string, bool, error) {
	params, err := llm.ParseToolArguments[ListTasksParams](arguments)
	if err != nil {
		return fmt.Sprintf("Error listing tasks: %s", err), false, nil
	}

	tasks, err := t.tasks.List(ctx, userID, params.Status)
	if err != nil {
		return "", false, fmt.Errorf("list tasks: %w", err)
	}

	if len(tasks) == 0 {
		return "No tasks found.", true, nil
	}

	var b strings.Builder
	for i, task := range tasks {
		if i > 0 {
			b.WriteString("\n")
		}
		icon := "[ ]"
		if task.Completed {
			icon = "[x]"
		}
		fmt.Fprintf(&b, "%d. %s **%s**", task.ID, icon, task.Title)
		if task.Description != nil && *task.Description != "" {
			fmt.Fprintf(&b, " - %s", *task.Description)
		}
	}
	return b.String(), true, nil
}

func (t *TaskTools) executeUpdateTask(ctx context.Context, userID int64, arguments string) (string, bool, error) {
	params, err := llm.ParseToolArguments[UpdateTaskParams](arguments)
	if err != nil {
		return fmt.Sprintf("Error updating task: %s", err), false, nil
	}

	in := model.TaskUpdate{
		Title:       params.Title,
		Description: params.Description,
	}

	if _, err := t.tasks.Update(ctx, userID, params.TaskID, in); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Task %d not found or access denied.", params.TaskID), false, nil
		}
		if errors.Is(err, model.ErrEmptyTitle) {
			return "Error updating task: title is required", false, nil
		}
		return "", false, fmt.Errorf("update task: %w", err)
	}

	return fmt.Sprintf("Task %d updated successfully.", params.TaskID), true, nil
}

func (t *TaskTools) executeCompleteTask(ctx context.Context, userID int64, arguments string) (string, bool, error) {
	params, err := llm.ParseToolArguments[CompleteTaskParams](arguments)
	if err != nil {
		return fmt.Sprintf("Error completing task: %s", err), false, nil
	}

	if _, err := t.tasks.SetCompleted(ctx, userID, params.TaskID, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Task %d not found or access denied.", params.TaskID), false, nil
		}
		return "", false, fmt.Errorf("complete task: %w", err)
	}

	return fmt.Sprintf("Task %d marked as completed.", params.TaskID), true, nil
}

func (t *TaskTools) executeDeleteTask(ctx context.Context, userID int64, arguments string) (string, bool, error) {
	params, err := llm.ParseToolArguments[DeleteTaskParams](arguments)
	if err != nil {
		return fmt.Sprintf("Error deleting task: %s", err), false, nil
	}

	if err := t.tasks.Delete(ctx, userID, params.TaskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Task %d not found or access denied.", params.TaskID), false, nil
		}
		return "", false, fmt.Errorf("delete task: %w", err)
	}

	return fmt.Sprintf("Task %d deleted successfully.", params.TaskID), true, nil
}
