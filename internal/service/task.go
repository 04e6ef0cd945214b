package service

import (
	"context"
	"fmt"
	"strings"

	"taskpilot.app/server/common/id"
	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/store"
)

// TaskService owns task CRUD. Both the REST handlers and the agent
// tool registry go through it, so ownership scoping and validation
// are identical on both surfaces. The interface is a superset of
// agent.TaskService; the tools see no other path to task data.
type TaskService interface {
	Create(ctx context.Context, userID int64, in model.TaskCreate) (*model.Task, error)
	Get(ctx context.Context, userID, taskID int64) (*model.Task, error)
	Update(ctx context.Context, userID, taskID int64, in model.TaskUpdate) (*model.Task, error)
	SetCompleted(ctx context.Context, userID, taskID int64, completed bool) (*model.Task, error)
	Delete(ctx context.Context, userID, taskID int64) error
	List(ctx context.Context, userID int64, status string) ([]model.Task, error)
}

type taskService struct {
	taskStore store.TaskStore
}

func NewTaskService(taskStore store.TaskStore) TaskService {
	return &taskService{taskStore: taskStore}
}

func (s *taskService) Create(ctx context.Context, userID int64, in model.TaskCreate) (*model.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.ErrEmptyTitle
	}

	task := &model.Task{
		ID:          id.New(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
	}
	if err := s.taskStore.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return task, nil
}

func (s *taskService) Get(ctx context.Context, userID, taskID int64) (*model.Task, error) {
	return s.taskStore.GetByID(ctx, userID, taskID)
}

func (s *taskService) Update(ctx context.Context, userID, taskID int64, in model.TaskUpdate) (*model.Task, error) {
	task, err := s.taskStore.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, model.ErrEmptyTitle
		}
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = in.Description
	}

	if err := s.taskStore.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskService) SetCompleted(ctx context.Context, userID, taskID int64, completed bool) (*model.Task, error) {
	return s.taskStore.SetCompleted(ctx, userID, taskID, completed)
}

func (s *taskService) Delete(ctx context.Context, userID, taskID int64) error {
	return s.taskStore.Delete(ctx, userID, taskID)
}

func (s *taskService) List(ctx context.Context, userID int64, status string) ([]model.Task, error) {
	tasks, err := s.taskStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch status {
	case "completed":
		tasks = filterByCompletion(tasks, true)
	case "active":
		tasks = filterByCompletion(tasks, false)
	}
	return tasks, nil
}

func filterByCompletion(tasks []model.Task, completed bool) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if t.Completed == completed {
			out = append(out, t)
		}
	}
	return out
}
