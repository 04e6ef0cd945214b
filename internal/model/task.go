package model

import (
	"errors"
	"time"
)

// ErrEmptyTitle rejects task writes with a blank title. Declared here
// so both task surfaces (REST handlers and agent tools) map the same
// validation failure.
var ErrEmptyTitle = errors.New("task title is required")

type Task struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskCreate holds fields for creating a task.
type TaskCreate struct {
	Title       string
	Description *string
}

// TaskUpdate holds partial fields for editing a task. Nil means leave
// unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
}
