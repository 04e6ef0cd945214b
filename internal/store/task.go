package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"taskpilot.app/server/core/db"
	"taskpilot.app/server/internal/model"
)

type taskStore struct {
	q db.Querier
}

func newTaskStore(q db.Querier) TaskStore {
	return &taskStore{q: q}
}

const taskColumns = `id, user_id, title, description, completed, created_at, updated_at`

func (s *taskStore) GetByID(ctx context.Context, userID, id int64) (*model.Task, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanTask(row)
}

func (s *taskStore) Create(ctx context.Context, task *model.Task) error {
	row := s.q.QueryRow(ctx,
		`INSERT INTO tasks (id, user_id, title, description, completed)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		task.ID, task.UserID, task.Title, task.Description, task.Completed)
	return row.Scan(&task.CreatedAt, &task.UpdatedAt)
}

func (s *taskStore) Update(ctx context.Context, task *model.Task) error {
	row := s.q.QueryRow(ctx,
		`UPDATE tasks SET title = $3, description = $4, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+taskColumns,
		task.ID, task.UserID, task.Title, task.Description)

	updated, err := scanTask(row)
	if err != nil {
		return err
	}
	*task = *updated
	return nil
}

func (s *taskStore) SetCompleted(ctx context.Context, userID, id int64, completed bool) (*model.Task, error) {
	row := s.q.QueryRow(ctx,
		`UPDATE tasks SET completed = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+taskColumns,
		id, userID, completed)
	return scanTask(row)
}

func (s *taskStore) Delete(ctx context.Context, userID, id int64) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *taskStore) ListByUser(ctx context.Context, userID int64) ([]model.Task, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks WHERE user_id = $1
		 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
