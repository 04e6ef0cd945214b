package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"taskpilot.app/server/core/db"
	"taskpilot.app/server/internal/model"
)

type conversationStore struct {
	q db.Querier
}

func newConversationStore(q db.Querier) ConversationStore {
	return &conversationStore{q: q}
}

const conversationColumns = `id, user_id, title, active, created_at, updated_at`

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *conversationStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, id)
	return scanConversation(row)
}

func (s *conversationStore) GetActiveByUser(ctx context.Context, userID int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations WHERE user_id = $1 AND active
		 ORDER BY created_at DESC LIMIT 1`, userID)
	return scanConversation(row)
}

func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	row := s.q.QueryRow(ctx,
		`INSERT INTO conversations (id, user_id, title, active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		conv.ID, conv.UserID, conv.Title, conv.Active)
	return row.Scan(&conv.CreatedAt, &conv.UpdatedAt)
}

func (s *conversationStore) SetTitle(ctx context.Context, id int64, title string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`,
		id, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) DeactivateByUser(ctx context.Context, userID int64) error {
	_, err := s.q.Exec(ctx,
		`UPDATE conversations SET active = false, updated_at = now()
		 WHERE user_id = $1 AND active`, userID)
	return err
}

func (s *conversationStore) ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations WHERE user_id = $1
		 ORDER BY active DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
