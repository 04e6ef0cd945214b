package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"taskpilot.app/server/core/db"
	"taskpilot.app/server/internal/model"
)

type sessionStore struct {
	q db.Querier
}

func newSessionStore(q db.Querier) SessionStore {
	return &sessionStore{q: q}
}

func (s *sessionStore) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	row := s.q.QueryRow(ctx,
		`SELECT id, user_id, token, created_at, expires_at
		 FROM sessions WHERE token = $1`, token)

	var sess model.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) Delete(ctx context.Context, id int64) error {
	_, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *sessionStore) DeleteExpired(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	return err
}
