package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"taskpilot.app/server/core/db"
	"taskpilot.app/server/internal/model"
)

const uniqueViolation = "23505"

type messageStore struct {
	q db.Querier
}

func newMessageStore(q db.Querier) MessageStore {
	return &messageStore{q: q}
}

// Append inserts the message at the next free sequence number. The
// unique index on (conversation_id, seq) turns a lost race into
// ErrConflict rather than a duplicate position.
func (s *messageStore) Append(ctx context.Context, msg *model.Message) error {
	row := s.q.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, seq, role, content, tool_name, tool_args, tool_result, tool_failed)
		 SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7, $8
		 FROM messages WHERE conversation_id = $2
		 RETURNING seq, created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
		msg.ToolName, msg.ToolArgs, msg.ToolResult, msg.ToolFailed)

	err := row.Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *messageStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, conversation_id, seq, role, content, tool_name, tool_args, tool_result, tool_failed, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content,
			&m.ToolName, &m.ToolArgs, &m.ToolResult, &m.ToolFailed, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *messageStore) MaxSeq(ctx context.Context, conversationID int64) (int64, error) {
	var seq int64
	row := s.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = $1`,
		conversationID)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return seq, nil
}
