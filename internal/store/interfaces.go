package store

import (
	"context"
	"errors"

	"taskpilot.app/server/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write loses a uniqueness race, such
// as two turns claiming the same sequence number in one conversation.
var ErrConflict = errors.New("conflict")

// UserStore defines the contract for user data access. Users are
// provisioned externally; this layer only reads them.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionStore defines the contract for session data access. Tokens
// are issued externally; this layer validates and expires them.
type SessionStore interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
	Delete(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context) error
}

// ConversationStore defines the contract for conversation data access
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	// GetByIDForUpdate locks the conversation row for the duration of
	// the surrounding transaction, serializing concurrent turns.
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Conversation, error)
	GetActiveByUser(ctx context.Context, userID int64) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	SetTitle(ctx context.Context, id int64, title string) error
	DeactivateByUser(ctx context.Context, userID int64) error
	ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error)
}

// MessageStore defines the contract for transcript data access.
// Append assigns the next sequence number; the unique index on
// (conversation_id, seq) surfaces lost races as ErrConflict.
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	MaxSeq(ctx context.Context, conversationID int64) (int64, error)
}

// TaskStore defines the contract for task data access. All reads and
// writes are scoped to a user; a task belonging to someone else is
// indistinguishable from a missing one.
type TaskStore interface {
	GetByID(ctx context.Context, userID, id int64) (*model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	SetCompleted(ctx context.Context, userID, id int64, completed bool) (*model.Task, error)
	Delete(ctx context.Context, userID, id int64) error
	ListByUser(ctx context.Context, userID int64) ([]model.Task, error)
}
