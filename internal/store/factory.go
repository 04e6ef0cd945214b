package store

import (
	"taskpilot.app/server/core/db"
)

type Stores struct {
	q db.Querier
}

// NewStores builds a store set over the given querier. Pass the pool
// for standalone operations or a transaction for atomic ones.
func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.q)
}

func (s *Stores) Sessions() SessionStore {
	return newSessionStore(s.q)
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.q)
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.q)
}

func (s *Stores) Tasks() TaskStore {
	return newTaskStore(s.q)
}
