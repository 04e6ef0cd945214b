package service

import (
	"taskpilot.app/server/internal/store"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	runner   TurnRunner
}

func NewServices(stores *store.Stores, txRunner TxRunner, runner TurnRunner) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		runner:   runner,
	}
}

func (s *Services) Auth() AuthService {
	return NewAuthService(s.stores.Users(), s.stores.Sessions())
}

func (s *Services) Tasks() TaskService {
	return NewTaskService(s.stores.Tasks())
}

func (s *Services) Chat() ChatService {
	return NewChatService(s.stores.Conversations(), s.stores.Messages(), s.txRunner, s.runner)
}
