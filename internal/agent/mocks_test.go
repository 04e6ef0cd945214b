package agent_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/internal/agent"
	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/service"
	"taskpilot.app/server/internal/store"
)

// mockAgentClient returns scripted responses in order. Requests are
// recorded for assertions.
type mockAgentClient struct {
	responses []*llm.AgentResponse
	errs      []error
	requests  []llm.AgentRequest
	calls     int
}

func (m *mockAgentClient) ChatWithTools(_ context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	m.requests = append(m.requests, req)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	// Script exhausted: keep answering with a plain reply
	return &llm.AgentResponse{Content: "done", FinishReason: "stop"}, nil
}

func (m *mockAgentClient) Model() string { return "mock-model" }

type mockTaskStore struct {
	createFn       func(ctx context.Context, task *model.Task) error
	getByIDFn      func(ctx context.Context, userID, id int64) (*model.Task, error)
	updateFn       func(ctx context.Context, task *model.Task) error
	setCompletedFn func(ctx context.Context, userID, id int64, completed bool) (*model.Task, error)
	deleteFn       func(ctx context.Context, userID, id int64) error
	listByUserFn   func(ctx context.Context, userID int64) ([]model.Task, error)
}

func (m *mockTaskStore) Create(ctx context.Context, task *model.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, task)
	}
	return nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, userID, id int64) (*model.Task, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockTaskStore) Update(ctx context.Context, task *model.Task) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, task)
	}
	return nil
}

func (m *mockTaskStore) SetCompleted(ctx context.Context, userID, id int64, completed bool) (*model.Task, error) {
	if m.setCompletedFn != nil {
		return m.setCompletedFn(ctx, userID, id, completed)
	}
	return nil, store.ErrNotFound
}

func (m *mockTaskStore) Delete(ctx context.Context, userID, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockTaskStore) ListByUser(ctx context.Context, userID int64) ([]model.Task, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

// memTaskStore is an in-memory TaskStore for multi-step scenarios.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[int64]*model.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[int64]*model.Task)}
}

func (m *memTaskStore) Create(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memTaskStore) GetByID(_ context.Context, userID, id int64) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) Update(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[task.ID]
	if !ok || t.UserID != task.UserID {
		return store.ErrNotFound
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memTaskStore) SetCompleted(_ context.Context, userID, id int64, completed bool) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	t.Completed = completed
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTaskStore) ListByUser(_ context.Context, userID int64) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var errDown = errors.New("database unavailable")

// newTaskTools wires the registry through the real task service, the
// same path production uses, over the given store.
func newTaskTools(tasks store.TaskStore) *agent.TaskTools {
	return agent.NewTaskTools(service.NewTaskService(tasks))
}
