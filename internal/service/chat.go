package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taskpilot.app/server/common/id"
	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/common/logger"
	"taskpilot.app/server/internal/agent"
	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/store"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("concurrency conflict")
	ErrInvariantViolation = errors.New("conversation transcript corrupted")
)

// A turn that loses the sequence race is retried once from a fresh
// reconstruction before surfacing ErrConflict.
const maxTurnAttempts = 2

const conversationTitleLen = 60

// TurnRunner runs one reasoning turn over a reconstructed transcript.
// Satisfied by *agent.Loop.
type TurnRunner interface {
	Run(ctx context.Context, userID int64, history []llm.Message) (*agent.Result, error)
}

// ChatRequest is one user message aimed at a conversation. A nil
// ConversationID targets the user's active conversation, creating one
// if none exists.
type ChatRequest struct {
	UserID         int64
	ConversationID *int64
	Message        string
}

// ChatResponse carries the assistant's reply for a completed turn.
type ChatResponse struct {
	ConversationID int64  `json:"conversation_id"`
	Reply          string `json:"reply"`
	Seq            int64  `json:"seq"`
	ToolCalls      int    `json:"tool_calls"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// ChatService owns the request-scoped turn lifecycle: resolve the
// conversation, reconstruct the transcript from storage, run the
// reasoning loop, and persist the whole turn atomically. The service
// keeps no state between calls.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	StartConversation(ctx context.Context, userID int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	GetMessages(ctx context.Context, userID, conversationID int64) ([]model.Message, error)
}

type chatService struct {
	convStore store.ConversationStore
	msgStore  store.MessageStore
	txRunner  TxRunner
	runner    TurnRunner
}

func NewChatService(
	convStore store.ConversationStore,
	msgStore store.MessageStore,
	txRunner TxRunner,
	runner TurnRunner,
) ChatService {
	return &chatService{
		convStore: convStore,
		msgStore:  msgStore,
		txRunner:  txRunner,
		runner:    runner,
	}
}

func (s *chatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conv.ID,
		UserID:         &req.UserID,
	})

	sc := logger.StartSpan(ctx, "chat.turn")
	defer sc.End()
	ctx = sc.Context()

	var resp *ChatResponse
	for attempt := 1; attempt <= maxTurnAttempts; attempt++ {
		resp, err = s.runTurn(ctx, conv, req)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			sc.RecordError(err)
			return nil, err
		}

		slog.WarnContext(ctx, "turn lost sequence race, retrying",
			"attempt", attempt)
	}

	err = fmt.Errorf("turn persistence: %w", ErrConflict)
	sc.RecordError(err)
	return nil, err
}

// runTurn performs one full attempt: fresh transcript read, reasoning
// loop, atomic persistence. Returns store.ErrConflict when another
// turn landed between the read and the write.
func (s *chatService) runTurn(ctx context.Context, conv *model.Conversation, req ChatRequest) (*ChatResponse, error) {
	transcript, lastSeq, err := s.reconstruct(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	history := append(transcript, llm.Message{Role: "user", Content: req.Message})

	result, err := s.runner.Run(ctx, req.UserID, history)
	if err != nil {
		return nil, fmt.Errorf("running turn: %w", err)
	}

	var assistantSeq int64
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		// Lock the conversation row so concurrent turns on the same
		// conversation serialize here.
		locked, err := stores.Conversations().GetByIDForUpdate(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("locking conversation: %w", err)
		}

		// Another turn may have appended while we were reasoning.
		curSeq, err := stores.Messages().MaxSeq(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("checking sequence head: %w", err)
		}
		if curSeq != lastSeq {
			return store.ErrConflict
		}

		userMsg := &model.Message{
			ID:             id.New(),
			ConversationID: conv.ID,
			Role:           model.MessageRoleUser,
			Content:        req.Message,
		}
		if err := stores.Messages().Append(ctx, userMsg); err != nil {
			return fmt.Errorf("appending user message: %w", err)
		}

		for i := range result.Steps {
			step := result.Steps[i]
			toolMsg := &model.Message{
				ID:             id.New(),
				ConversationID: conv.ID,
				Role:           model.MessageRoleTool,
				ToolName:       &step.Name,
				ToolArgs:       []byte(step.Arguments),
				ToolResult:     &step.Observation,
				ToolFailed:     step.Failed,
			}
			if err := stores.Messages().Append(ctx, toolMsg); err != nil {
				return fmt.Errorf("appending tool record: %w", err)
			}
		}

		assistantMsg := &model.Message{
			ID:             id.New(),
			ConversationID: conv.ID,
			Role:           model.MessageRoleAssistant,
			Content:        result.Reply,
		}
		if err := stores.Messages().Append(ctx, assistantMsg); err != nil {
			return fmt.Errorf("appending assistant message: %w", err)
		}
		assistantSeq = assistantMsg.Seq

		// The locked row is the source of truth here: a concurrent
		// first turn may have titled the conversation already.
		if locked.Title == nil {
			title := logger.Truncate(req.Message, conversationTitleLen)
			if err := stores.Conversations().SetTitle(ctx, conv.ID, title); err != nil {
				return fmt.Errorf("titling conversation: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "turn persisted",
		"assistant_seq", assistantSeq,
		"tool_calls", len(result.Steps),
		"iterations", result.Iterations,
		"degraded", result.Degraded)

	return &ChatResponse{
		ConversationID: conv.ID,
		Reply:          result.Reply,
		Seq:            assistantSeq,
		ToolCalls:      len(result.Steps),
		Degraded:       result.Degraded,
	}, nil
}

// resolveConversation finds the turn's target. An explicit ID must
// exist and belong to the caller; otherwise the user's active
// conversation is used, created on demand.
func (s *chatService) resolveConversation(ctx context.Context, req ChatRequest) (*model.Conversation, error) {
	if req.ConversationID != nil {
		conv, err := s.convStore.GetByID(ctx, *req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != req.UserID {
			return nil, ErrForbidden
		}
		return conv, nil
	}

	conv, err := s.convStore.GetActiveByUser(ctx, req.UserID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("resolving active conversation: %w", err)
	}

	conv = &model.Conversation{
		ID:     id.New(),
		UserID: req.UserID,
		Active: true,
	}
	if err := s.convStore.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	slog.InfoContext(ctx, "conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// reconstruct reads the full transcript and converts it to LLM
// messages. The read is fresh on every attempt; nothing is cached
// between requests. An empty conversation reconstructs to an empty
// history.
func (s *chatService) reconstruct(ctx context.Context, conversationID int64) ([]llm.Message, int64, error) {
	msgs, err := s.msgStore.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, 0, fmt.Errorf("reading transcript: %w", err)
	}

	var lastSeq int64
	for _, m := range msgs {
		if m.Seq <= lastSeq {
			slog.ErrorContext(ctx, "transcript sequence corrupted",
				"conversation_id", conversationID,
				"seq", m.Seq,
				"prev_seq", lastSeq)
			return nil, 0, fmt.Errorf("sequence %d after %d: %w", m.Seq, lastSeq, ErrInvariantViolation)
		}
		lastSeq = m.Seq
	}

	return agent.BuildTranscript(msgs), lastSeq, nil
}

func (s *chatService) StartConversation(ctx context.Context, userID int64) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:     id.New(),
		UserID: userID,
		Active: true,
	}

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Conversations().DeactivateByUser(ctx, userID); err != nil {
			return fmt.Errorf("deactivating previous conversations: %w", err)
		}
		if err := stores.Conversations().Create(ctx, conv); err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return conv, nil
}

func (s *chatService) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	return s.convStore.ListByUser(ctx, userID)
}

func (s *chatService) GetMessages(ctx context.Context, userID, conversationID int64) ([]model.Message, error) {
	conv, err := s.convStore.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return s.msgStore.ListByConversation(ctx, conversationID)
}
