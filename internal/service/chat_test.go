package service_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/internal/agent"
	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/service"
	"taskpilot.app/server/internal/store"
)

var _ = Describe("ChatService", func() {
	var (
		ctx    context.Context
		convs  *memConversationStore
		msgs   *memMessageStore
		tx     *fakeTxRunner
		runner *mockTurnRunner
		svc    service.ChatService
	)

	const userID int64 = 42

	BeforeEach(func() {
		ctx = context.Background()
		convs = newMemConversationStore()
		msgs = newMemMessageStore()
		tx = &fakeTxRunner{provider: &stubProvider{convs: convs, msgs: msgs, tasks: &mockTaskStore{}}}
		runner = &mockTurnRunner{}
		svc = service.NewChatService(convs, msgs, tx, runner)
	})

	// seedConversation creates an active conversation owned by userID.
	seedConversation := func(id int64) *model.Conversation {
		conv := &model.Conversation{ID: id, UserID: userID, Active: true}
		Expect(convs.Create(ctx, conv)).To(Succeed())
		return conv
	}

	Describe("Chat", func() {
		It("creates a conversation when the user has no active one", func() {
			runner.runFn = func(_ context.Context, _ int64, _ []llm.Message) (*agent.Result, error) {
				return &agent.Result{Reply: "Hello!", Iterations: 1}, nil
			}

			resp, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ConversationID).NotTo(BeZero())
			Expect(resp.Reply).To(Equal("Hello!"))
			Expect(resp.Seq).To(Equal(int64(2)))

			conv, err := convs.GetByID(ctx, resp.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.UserID).To(Equal(userID))
			Expect(conv.Active).To(BeTrue())
		})

		It("reuses the active conversation on subsequent turns", func() {
			conv := seedConversation(100)

			first, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "one"})
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "two"})
			Expect(err).NotTo(HaveOccurred())

			Expect(first.ConversationID).To(Equal(conv.ID))
			Expect(second.ConversationID).To(Equal(conv.ID))
			Expect(second.Seq).To(Equal(int64(4)))
		})

		It("persists user, tool, and assistant messages in order", func() {
			conv := seedConversation(100)
			args := `{"title":"Buy milk"}`
			obs := "Task created successfully with ID: 7"
			runner.runFn = func(_ context.Context, _ int64, _ []llm.Message) (*agent.Result, error) {
				return &agent.Result{
					Reply: "Added it.",
					Steps: []agent.ToolStep{
						{CallID: "c1", Name: "add_task", Arguments: args, Observation: obs},
					},
					Iterations: 2,
				}, nil
			}

			resp, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "add buy milk"})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ToolCalls).To(Equal(1))
			Expect(resp.Seq).To(Equal(int64(3)))

			stored, err := msgs.ListByConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(3))

			Expect(stored[0].Seq).To(Equal(int64(1)))
			Expect(stored[0].Role).To(Equal(model.MessageRoleUser))
			Expect(stored[0].Content).To(Equal("add buy milk"))

			Expect(stored[1].Seq).To(Equal(int64(2)))
			Expect(stored[1].Role).To(Equal(model.MessageRoleTool))
			Expect(*stored[1].ToolName).To(Equal("add_task"))
			Expect(string(stored[1].ToolArgs)).To(Equal(args))
			Expect(*stored[1].ToolResult).To(Equal(obs))
			Expect(stored[1].ToolFailed).To(BeFalse())

			Expect(stored[2].Seq).To(Equal(int64(3)))
			Expect(stored[2].Role).To(Equal(model.MessageRoleAssistant))
			Expect(stored[2].Content).To(Equal("Added it."))
		})

		It("hands the runner the stored transcript plus the new message", func() {
			conv := seedConversation(100)
			msgs.seed(conv.ID, 1, model.MessageRoleUser, "earlier question")
			msgs.seed(conv.ID, 2, model.MessageRoleAssistant, "earlier answer")

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "follow up"})

			Expect(err).NotTo(HaveOccurred())
			Expect(runner.histories).To(HaveLen(1))
			history := runner.histories[0]
			Expect(history).To(HaveLen(3))
			Expect(history[0].Content).To(Equal("earlier question"))
			Expect(history[1].Content).To(Equal("earlier answer"))
			Expect(history[2].Role).To(Equal("user"))
			Expect(history[2].Content).To(Equal("follow up"))
		})

		It("titles the conversation from the first message", func() {
			conv := seedConversation(100)

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "plan my week"})

			Expect(err).NotTo(HaveOccurred())
			got, _ := convs.GetByID(ctx, conv.ID)
			Expect(got.Title).NotTo(BeNil())
			Expect(*got.Title).To(Equal("plan my week"))
		})

		It("truncates long titles", func() {
			conv := seedConversation(100)
			long := strings.Repeat("x", 80)

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: long})

			Expect(err).NotTo(HaveOccurred())
			got, _ := convs.GetByID(ctx, conv.ID)
			Expect(*got.Title).To(Equal(strings.Repeat("x", 60) + "..."))
		})

		It("keeps the existing title on later turns", func() {
			conv := seedConversation(100)

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "first message"})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "second message"})
			Expect(err).NotTo(HaveOccurred())

			got, _ := convs.GetByID(ctx, conv.ID)
			Expect(*got.Title).To(Equal("first message"))
		})

		It("targets an explicit conversation ID", func() {
			conv := seedConversation(100)
			other := &model.Conversation{ID: 200, UserID: userID, Active: false}
			Expect(convs.Create(ctx, other)).To(Succeed())

			resp, err := svc.Chat(ctx, service.ChatRequest{
				UserID:         userID,
				ConversationID: &other.ID,
				Message:        "hi",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ConversationID).To(Equal(other.ID))

			stored, _ := msgs.ListByConversation(ctx, conv.ID)
			Expect(stored).To(BeEmpty())
		})

		It("refuses another user's conversation", func() {
			foreign := &model.Conversation{ID: 300, UserID: 7, Active: true}
			Expect(convs.Create(ctx, foreign)).To(Succeed())

			_, err := svc.Chat(ctx, service.ChatRequest{
				UserID:         userID,
				ConversationID: &foreign.ID,
				Message:        "hi",
			})

			Expect(err).To(MatchError(service.ErrForbidden))
			Expect(runner.calls).To(BeZero())
		})

		It("reports a missing conversation", func() {
			missing := int64(999)

			_, err := svc.Chat(ctx, service.ChatRequest{
				UserID:         userID,
				ConversationID: &missing,
				Message:        "hi",
			})

			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("rejects a corrupted transcript", func() {
			conv := seedConversation(100)
			msgs.seed(conv.ID, 2, model.MessageRoleUser, "a")
			msgs.seed(conv.ID, 2, model.MessageRoleAssistant, "b")

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).To(MatchError(service.ErrInvariantViolation))
			Expect(runner.calls).To(BeZero())
		})

		It("retries once after losing the sequence race", func() {
			conv := seedConversation(100)
			tx.before = func(attempt int) {
				if attempt == 1 {
					msgs.seed(conv.ID, 1, model.MessageRoleUser, "landed while reasoning")
				}
			}

			resp, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).NotTo(HaveOccurred())
			Expect(runner.calls).To(Equal(2))
			Expect(tx.calls).To(Equal(2))

			// Second attempt reconstructed with the concurrent message.
			Expect(runner.histories[1][0].Content).To(Equal("landed while reasoning"))
			Expect(resp.Seq).To(Equal(int64(3)))
		})

		It("keeps a title set by the turn that won the race", func() {
			conv := seedConversation(100)
			tx.before = func(attempt int) {
				if attempt == 1 {
					msgs.seed(conv.ID, 1, model.MessageRoleUser, "first things first")
					Expect(convs.SetTitle(ctx, conv.ID, "first things first")).To(Succeed())
				}
			}

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).NotTo(HaveOccurred())
			titled, err := convs.GetByID(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(titled.Title).NotTo(BeNil())
			Expect(*titled.Title).To(Equal("first things first"))
		})

		It("gives up after a second lost race", func() {
			conv := seedConversation(100)
			seq := int64(0)
			tx.before = func(int) {
				seq++
				msgs.seed(conv.ID, seq, model.MessageRoleUser, "concurrent")
			}

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).To(MatchError(service.ErrConflict))
			Expect(runner.calls).To(Equal(2))
		})

		It("persists nothing when the runner fails", func() {
			conv := seedConversation(100)
			runner.runFn = func(context.Context, int64, []llm.Message) (*agent.Result, error) {
				return nil, errors.New("model unavailable")
			}

			_, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).To(HaveOccurred())
			Expect(tx.calls).To(BeZero())
			stored, _ := msgs.ListByConversation(ctx, conv.ID)
			Expect(stored).To(BeEmpty())
		})

		It("passes the degraded flag through", func() {
			seedConversation(100)
			runner.runFn = func(context.Context, int64, []llm.Message) (*agent.Result, error) {
				return &agent.Result{Reply: "partial answer", Degraded: true, Iterations: 11}, nil
			}

			resp, err := svc.Chat(ctx, service.ChatRequest{UserID: userID, Message: "hi"})

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeTrue())
		})
	})

	Describe("StartConversation", func() {
		It("deactivates previous conversations and opens a fresh one", func() {
			old := seedConversation(100)

			conv, err := svc.StartConversation(ctx, userID)

			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Active).To(BeTrue())
			Expect(conv.ID).NotTo(Equal(old.ID))

			prev, _ := convs.GetByID(ctx, old.ID)
			Expect(prev.Active).To(BeFalse())

			active, err := convs.GetActiveByUser(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(active.ID).To(Equal(conv.ID))
		})
	})

	Describe("ListConversations", func() {
		It("lists the active conversation first", func() {
			older := &model.Conversation{ID: 100, UserID: userID, Active: false}
			newer := &model.Conversation{ID: 200, UserID: userID, Active: false}
			active := &model.Conversation{ID: 150, UserID: userID, Active: true}
			for _, c := range []*model.Conversation{older, newer, active} {
				Expect(convs.Create(ctx, c)).To(Succeed())
			}

			out, err := svc.ListConversations(ctx, userID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(3))
			Expect(out[0].ID).To(Equal(active.ID))
			Expect(out[1].ID).To(Equal(newer.ID))
			Expect(out[2].ID).To(Equal(older.ID))
		})
	})

	Describe("GetMessages", func() {
		It("returns the transcript for the owner", func() {
			conv := seedConversation(100)
			msgs.seed(conv.ID, 1, model.MessageRoleUser, "hi")

			out, err := svc.GetMessages(ctx, userID, conv.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
		})

		It("refuses another user's transcript", func() {
			foreign := &model.Conversation{ID: 300, UserID: 7, Active: true}
			Expect(convs.Create(ctx, foreign)).To(Succeed())

			_, err := svc.GetMessages(ctx, userID, foreign.ID)

			Expect(err).To(MatchError(service.ErrForbidden))
		})
	})
})
