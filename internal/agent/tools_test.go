package agent_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskpilot.app/server/internal/agent"
	"taskpilot.app/server/internal/model"
)

var _ = Describe("TaskTools", func() {
	var (
		ctx   context.Context
		tools *agent.TaskTools
		tasks *memTaskStore
	)

	const userID int64 = 42

	BeforeEach(func() {
		ctx = context.Background()
		tasks = newMemTaskStore()
		tools = newTaskTools(tasks)
	})

	Describe("Definitions", func() {
		It("exposes exactly the five task tools", func() {
			defs := tools.Definitions()

			names := make([]string, 0, len(defs))
			for _, d := range defs {
				names = append(names, d.Name)
			}
			Expect(names).To(ConsistOf(
				"add_task", "list_tasks", "update_task", "complete_task", "delete_task"))
		})

		It("attaches a parameter schema to every tool", func() {
			for _, d := range tools.Definitions() {
				Expect(d.Parameters).NotTo(BeNil(), "tool %s has no schema", d.Name)
				Expect(d.Description).NotTo(BeEmpty())
			}
		})
	})

	Describe("add_task", func() {
		It("creates a task and reports the new ID", func() {
			obs, ok, err := tools.Execute(ctx, userID, "add_task", `{"title":"Buy milk"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(obs).To(MatchRegexp(`^Task created successfully with ID: \d+$`))

			created, err := tasks.ListByUser(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(HaveLen(1))
			Expect(created[0].Title).To(Equal("Buy milk"))
			Expect(created[0].Completed).To(BeFalse())
		})

		It("stores the optional description", func() {
			_, ok, err := tools.Execute(ctx, userID, "add_task",
				`{"title":"Buy milk","description":"2 liters"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			created, _ := tasks.ListByUser(ctx, userID)
			Expect(created[0].Description).NotTo(BeNil())
			Expect(*created[0].Description).To(Equal("2 liters"))
		})

		It("does not deduplicate identical calls", func() {
			_, _, err := tools.Execute(ctx, userID, "add_task", `{"title":"Buy milk"}`)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = tools.Execute(ctx, userID, "add_task", `{"title":"Buy milk"}`)
			Expect(err).NotTo(HaveOccurred())

			created, _ := tasks.ListByUser(ctx, userID)
			Expect(created).To(HaveLen(2))
		})

		It("rejects a missing title as an observation, not an error", func() {
			obs, ok, err := tools.Execute(ctx, userID, "add_task", `{"title":"  "}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(ContainSubstring("title is required"))
		})

		It("rejects malformed arguments as an observation", func() {
			obs, ok, err := tools.Execute(ctx, userID, "add_task", `{"title":`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(HavePrefix("Error creating task:"))
		})

		It("surfaces store failures as errors for the loop to handle", func() {
			failing := &mockTaskStore{
				createFn: func(_ context.Context, _ *model.Task) error { return errDown },
			}
			tools = newTaskTools(failing)

			_, _, err := tools.Execute(ctx, userID, "add_task", `{"title":"Buy milk"}`)
			Expect(err).To(MatchError(errDown))
		})
	})

	Describe("list_tasks", func() {
		It("reports when there are no tasks", func() {
			obs, ok, err := tools.Execute(ctx, userID, "list_tasks", `{}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(obs).To(Equal("No tasks found."))
		})

		It("formats tasks with completion markers", func() {
			desc := "2 liters"
			Expect(tasks.Create(ctx, &model.Task{ID: 1, UserID: userID, Title: "Buy milk", Description: &desc})).To(Succeed())
			Expect(tasks.Create(ctx, &model.Task{ID: 2, UserID: userID, Title: "Walk dog", Completed: true})).To(Succeed())

			obs, ok, err := tools.Execute(ctx, userID, "list_tasks", `{}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(obs).To(Equal("1. [ ] **Buy milk** - 2 liters\n2. [x] **Walk dog**"))
		})

		It("filters by status", func() {
			Expect(tasks.Create(ctx, &model.Task{ID: 1, UserID: userID, Title: "Buy milk"})).To(Succeed())
			Expect(tasks.Create(ctx, &model.Task{ID: 2, UserID: userID, Title: "Walk dog", Completed: true})).To(Succeed())

			obs, _, err := tools.Execute(ctx, userID, "list_tasks", `{"status":"completed"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(obs).To(Equal("2. [x] **Walk dog**"))

			obs, _, err = tools.Execute(ctx, userID, "list_tasks", `{"status":"active"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(obs).To(Equal("1. [ ] **Buy milk**"))
		})

		It("never shows another user's tasks", func() {
			Expect(tasks.Create(ctx, &model.Task{ID: 1, UserID: 99, Title: "Not yours"})).To(Succeed())

			obs, _, err := tools.Execute(ctx, userID, "list_tasks", `{}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(obs).To(Equal("No tasks found."))
		})
	})

	Describe("update_task", func() {
		BeforeEach(func() {
			Expect(tasks.Create(ctx, &model.Task{ID: 7, UserID: userID, Title: "Old title"})).To(Succeed())
		})

		It("updates the title", func() {
			obs, ok, err := tools.Execute(ctx, userID, "update_task",
				`{"task_id":7,"title":"New title"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(obs).To(Equal("Task 7 updated successfully."))

			task, _ := tasks.GetByID(ctx, userID, 7)
			Expect(task.Title).To(Equal("New title"))
		})

		It("updates only the description when the title is omitted", func() {
			_, ok, err := tools.Execute(ctx, userID, "update_task",
				`{"task_id":7,"description":"details"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			task, _ := tasks.GetByID(ctx, userID, 7)
			Expect(task.Title).To(Equal("Old title"))
			Expect(task.Description).NotTo(BeNil())
			Expect(*task.Description).To(Equal("details"))
		})

		It("rejects blanking the title, same as the REST surface", func() {
			obs, ok, err := tools.Execute(ctx, userID, "update_task",
				`{"task_id":7,"title":""}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(ContainSubstring("title is required"))

			task, _ := tasks.GetByID(ctx, userID, 7)
			Expect(task.Title).To(Equal("Old title"))
		})

		It("treats a missing task as an observation", func() {
			obs, ok, err := tools.Execute(ctx, userID, "update_task",
				`{"task_id":999,"title":"x"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(Equal("Task 999 not found or access denied."))
		})

		It("makes another user's task indistinguishable from a missing one", func() {
			Expect(tasks.Create(ctx, &model.Task{ID: 8, UserID: 99, Title: "Not yours"})).To(Succeed())

			obs, ok, err := tools.Execute(ctx, userID, "update_task",
				`{"task_id":8,"title":"hijack"}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(Equal("Task 8 not found or access denied."))

			theirs, _ := tasks.GetByID(ctx, 99, 8)
			Expect(theirs.Title).To(Equal("Not yours"))
		})
	})

	Describe("complete_task", func() {
		It("marks the task completed", func() {
			Expect(tasks.Create(ctx, &model.Task{ID: 3, UserID: userID, Title: "Buy milk"})).To(Succeed())

			obs, ok, err := tools.Execute(ctx, userID, "complete_task", `{"task_id":3}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(obs).To(Equal("Task 3 marked as completed."))

			task, _ := tasks.GetByID(ctx, userID, 3)
			Expect(task.Completed).To(BeTrue())
		})

		It("treats a missing task as an observation", func() {
			obs, ok, err := tools.Execute(ctx, userID, "complete_task", `{"task_id":404}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(Equal("Task 404 not found or access denied."))
		})
	})

	Describe("delete_task", func() {
		It("deletes the task", func() {
			Expect(tasks.Create(ctx, &model.Task{ID: 5, UserID: userID, Title: "Buy milk"})).To(Succeed())

			obs, ok, err := tools.Execute(ctx, userID, "delete_task", `{"task_id":5}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(obs).To(Equal("Task 5 deleted successfully."))

			remaining, _ := tasks.ListByUser(ctx, userID)
			Expect(remaining).To(BeEmpty())
		})

		It("treats a missing task as an observation", func() {
			obs, ok, err := tools.Execute(ctx, userID, "delete_task", `{"task_id":404}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(Equal("Task 404 not found or access denied."))
		})
	})

	Describe("unknown tool", func() {
		It("returns an observation instead of failing the turn", func() {
			obs, ok, err := tools.Execute(ctx, userID, "drop_tables", `{}`)

			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(obs).To(Equal(fmt.Sprintf("Unknown tool: %s", "drop_tables")))
		})
	})
})
