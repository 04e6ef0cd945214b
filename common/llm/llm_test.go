package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskpilot.app/server/common/llm"
)

var _ = Describe("NewAgentClient", func() {
	It("requires an API key", func() {
		_, err := llm.NewAgentClient(llm.Config{Provider: llm.ProviderOpenAI})

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("API key"))
	})

	It("rejects unknown providers", func() {
		_, err := llm.NewAgentClient(llm.Config{Provider: "bard", APIKey: "k"})

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported LLM provider"))
	})

	It("defaults to Anthropic", func() {
		client, err := llm.NewAgentClient(llm.Config{APIKey: "k", Model: "claude-sonnet-4-5-20250514"})

		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("claude-sonnet-4-5-20250514"))
	})
})

var _ = Describe("ParseToolArguments", func() {
	type args struct {
		Title       string  `json:"title"`
		Description *string `json:"description,omitempty"`
	}

	It("decodes well-formed arguments", func() {
		out, err := llm.ParseToolArguments[args](`{"title":"Buy milk","description":"2 liters"}`)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Title).To(Equal("Buy milk"))
		Expect(*out.Description).To(Equal("2 liters"))
	})

	It("reports malformed JSON", func() {
		_, err := llm.ParseToolArguments[args](`{"title":`)

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("parse tool arguments"))
	})
})

var _ = Describe("GenerateSchemaFrom", func() {
	type params struct {
		TaskID int64   `json:"task_id" jsonschema:"required,description=The task ID"`
		Title  *string `json:"title,omitempty"`
	}

	It("produces an inline object schema", func() {
		schema := llm.GenerateSchemaFrom(&params{})

		raw, err := json.Marshal(schema)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded["type"]).To(Equal("object"))
		Expect(decoded).NotTo(HaveKey("$ref"))

		props, ok := decoded["properties"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(props).To(HaveKey("task_id"))
		Expect(decoded["required"]).To(ContainElement("task_id"))
	})
})
