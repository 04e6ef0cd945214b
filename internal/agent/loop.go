package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/common/logger"
)

const (
	turnTimeout       = 2 * time.Minute
	doomLoopThreshold = 3 // Stop if same tool called 3 times with identical args
)

// degradedReply is returned when the loop cannot produce a proper
// reply within its iteration budget and a forced synthesis also fails.
const degradedReply = "I'm sorry, I wasn't able to finish working on that request. " +
	"Please try again, or break it into smaller steps."

// State names the phase the loop is in. Exposed for logging and tests;
// a turn always ends in Finalizing or Failed.
type State string

const (
	StateReasoning          State = "reasoning"
	StateAwaitingToolResult State = "awaiting_tool_result"
	StateFinalizing         State = "finalizing"
	StateFailed             State = "failed"
)

// ToolStep records one tool invocation made during a turn, in
// execution order. The caller persists these alongside the reply.
type ToolStep struct {
	CallID      string
	Name        string
	Arguments   string
	Observation string
	Failed      bool
}

// Result is the outcome of one completed turn. Token counts are
// totals across every model call the turn made.
type Result struct {
	Reply            string
	Steps            []ToolStep
	Iterations       int
	Degraded         bool
	PromptTokens     int
	CompletionTokens int
}

// Loop drives the reasoning cycle for a single turn: ask the model,
// execute any tool calls it requests, feed back the observations, and
// repeat until it answers in plain text or the iteration budget runs
// out.
//
// The loop holds no conversation state of its own. Each Run gets the
// full transcript and the loop's working message list is discarded
// when the turn ends.
type Loop struct {
	llm           llm.AgentClient
	tools         *TaskTools
	maxIterations int
	maxTokens     int
}

// NewLoop creates a turn loop. maxIterations bounds reasoning cycles
// per turn; values below 1 fall back to 10.
func NewLoop(client llm.AgentClient, tools *TaskTools, maxIterations, maxTokens int) *Loop {
	if maxIterations < 1 {
		maxIterations = 10
	}
	return &Loop{
		llm:           client,
		tools:         tools,
		maxIterations: maxIterations,
		maxTokens:     maxTokens,
	}
}

// toolCallRecord tracks a tool invocation for doom loop detection.
type toolCallRecord struct {
	name string
	args string
}

// Run executes one turn for the given user over the reconstructed
// transcript. history must already end with the user's new message.
// Tool failures are fed back to the model as observations; only LLM
// transport errors fail the turn.
func (l *Loop) Run(ctx context.Context, userID int64, history []llm.Message) (*Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "taskpilot.agent",
	})

	sc := logger.StartSpan(ctx, "agent.run")
	defer sc.End()

	ctx, cancel := context.WithTimeout(sc.Context(), turnTimeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt(userID)})
	messages = append(messages, history...)

	result := &Result{}
	state := StateReasoning
	start := time.Now()

	defer func() {
		slog.InfoContext(ctx, "agent turn completed",
			"state", string(state),
			"iterations", result.Iterations,
			"tool_steps", len(result.Steps),
			"degraded", result.Degraded,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	// Track recent tool calls for doom loop detection
	var recentCalls []toolCallRecord

	for {
		result.Iterations++

		if result.Iterations > l.maxIterations {
			slog.WarnContext(ctx, "agent hit iteration limit, forcing reply",
				"iterations", result.Iterations)

			state = StateFinalizing
			result.Degraded = true
			result.Reply = l.forceReply(ctx, messages,
				"You have used all of your steps for this request. Reply to the user now with what you accomplished and what you could not finish. Do not request any more tool calls.")
			return result, nil
		}

		resp, err := l.llm.ChatWithTools(ctx, llm.AgentRequest{
			Messages:  messages,
			Tools:     l.tools.Definitions(),
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			state = StateFailed
			return nil, fmt.Errorf("agent chat iteration %d: %w", result.Iterations, err)
		}

		result.PromptTokens += resp.PromptTokens
		result.CompletionTokens += resp.CompletionTokens

		// No tool calls = model is done reasoning
		if len(resp.ToolCalls) == 0 {
			state = StateFinalizing
			result.Reply = resp.Content
			if result.Reply == "" {
				result.Degraded = true
				result.Reply = degradedReply
			}
			return result, nil
		}

		// Same tool with same args over and over means the model is
		// stuck; force a reply instead of burning the budget.
		if len(resp.ToolCalls) == 1 {
			tc := resp.ToolCalls[0]
			recentCalls = append(recentCalls, toolCallRecord{name: tc.Name, args: normalizeArgs(tc.Arguments)})
			if len(recentCalls) > doomLoopThreshold {
				recentCalls = recentCalls[1:]
			}
			if len(recentCalls) == doomLoopThreshold && allIdentical(recentCalls) {
				slog.WarnContext(ctx, "agent doom loop detected, forcing reply",
					"iterations", result.Iterations,
					"repeated_tool", tc.Name)

				state = StateFinalizing
				result.Degraded = true
				result.Reply = l.forceReply(ctx, messages,
					"You are repeating the same tool call. Reply to the user now based on the observations you already have.")
				return result, nil
			}
		} else {
			recentCalls = nil
		}

		state = StateAwaitingToolResult
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tools mutate per-user state, so execute in request order.
		for _, tc := range resp.ToolCalls {
			observation, ok, err := l.tools.Execute(ctx, userID, tc.Name, tc.Arguments)
			if err != nil {
				slog.ErrorContext(ctx, "tool execution failed",
					"tool", tc.Name,
					"error", err)
				observation = fmt.Sprintf("Error: %s", err)
				ok = false
			}

			result.Steps = append(result.Steps, ToolStep{
				CallID:      tc.ID,
				Name:        tc.Name,
				Arguments:   tc.Arguments,
				Observation: observation,
				Failed:      !ok,
			})

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    observation,
				ToolCallID: tc.ID,
			})
		}

		state = StateReasoning
	}
}

// forceReply asks the model for a final text answer without tools.
// Falls back to a fixed apology if even that call fails.
func (l *Loop) forceReply(ctx context.Context, messages []llm.Message, prompt string) string {
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: prompt,
	})

	resp, err := l.llm.ChatWithTools(ctx, llm.AgentRequest{
		Messages:  messages,
		Tools:     nil, // No tools = force text response
		MaxTokens: l.maxTokens,
	})
	if err != nil || resp.Content == "" {
		if err != nil {
			slog.ErrorContext(ctx, "forced reply failed", "error", err)
		}
		return degradedReply
	}

	return resp.Content
}

// normalizeArgs normalizes JSON arguments for comparison.
func normalizeArgs(args string) string {
	var v any
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return args
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		return args
	}
	return string(normalized)
}

// allIdentical checks if all tool calls in the slice are identical.
func allIdentical(calls []toolCallRecord) bool {
	if len(calls) == 0 {
		return false
	}
	first := calls[0]
	for _, c := range calls[1:] {
		if c.name != first.name || c.args != first.args {
			return false
		}
	}
	return true
}
