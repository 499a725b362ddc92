// Package llm adapts the Anthropic Claude Messages API to the narrow
// drafting interfaces the Planner (C7) and Agent Spawner (C6) depend on:
// planner.Drafter and spawner.StepSource. Both are one-shot "ask the model
// for structured JSON" calls, so a single client backs both.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/trioctl/trio/internal/backoff"
	llmcontext "github.com/trioctl/trio/internal/context"
	"github.com/trioctl/trio/internal/planner"
	"github.com/trioctl/trio/internal/spawner"
	"github.com/trioctl/trio/pkg/models"
)

// apiRetryAttempts bounds how many times a single drafting or step request
// is retried on a transient Anthropic API failure (rate limits, 5xx,
// connection resets) before the caller sees the error.
const apiRetryAttempts = 3

// inputBudget returns how many tokens of prompt content the model's window
// leaves room for once maxTokens is reserved for the response.
func (c *AnthropicClient) inputBudget() int {
	window := llmcontext.NewWindowForModel(c.model)
	budget := window.Remaining() - int(c.maxTokens)
	if budget < llmcontext.MinContextWindow/4 {
		budget = llmcontext.MinContextWindow / 4
	}
	return budget
}

// DefaultModel is used when no model is configured for the active LLM
// provider profile.
const DefaultModel = "claude-sonnet-4-20250514"

// AnthropicConfig configures the Claude-backed drafter/step source.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int64
}

// AnthropicClient drafts Plans for the Planner and proposes the next
// step for a running mini-agent, both by asking Claude for a small JSON
// object and parsing it back into the core's own types.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient constructs an AnthropicClient from the given config.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// draftEnvelope is the JSON shape Claude is asked to produce for a Draft.
type draftEnvelope struct {
	DirectResponse string       `json:"directResponse,omitempty"`
	Steps          []stepFields `json:"steps,omitempty"`
}

type stepFields struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
	Kind        string         `json:"kind"`
}

const draftSystemPrompt = `You are the drafting stage of a task-orchestrating agent runtime.
Given a user request, respond with a single JSON object and nothing else.
If the request is purely conversational (a question you can answer directly,
no tool use required), respond with {"directResponse": "<your answer>"}.
Otherwise respond with {"steps": [{"id","description","tool","args","dependsOn","kind"}, ...]}
where kind is one of "file", "command", "search", "edit", "analysis", "general".
Each step id must be unique; dependsOn lists ids of steps that must complete first.`

// Draft implements planner.Drafter.
func (c *AnthropicClient) Draft(ctx context.Context, request models.Request, contextSummary string) (planner.Draft, error) {
	budget := c.inputBudget()
	if contextSummary != "" && llmcontext.EstimateTokens(contextSummary) > budget {
		contextSummary = truncateToTokens(contextSummary, budget)
	}

	prompt := request.Text
	if contextSummary != "" {
		prompt = fmt.Sprintf("Context so far:\n%s\n\nRequest:\n%s", contextSummary, request.Text)
	}

	msg, err := backoff.RetryFunc(ctx, apiRetryAttempts, func(attempt int) (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: draftSystemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
	})
	if err != nil {
		return planner.Draft{}, fmt.Errorf("llm: draft request: %w", err)
	}

	var envelope draftEnvelope
	if err := unmarshalJSONResponse(msg, &envelope); err != nil {
		return planner.Draft{}, fmt.Errorf("llm: parse draft response: %w", err)
	}

	draft := planner.Draft{DirectResponse: envelope.DirectResponse}
	for _, s := range envelope.Steps {
		draft.Steps = append(draft.Steps, models.Step{
			ID:          s.ID,
			Description: s.Description,
			Tool:        s.Tool,
			Args:        s.Args,
			DependsOn:   s.DependsOn,
			Kind:        models.StepKind(s.Kind),
		})
	}
	return draft, nil
}

// stepEnvelope is the JSON shape Claude is asked to produce for the next
// action a running mini-agent should take.
type stepEnvelope struct {
	Done bool           `json:"done"`
	Tool string         `json:"tool,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

const stepSystemPrompt = `You are a mini-agent executing one focused subtask inside a larger plan.
Given your task and the results of tool calls you have made so far, respond
with a single JSON object and nothing else: {"done": bool, "tool": "<name>", "args": {...}}.
Set done=true once the task is complete; otherwise name the next tool to call.`

// NextStep implements spawner.StepSource.
func (c *AnthropicClient) NextStep(ctx context.Context, task models.MiniAgentTask, history []models.ToolResult) (spawner.StepAction, error) {
	history = truncateHistory(history, c.inputBudget())

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", task.Prompt)
	if len(history) > 0 {
		sb.WriteString("Prior tool results:\n")
		for i, r := range history {
			fmt.Fprintf(&sb, "%d. success=%v output=%s error=%s\n", i+1, r.Success, r.Output, r.Error)
		}
	}

	msg, err := backoff.RetryFunc(ctx, apiRetryAttempts, func(attempt int) (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: stepSystemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
			},
		})
	})
	if err != nil {
		return spawner.StepAction{}, fmt.Errorf("llm: step request: %w", err)
	}

	var envelope stepEnvelope
	if err := unmarshalJSONResponse(msg, &envelope); err != nil {
		return spawner.StepAction{}, fmt.Errorf("llm: parse step response: %w", err)
	}
	if envelope.Done {
		return spawner.StepAction{Done: true}, nil
	}
	return spawner.StepAction{
		ToolCall: models.ToolCall{
			ID:   task.ID + "-" + time.Now().UTC().Format("150405.000000000"),
			Name: envelope.Tool,
			Args: envelope.Args,
		},
	}, nil
}

// truncateToTokens trims s from the front, keeping the tail, until it fits
// within budget tokens by the same character-based estimate the context
// window uses elsewhere in this package.
func truncateToTokens(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	maxChars := budget * 4
	if len(s) <= maxChars {
		return s
	}
	return "...(truncated)...\n" + s[len(s)-maxChars:]
}

// truncateHistory drops the oldest tool results once the formatted history
// would exceed budget tokens, always keeping the most recent results so the
// model still sees what it just did.
func truncateHistory(history []models.ToolResult, budget int) []models.ToolResult {
	if len(history) == 0 {
		return history
	}

	msgs := make([]llmcontext.Message, len(history))
	for i, r := range history {
		content := fmt.Sprintf("success=%v output=%s error=%s", r.Success, r.Output, r.Error)
		msgs[i] = llmcontext.Message{
			Role:    "tool",
			Content: content,
			Tokens:  llmcontext.EstimateTokens(content),
		}
	}

	truncator := llmcontext.NewTruncator(llmcontext.TruncateOldest, budget)
	truncator.SetKeepFirst(0)
	truncator.SetKeepLast(minInt(len(history), 8))
	kept, result := truncator.Truncate(msgs)
	if result.RemovedCount == 0 {
		return history
	}
	return history[len(history)-len(kept):]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func unmarshalJSONResponse(msg *anthropic.Message, out any) error {
	if msg == nil {
		return errors.New("nil response")
	}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = extractJSONObject(text)
	if text == "" {
		return errors.New("no JSON object found in response")
	}
	return json.Unmarshal([]byte(text), out)
}

// extractJSONObject trims surrounding prose or code fences, returning the
// first balanced {...} object found in s.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
