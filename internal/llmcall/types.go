// Package llmcall wraps a provider client with budget checks, retries,
// a multi-step tool loop, optional streaming, and a JSON-recovery retry —
// spec §4.4. It is provider-agnostic: internal/providers supplies concrete
// Client implementations.
package llmcall

import (
	"context"

	"github.com/ChamsBouzaiene/scrutari/internal/costtracker"
	"github.com/ChamsBouzaiene/scrutari/internal/retryengine"
)

// Role is a provider-agnostic chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the provider-agnostic chat message passed between the engine
// and a provider client.
type Message struct {
	Role      Role
	Content   string
	Name      string // tool name (tool messages) / tool_use id (provider specific)
	ToolCalls []ToolCall
}

// ToolCall is a function/tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Args  map[string]any
	Error string
}

// Usage is token accounting returned by a provider for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input+output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ToolSchema is the JSON schema a provider needs for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// Response is the normalized result of one provider call.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// Options configures one call.
type Options struct {
	Temperature     float32
	MaxOutputTokens int
}

// TextChunk is one piece of a streamed response.
type TextChunk struct {
	Text     string
	ToolCall *ToolCall // set when the chunk completes a tool-use block rather than carrying text
}

// Client abstracts a provider SDK (Anthropic, OpenAI, ...).
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []ToolSchema, opts Options) (Response, error)
	Stream(ctx context.Context, model string, messages []Message, tools []ToolSchema, opts Options) (<-chan TextChunk, <-chan StreamResult)
}

// StreamResult is delivered exactly once on a stream's result channel: the
// terminal future carrying the aggregated response, per spec's streaming
// design note.
type StreamResult struct {
	Response Response
	Err      error
}

// BudgetScope bundles the budget ceiling and shared tracker a call must
// respect, mirroring spec §4.4 step 1's "optional {budget_usd,
// cost_tracker}" input.
type BudgetScope struct {
	BudgetUSD float64
	Tracker   *costtracker.Tracker
}

// ToolExecutor runs one tool call and returns its string result.
type ToolExecutor func(ctx context.Context, call ToolCall) (string, error)

// CallParams bundles everything Call needs beyond the client/model.
type CallParams struct {
	Model         string
	ModelPricing  string // catalog key, defaults to Model when empty
	System        string
	Messages      []Message
	Tools         []ToolSchema
	Options       Options
	Budget        *BudgetScope
	RetryConfig   *retryengine.Config
	MaxToolSteps  int // >1 enables the multi-step tool loop
	ToolExecutor  ToolExecutor
	JSONValidator func(content string) error // non-nil enables the JSON-recovery retry
}

// Result is what Call returns.
type Result struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	CostUSD   float64
	Attempts  int
}
