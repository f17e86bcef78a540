// Package providers supplies llmcall.Client implementations over real
// provider SDKs, each talking to its provider directly rather than through
// a shared HTTP abstraction.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

// AnthropicClient implements llmcall.Client over the Anthropic SDK.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient constructs a client for the given API key.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}
}

func toAnthropicMessages(messages []llmcall.Message) ([]anthropic.MessageSystemPart, []anthropic.Message) {
	var systemParts []anthropic.MessageSystemPart
	var out []anthropic.Message
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case llmcall.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
			prevAssistantHadToolCalls = false
		case llmcall.RoleUser:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
			prevAssistantHadToolCalls = false
		case llmcall.RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" && msg.Content != " " {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON)))
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case llmcall.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewToolResultMessageContent(msg.Name, content, false)},
			})
			if i+1 < len(messages) && messages[i+1].Role == llmcall.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return systemParts, out
}

func toAnthropicTools(tools []llmcall.ToolSchema) ([]anthropic.ToolDefinition, error) {
	var defs []anthropic.ToolDefinition
	for _, ts := range tools {
		var schema map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		defs = append(defs, anthropic.ToolDefinition{Name: ts.Name, Description: ts.Description, InputSchema: schema})
	}
	return defs, nil
}

// Chat implements llmcall.Client.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (llmcall.Response, error) {
	systemParts, msgs := toAnthropicMessages(messages)
	toolDefs, err := toAnthropicTools(tools)
	if err != nil {
		return llmcall.Response{}, err
	}

	maxTokens := 4096
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	temperature := float32(0.1)
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(systemParts) > 0 {
		req.MultiSystem = systemParts
	}
	if len(toolDefs) > 0 {
		req.Tools = toolDefs
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		status, retryAfter := extractErrorMetadata(err)
		return llmcall.Response{}, wrapProviderError(err, status, retryAfter)
	}

	var text string
	var toolCalls []llmcall.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text += *block.Text
			}
		case "tool_use":
			if block.MessageContentToolUse != nil && block.ID != "" && block.Name != "" {
				args := map[string]any{}
				if len(block.Input) > 0 {
					_ = json.Unmarshal(block.Input, &args)
				}
				toolCalls = append(toolCalls, llmcall.ToolCall{ID: block.ID, Name: block.Name, Args: args})
			}
		}
	}

	finish := "stop"
	switch {
	case len(toolCalls) > 0:
		finish = "tool_calls"
	case resp.StopReason == "max_tokens":
		finish = "length"
	case resp.StopReason == "content_filtered":
		finish = "content_filter"
	}

	return llmcall.Response{
		Content:      text,
		ToolCalls:    toolCalls,
		Usage:        llmcall.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
		FinishReason: finish,
	}, nil
}

// Stream implements llmcall.Client using Anthropic's callback-based
// streaming API, adapted to the channel shape llmcall.Client expects.
func (c *AnthropicClient) Stream(ctx context.Context, model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (<-chan llmcall.TextChunk, <-chan llmcall.StreamResult) {
	chunks := make(chan llmcall.TextChunk, 16)
	done := make(chan llmcall.StreamResult, 1)

	go func() {
		defer close(chunks)
		defer close(done)

		systemParts, msgs := toAnthropicMessages(messages)
		toolDefs, err := toAnthropicTools(tools)
		if err != nil {
			done <- llmcall.StreamResult{Err: err}
			return
		}

		maxTokens := 4096
		if opts.MaxOutputTokens > 0 {
			maxTokens = opts.MaxOutputTokens
		}
		temperature := float32(0.1)
		if opts.Temperature > 0 {
			temperature = opts.Temperature
		}

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:       anthropic.Model(model),
				Messages:    msgs,
				MaxTokens:   maxTokens,
				Temperature: &temperature,
			},
		}
		if len(systemParts) > 0 {
			req.MultiSystem = systemParts
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
		}

		var accText string
		var accToolCalls []llmcall.ToolCall

		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				accText += *delta.Delta.Text
				select {
				case chunks <- llmcall.TextChunk{Text: *delta.Delta.Text}:
				case <-ctx.Done():
				}
			}
		}
		req.OnContentBlockStop = func(stop anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type == "tool_use" && content.MessageContentToolUse != nil {
				tc := content.MessageContentToolUse
				args := map[string]any{}
				if len(tc.Input) > 0 {
					_ = json.Unmarshal(tc.Input, &args)
				}
				call := llmcall.ToolCall{ID: tc.ID, Name: tc.Name, Args: args}
				accToolCalls = append(accToolCalls, call)
				select {
				case chunks <- llmcall.TextChunk{ToolCall: &call}:
				case <-ctx.Done():
				}
			}
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		if err != nil {
			status, retryAfter := extractErrorMetadata(err)
			done <- llmcall.StreamResult{Err: wrapProviderError(err, status, retryAfter)}
			return
		}

		finish := "stop"
		switch {
		case len(accToolCalls) > 0:
			finish = "tool_calls"
		case resp.StopReason == "max_tokens":
			finish = "length"
		}

		done <- llmcall.StreamResult{Response: llmcall.Response{
			Content:      accText,
			ToolCalls:    accToolCalls,
			Usage:        llmcall.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
			FinishReason: finish,
		}}
	}()

	return chunks, done
}

// statusCoder lets retryengine.Classify pull an HTTP status without a hard
// dependency on any particular SDK's error type.
type statusCoder struct {
	err        error
	status     int
	retryAfter string
}

func (s *statusCoder) Error() string   { return s.err.Error() }
func (s *statusCoder) Unwrap() error   { return s.err }
func (s *statusCoder) StatusCode() int { return s.status }

func wrapProviderError(err error, status int, retryAfter string) error {
	if status == 0 && retryAfter == "" {
		return err
	}
	return &statusCoder{err: err, status: status, retryAfter: retryAfter}
}
