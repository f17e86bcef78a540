package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

// OpenAIClient implements llmcall.Client over the OpenAI-compatible SDK.
// The same client also serves any OpenAI-compatible provider (Kimi,
// Gemini's OpenAI-compat endpoint, LM Studio) by pointing BaseURL
// elsewhere, per the provider-selection switch in factory.go.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client against apiKey, optionally overriding the
// base URL for OpenAI-compatible endpoints.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []llmcall.Message) (string, []openai.ChatCompletionMessage) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	var systemMsg string
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case llmcall.RoleSystem:
			systemMsg = msg.Content
			prevAssistantHadToolCalls = false
		case llmcall.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
			prevAssistantHadToolCalls = false
		case llmcall.RoleAssistant:
			content := msg.Content
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				toolCalls = append(toolCalls, openai.ToolCall{
					ID: tc.ID, Type: "function",
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(argsJSON)},
				})
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content, ToolCalls: toolCalls})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case llmcall.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: msg.Name, Content: content})
			if i+1 < len(messages) && messages[i+1].Role == llmcall.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return systemMsg, out
}

func toOpenAITools(tools []llmcall.ToolSchema) ([]openai.Tool, error) {
	var out []openai.Tool
	for _, ts := range tools {
		var schema map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		out = append(out, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{Name: ts.Name, Description: ts.Description, Parameters: schema},
		})
	}
	return out, nil
}

func buildChatRequest(model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (openai.ChatCompletionRequest, error) {
	systemMsg, msgs := toOpenAIMessages(messages)
	toolDefs, err := toOpenAITools(tools)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	req := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	if systemMsg != "" {
		req.Messages = append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemMsg}}, req.Messages...)
	}
	if len(toolDefs) > 0 {
		req.Tools = toolDefs
		req.ToolChoice = "auto"
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	return req, nil
}

// Chat implements llmcall.Client.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (llmcall.Response, error) {
	req, err := buildChatRequest(model, messages, tools, opts)
	if err != nil {
		return llmcall.Response{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		status, retryAfter := extractErrorMetadata(err)
		return llmcall.Response{}, wrapProviderError(err, status, retryAfter)
	}
	if len(resp.Choices) == 0 {
		return llmcall.Response{}, fmt.Errorf("empty response from provider")
	}

	choice := resp.Choices[0]
	var toolCalls []llmcall.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		toolCalls = append(toolCalls, llmcall.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	finish := "stop"
	switch {
	case len(toolCalls) > 0:
		finish = "tool_calls"
	case choice.FinishReason == openai.FinishReasonLength:
		finish = "length"
	case choice.FinishReason == openai.FinishReasonContentFilter:
		finish = "content_filter"
	}

	return llmcall.Response{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		Usage:        llmcall.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
		FinishReason: finish,
	}, nil
}

// Stream implements llmcall.Client, accumulating per-tool-call argument
// deltas (OpenAI streams function-call arguments incrementally) and
// flushing completed tool calls once the stream ends.
func (c *OpenAIClient) Stream(ctx context.Context, model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (<-chan llmcall.TextChunk, <-chan llmcall.StreamResult) {
	chunks := make(chan llmcall.TextChunk, 16)
	done := make(chan llmcall.StreamResult, 1)

	go func() {
		defer close(chunks)
		defer close(done)

		req, err := buildChatRequest(model, messages, tools, opts)
		if err != nil {
			done <- llmcall.StreamResult{Err: err}
			return
		}
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			status, retryAfter := extractErrorMetadata(err)
			done <- llmcall.StreamResult{Err: wrapProviderError(err, status, retryAfter)}
			return
		}
		defer stream.Close()

		type accumulator struct {
			name string
			id   string
			args strings.Builder
		}
		acc := map[int]*accumulator{}
		var text strings.Builder
		var usage llmcall.Usage

		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
					status, retryAfter := extractErrorMetadata(err)
					done <- llmcall.StreamResult{Err: wrapProviderError(err, status, retryAfter)}
					return
				}
				break
			}

			if resp.Usage != nil {
				usage = llmcall.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				text.WriteString(delta.Content)
				select {
				case chunks <- llmcall.TextChunk{Text: delta.Content}:
				case <-ctx.Done():
					done <- llmcall.StreamResult{Err: ctx.Err()}
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				a, ok := acc[idx]
				if !ok {
					a = &accumulator{}
					acc[idx] = a
				}
				if tc.ID != "" {
					a.id = tc.ID
				}
				if tc.Function.Name != "" {
					a.name = tc.Function.Name
				}
				a.args.WriteString(tc.Function.Arguments)
			}
		}

		var toolCalls []llmcall.ToolCall
		for _, a := range acc {
			args := map[string]any{}
			_ = json.Unmarshal([]byte(a.args.String()), &args)
			call := llmcall.ToolCall{ID: a.id, Name: a.name, Args: args}
			toolCalls = append(toolCalls, call)
			select {
			case chunks <- llmcall.TextChunk{ToolCall: &call}:
			case <-ctx.Done():
			}
		}

		finish := "stop"
		if len(toolCalls) > 0 {
			finish = "tool_calls"
		}

		done <- llmcall.StreamResult{Response: llmcall.Response{
			Content:      text.String(),
			ToolCalls:    toolCalls,
			Usage:        usage,
			FinishReason: finish,
		}}
	}()

	return chunks, done
}
