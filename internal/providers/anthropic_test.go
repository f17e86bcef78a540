package providers

import (
	"testing"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

func TestToAnthropicMessagesSplitsSystemFromTurns(t *testing.T) {
	messages := []llmcall.Message{
		{Role: llmcall.RoleSystem, Content: "you are an analyst"},
		{Role: llmcall.RoleUser, Content: "summarize AAPL"},
		{Role: llmcall.RoleAssistant, Content: "here you go"},
	}

	systemParts, out := toAnthropicMessages(messages)
	require.Len(t, systemParts, 1)
	assert.Equal(t, "you are an analyst", systemParts[0].Text)
	require.Len(t, out, 2)
	assert.Equal(t, anthropic.RoleUser, out[0].Role)
	assert.Equal(t, anthropic.RoleAssistant, out[1].Role)
}

func TestToAnthropicMessagesCarriesToolCallsAndResults(t *testing.T) {
	messages := []llmcall.Message{
		{Role: llmcall.RoleUser, Content: "what's the margin?"},
		{Role: llmcall.RoleAssistant, ToolCalls: []llmcall.ToolCall{{ID: "call1", Name: "lookup", Args: map[string]any{"ticker": "AAPL"}}}},
		{Role: llmcall.RoleTool, Name: "call1", Content: `{"margin": 0.4}`},
	}

	_, out := toAnthropicMessages(messages)
	require.Len(t, out, 3)
	assert.Equal(t, anthropic.RoleAssistant, out[1].Role)
	require.Len(t, out[1].Content, 1)
	assert.Equal(t, anthropic.RoleUser, out[2].Role)
}

func TestToAnthropicMessagesDropsOrphanToolResult(t *testing.T) {
	messages := []llmcall.Message{
		{Role: llmcall.RoleUser, Content: "hi"},
		{Role: llmcall.RoleTool, Name: "call1", Content: "orphan result, no prior tool call"},
	}

	_, out := toAnthropicMessages(messages)
	require.Len(t, out, 1)
}

func TestToAnthropicToolsParsesValidSchemaAndRejectsInvalid(t *testing.T) {
	tools := []llmcall.ToolSchema{{
		Name:       "lookup",
		JSONSchema: `{"type":"object","properties":{"ticker":{"type":"string"}}}`,
	}}
	defs, err := toAnthropicTools(tools)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "lookup", defs[0].Name)

	_, err = toAnthropicTools([]llmcall.ToolSchema{{Name: "bad", JSONSchema: "not json"}})
	assert.Error(t, err)
}

func TestWrapProviderErrorOnlyWrapsWhenMetadataPresent(t *testing.T) {
	base := assert.AnError
	assert.Same(t, base, wrapProviderError(base, 0, ""))

	wrapped := wrapProviderError(base, 429, "2")
	var sc *statusCoder
	require.ErrorAs(t, wrapped, &sc)
	assert.Equal(t, 429, sc.StatusCode())
}
