package providers

import (
	"testing"

	"github.com/openai/openai-go/v3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpenAIResponseExtractsText(t *testing.T) {
	t.Parallel()
	resp := &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: "stop",
				Message:      openai.ChatCompletionMessage{Content: "hello there"},
			},
		},
		Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	}

	out := parseOpenAIResponse(resp)
	assert.Equal(t, "hello there", out.Content)
	assert.Equal(t, "stop", out.FinishReason)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 10, out.Usage.PromptTokens)
	assert.Equal(t, 14, out.Usage.TotalTokens)
}

func TestParseOpenAIResponseExtractsToolCall(t *testing.T) {
	t.Parallel()
	resp := &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: "tool_calls",
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ChatCompletionMessageToolCallUnion{
						{
							ID: "call_1",
							Function: openai.ChatCompletionMessageFunctionToolCallFunction{
								Name:      "search_messages",
								Arguments: `{"query":"deploy"}`,
							},
						},
					},
				},
			},
		},
	}

	out := parseOpenAIResponse(resp)
	assert.Equal(t, "tool_calls", out.FinishReason)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "search_messages", out.ToolCalls[0].Name)
	assert.Equal(t, "deploy", out.ToolCalls[0].Arguments["query"])
}

func TestParseOpenAIResponseNoChoices(t *testing.T) {
	t.Parallel()
	out := parseOpenAIResponse(&openai.ChatCompletion{})
	assert.Equal(t, "stop", out.FinishReason)
	assert.Empty(t, out.Content)
}

func TestToOpenAIMessagesTranslatesRoles(t *testing.T) {
	t.Parallel()
	messages := []Message{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "tool", Content: "result", ToolCallID: "call_1"},
	}

	out := toOpenAIMessages(messages)
	require.Len(t, out, 4)
}

func TestToOpenAIToolsTranslatesDefinitions(t *testing.T) {
	t.Parallel()
	tools := []ToolDefinition{{
		Function: FunctionSpec{
			Name:        "search_messages",
			Description: "search indexed history",
			Parameters:  map[string]interface{}{"type": "object"},
		},
	}}

	out := toOpenAITools(tools)
	require.Len(t, out, 1)
}
