package openai

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

func TestEmitter_RendersChatCompletionChunk(t *testing.T) {
	e := NewEmitter("chatcmpl-1", "gemini-2.5-pro", 100)
	raw := e.Emit(&chunk.Chunk{Role: "assistant", Content: "Hi "})
	payload := []byte(raw[len("data: ") : len(raw)-2])
	require.Equal(t, "chat.completion.chunk", gjson.GetBytes(payload, "object").String())
	require.Equal(t, "chatcmpl-1", gjson.GetBytes(payload, "id").String())
	require.Equal(t, "assistant", gjson.GetBytes(payload, "choices.0.delta.role").String())
	require.Equal(t, "Hi ", gjson.GetBytes(payload, "choices.0.delta.content").String())
}

func TestEmitter_ToolCallDeltaPassesThrough(t *testing.T) {
	e := NewEmitter("chatcmpl-1", "gemini-2.5-pro", 100)
	raw := e.Emit(&chunk.Chunk{ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", ArgumentsDelta: `{"city":"Paris"}`}})
	payload := raw[len("data: ") : len(raw)-2]
	require.Equal(t, "call_1", gjson.GetBytes(payload, "choices.0.delta.tool_calls.0.id").String())
	require.Equal(t, "get_weather", gjson.GetBytes(payload, "choices.0.delta.tool_calls.0.function.name").String())
	require.Equal(t, `{"city":"Paris"}`, gjson.GetBytes(payload, "choices.0.delta.tool_calls.0.function.arguments").String())
}

func TestEmitter_Done(t *testing.T) {
	e := NewEmitter("chatcmpl-1", "gemini-2.5-pro", 100)
	require.Equal(t, "data: [DONE]\n\n", string(e.Done()))
}
