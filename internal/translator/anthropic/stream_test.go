package anthropic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

func TestEmitter_TextLifecycle(t *testing.T) {
	e := NewEmitter("msg_1", "gemini-2.5-pro")

	out := string(e.Emit(&chunk.Chunk{Role: "assistant", Content: "Hi "}))
	require.Contains(t, out, "event: message_start")
	require.Contains(t, out, "event: content_block_start")
	require.Contains(t, out, `"type":"text"`)
	require.Contains(t, out, "event: content_block_delta")

	out2 := string(e.Emit(&chunk.Chunk{Content: "there"}))
	require.NotContains(t, out2, "message_start")
	require.NotContains(t, out2, "content_block_start")

	out3 := string(e.Emit(&chunk.Chunk{FinishReason: chunk.FinishStop, Usage: &chunk.Usage{PromptTokens: 1, CompletionTokens: 2}}))
	require.Contains(t, out3, "event: content_block_stop")
	require.Contains(t, out3, "event: message_delta")
	require.Contains(t, out3, `"stop_reason":"end_turn"`)
	require.Contains(t, out3, "event: message_stop")
}

func TestEmitter_ThinkingThenToolUse(t *testing.T) {
	e := NewEmitter("msg_1", "gemini-2.5-pro")
	sig := strings.Repeat("a", 120)

	out1 := string(e.Emit(&chunk.Chunk{Role: "assistant", Content: "let me check", Thought: true, ThinkingStart: true, ThoughtSignature: sig}))
	require.Contains(t, out1, `"type":"thinking"`)
	require.Contains(t, out1, "thinking_delta")

	out2 := string(e.Emit(&chunk.Chunk{ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", ArgumentsDelta: `{"city":"Paris"}`}}))
	require.Contains(t, out2, "signature_delta")
	require.Contains(t, out2, sig)
	require.Contains(t, out2, "content_block_stop")
	require.Contains(t, out2, `"type":"tool_use"`)
	require.Contains(t, out2, "get_weather")
	require.Contains(t, out2, "input_json_delta")

	out3 := string(e.Emit(&chunk.Chunk{FinishReason: chunk.FinishToolCalls}))
	require.Contains(t, out3, `"stop_reason":"tool_use"`)
}

func TestEmitter_EmptyResponsePlaceholder(t *testing.T) {
	e := NewEmitter("msg_1", "gemini-2.5-pro")
	out := string(e.Emit(&chunk.Chunk{FinishReason: chunk.FinishStop}))
	require.Contains(t, out, "[No response received - please try again]")
	require.Contains(t, out, "event: message_start")
}
