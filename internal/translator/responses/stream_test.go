package responses

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

func TestEmitter_Start(t *testing.T) {
	e := NewEmitter("resp_1", "gemini-2.5-pro")
	out := string(e.Start())
	require.Contains(t, out, "response.created")
	require.Contains(t, out, "response.in_progress")
}

func TestEmitter_TextLifecycle(t *testing.T) {
	e := NewEmitter("resp_1", "gemini-2.5-pro")

	out1 := string(e.Emit(&chunk.Chunk{Role: "assistant", Content: "Hi "}))
	require.Contains(t, out1, "response.output_item.added")
	require.Contains(t, out1, "response.content_part.added")
	require.Contains(t, out1, "response.output_text.delta")

	out2 := string(e.Emit(&chunk.Chunk{FinishReason: chunk.FinishStop}))
	require.Contains(t, out2, "response.output_text.done")
	require.Contains(t, out2, "response.content_part.done")
	require.Contains(t, out2, "response.output_item.done")
	require.Contains(t, out2, "response.completed")
	require.Contains(t, out2, "Hi ")
}

func TestEmitter_ToolCallFinalizesMessageFirst(t *testing.T) {
	e := NewEmitter("resp_1", "gemini-2.5-pro")
	e.Emit(&chunk.Chunk{Role: "assistant", Content: "checking"})

	out := string(e.Emit(&chunk.Chunk{ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", ArgumentsDelta: `{"city":"Paris"}`}}))
	require.Contains(t, out, "response.output_text.done")
	require.Contains(t, out, "response.output_item.added")
	require.Contains(t, out, "function_call")
	require.Contains(t, out, "response.function_call_arguments.delta")

	done := string(e.Emit(&chunk.Chunk{FinishReason: chunk.FinishToolCalls}))
	require.Contains(t, done, "response.function_call_arguments.done")
	require.Contains(t, done, "response.output_item.done")
	require.Contains(t, done, "response.completed")
}
