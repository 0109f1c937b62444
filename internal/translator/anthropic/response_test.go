package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

func streamOf(chunks ...*chunk.Chunk) *chunk.Stream {
	ch := make(chan *chunk.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	errs := make(chan error, 1)
	close(errs)
	return &chunk.Stream{Chunks: ch, Err: errs}
}

func TestAccumulate_PlainText(t *testing.T) {
	s := streamOf(
		&chunk.Chunk{Role: "assistant", Content: "Hi "},
		&chunk.Chunk{Content: "there"},
		&chunk.Chunk{FinishReason: chunk.FinishStop, Usage: &chunk.Usage{PromptTokens: 1, CompletionTokens: 2}},
	)
	out, apiErr := Accumulate(s, "msg_1", "gemini-2.5-pro")
	require.Nil(t, apiErr)
	require.Equal(t, "Hi there", gjson.GetBytes(out, "content.0.text").String())
	require.Equal(t, "end_turn", gjson.GetBytes(out, "stop_reason").String())
}

func TestAccumulate_ToolUse(t *testing.T) {
	s := streamOf(
		&chunk.Chunk{Role: "assistant", ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", ArgumentsDelta: `{"city":`}},
		&chunk.Chunk{ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", ArgumentsDelta: `"Paris"}`}},
		&chunk.Chunk{FinishReason: chunk.FinishToolCalls},
	)
	out, apiErr := Accumulate(s, "msg_1", "gemini-2.5-pro")
	require.Nil(t, apiErr)
	require.Equal(t, "tool_use", gjson.GetBytes(out, "content.0.type").String())
	require.Equal(t, "get_weather", gjson.GetBytes(out, "content.0.name").String())
	require.Equal(t, "Paris", gjson.GetBytes(out, "content.0.input.city").String())
	require.Equal(t, "tool_use", gjson.GetBytes(out, "stop_reason").String())
}
