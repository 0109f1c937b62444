package openai

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
	out, apiErr := Accumulate(s, "chatcmpl-1", "gemini-2.5-pro", 100)
	require.Nil(t, apiErr)
	require.Equal(t, "Hi there", gjson.GetBytes(out, "choices.0.message.content").String())
	require.Equal(t, "stop", gjson.GetBytes(out, "choices.0.finish_reason").String())
	require.EqualValues(t, 3, gjson.GetBytes(out, "usage.total_tokens").Int())
}

func TestAccumulate_ToolCalls(t *testing.T) {
	s := streamOf(
		&chunk.Chunk{Role: "assistant", ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", ArgumentsDelta: `{"city":`}},
		&chunk.Chunk{ToolCall: &chunk.ToolCallDelta{Index: 0, ArgumentsDelta: `"Paris"}`}},
		&chunk.Chunk{FinishReason: chunk.FinishToolCalls},
	)
	out, apiErr := Accumulate(s, "chatcmpl-1", "gemini-2.5-pro", 100)
	require.Nil(t, apiErr)
	require.Equal(t, "call_1", gjson.GetBytes(out, "choices.0.message.tool_calls.0.id").String())
	require.JSONEq(t, `{"city":"Paris"}`, gjson.GetBytes(out, "choices.0.message.tool_calls.0.function.arguments").String())
	require.Equal(t, "tool_calls", gjson.GetBytes(out, "choices.0.finish_reason").String())
}
