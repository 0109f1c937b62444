package responses

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
	out, apiErr := Accumulate(s, "resp_1", "gemini-2.5-pro")
	require.Nil(t, apiErr)
	require.Equal(t, "message", gjson.GetBytes(out, "output.0.type").String())
	require.Equal(t, "Hi there", gjson.GetBytes(out, "output.0.content.0.text").String())
}

func TestAccumulate_FunctionCall(t *testing.T) {
	s := streamOf(
		&chunk.Chunk{Role: "assistant", ToolCall: &chunk.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", ArgumentsDelta: `{"city":"Paris"}`}},
		&chunk.Chunk{FinishReason: chunk.FinishToolCalls},
	)
	out, apiErr := Accumulate(s, "resp_1", "gemini-2.5-pro")
	require.Nil(t, apiErr)
	require.Equal(t, "function_call", gjson.GetBytes(out, "output.0.type").String())
	require.Equal(t, "get_weather", gjson.GetBytes(out, "output.0.name").String())
	require.Equal(t, "call_1", gjson.GetBytes(out, "output.0.call_id").String())
}
