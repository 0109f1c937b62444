package geminiclient

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

func drain(t *testing.T, sse string) []*chunk.Chunk {
	t.Helper()
	c := &Client{}
	chunks := make(chan *chunk.Chunk, 64)
	err := c.parseSSE(context.Background(), strings.NewReader(sse), chunks)
	require.NoError(t, err)
	close(chunks)

	var out []*chunk.Chunk
	for ch := range chunks {
		out = append(out, ch)
	}
	return out
}

// TestParseSSE_PlainText exercises spec.md §8 scenario S1: two text parts
// followed by a STOP finishReason with usage.
func TestParseSSE_PlainText(t *testing.T) {
	sse := "" +
		`data: {"response":{"candidates":[{"content":{"parts":[{"text":"Hi "}]}}]}}` + "\n\n" +
		`data: {"response":{"candidates":[{"content":{"parts":[{"text":"there"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2}}}` + "\n\n"

	chunks := drain(t, sse)
	require.Len(t, chunks, 3)

	require.Equal(t, "assistant", chunks[0].Role)
	require.Equal(t, "Hi ", chunks[0].Content)

	require.Equal(t, "", chunks[1].Role)
	require.Equal(t, "there", chunks[1].Content)

	require.Equal(t, chunk.FinishStop, chunks[2].FinishReason)
	require.NotNil(t, chunks[2].Usage)
	require.EqualValues(t, 1, chunks[2].Usage.PromptTokens)
	require.EqualValues(t, 2, chunks[2].Usage.CompletionTokens)
}

// TestParseSSE_ThinkingThenToolCall exercises spec.md §8 scenario S2's
// upstream shape: a thought part followed by a functionCall part, both
// carrying a thoughtSignature, then STOP.
func TestParseSSE_ThinkingThenToolCall(t *testing.T) {
	sig := strings.Repeat("a", 120)
	sse := `data: {"response":{"candidates":[{"content":{"parts":[` +
		`{"text":"Let me check","thought":true,"thoughtSignature":"` + sig + `"},` +
		`{"functionCall":{"name":"get_weather","args":{"city":"Paris"}},"thoughtSignature":"` + sig + `"}` +
		`]},"finishReason":"STOP"}]}}` + "\n\n"

	chunks := drain(t, sse)
	require.Len(t, chunks, 4)

	require.True(t, chunks[0].Thought)
	require.True(t, chunks[0].ThinkingStart)
	require.Equal(t, "Let me check", chunks[0].Content)
	require.Equal(t, "assistant", chunks[0].Role)

	require.True(t, chunks[1].ThinkingEnd)

	require.NotNil(t, chunks[2].ToolCall)
	require.Equal(t, "get_weather", chunks[2].ToolCall.Name)
	require.JSONEq(t, `{"city":"Paris"}`, chunks[2].ToolCall.ArgumentsDelta)

	require.Equal(t, chunk.FinishToolCalls, chunks[3].FinishReason)
}

// TestParseSSE_MaxTokens exercises spec invariant 5: a finishReason of
// MAX_TOKENS maps to chunk.FinishLength, not the default FinishStop.
func TestParseSSE_MaxTokens(t *testing.T) {
	sse := `data: {"response":{"candidates":[{"content":{"parts":[{"text":"cut off"}]},"finishReason":"MAX_TOKENS"}]}}` + "\n\n"

	chunks := drain(t, sse)
	require.Len(t, chunks, 2)
	require.Equal(t, chunk.FinishLength, chunks[1].FinishReason)
}

// TestParseSSE_Safety exercises the SAFETY finishReason mapping to
// chunk.FinishContentFilter.
func TestParseSSE_Safety(t *testing.T) {
	sse := `data: {"response":{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}}` + "\n\n"

	chunks := drain(t, sse)
	require.Len(t, chunks, 1)
	require.Equal(t, chunk.FinishContentFilter, chunks[0].FinishReason)
}

func TestParseRetryAfter_Header(t *testing.T) {
	require.Equal(t, 45, parseRetryAfter("45", nil))
}

func TestParseRetryAfter_BodyRegex(t *testing.T) {
	body := []byte(`{"error":{"message":"RESOURCE_EXHAUSTED: quota will reset in 30 minutes"}}`)
	require.Equal(t, 1800, parseRetryAfter("", body))
}

func TestParseRetryAfter_Fallback(t *testing.T) {
	require.Equal(t, 60, parseRetryAfter("", []byte("no hint here")))
}
