package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuildGeminiRequest_RequiresMaxTokens(t *testing.T) {
	_, apiErr := BuildGeminiRequest([]byte(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}]}`))
	require.NotNil(t, apiErr)
	require.Equal(t, "invalid_request", string(apiErr.Kind))
}

func TestBuildGeminiRequest_SystemAndUser(t *testing.T) {
	req := []byte(`{"max_tokens":1024,"system":"be terse","messages":[{"role":"user","content":"hello"}]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, "be terse", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())
	require.Equal(t, "hello", gjson.GetBytes(out, "contents.0.parts.0.text").String())
	require.EqualValues(t, 1024, gjson.GetBytes(out, "generationConfig.maxOutputTokens").Int())
}

func TestBuildGeminiRequest_ThinkingBlocksDropped(t *testing.T) {
	req := []byte(`{"max_tokens":1024,"messages":[
		{"role":"user","content":"weather?"},
		{"role":"assistant","content":[{"type":"thinking","thinking":"secret reasoning"},{"type":"text","text":"sunny"}]}
	]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	parts := gjson.GetBytes(out, "contents.1.parts").Array()
	require.Len(t, parts, 1)
	require.Equal(t, "sunny", parts[0].Get("text").String())
}

func TestBuildGeminiRequest_ToolUseEchoStampsSkipSignature(t *testing.T) {
	req := []byte(`{"max_tokens":1024,"messages":[
		{"role":"user","content":"weather?"},
		{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"city":"Paris"}}]},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"sunny"}]}
	]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, skipThoughtSignatureValidator, gjson.GetBytes(out, "contents.1.parts.0.thoughtSignature").String())
	require.Equal(t, "get_weather", gjson.GetBytes(out, "contents.1.parts.0.functionCall.name").String())
	require.Equal(t, "get_weather", gjson.GetBytes(out, "contents.2.parts.0.functionResponse.name").String())
	require.Equal(t, "sunny", gjson.GetBytes(out, "contents.2.parts.0.functionResponse.response.result").String())
}

func TestBuildGeminiRequest_EmptyTurnPadded(t *testing.T) {
	req := []byte(`{"max_tokens":1024,"messages":[{"role":"assistant","content":[{"type":"thinking","thinking":"only reasoning"}]}]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, ".", gjson.GetBytes(out, "contents.0.parts.0.text").String())
}

func TestBuildGeminiRequest_InterleavedThinkingHintWithTools(t *testing.T) {
	req := []byte(`{"max_tokens":1024,"messages":[{"role":"user","content":"hi"}],
		"tools":[{"name":"get_weather","description":"d","input_schema":{"type":"object"}}]
	}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Contains(t, gjson.GetBytes(out, "systemInstruction.parts.0.text").String(), "Interleaved thinking")
	require.Equal(t, "get_weather", gjson.GetBytes(out, "tools.0.functionDeclarations.0.name").String())
}
