package openai

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuildGeminiRequest_SystemAndUserText(t *testing.T) {
	req := []byte(`{"model":"gpt-4","messages":[
		{"role":"system","content":"be terse"},
		{"role":"user","content":"hello"}
	]}`)

	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, "be terse", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())
	require.Equal(t, "hello", gjson.GetBytes(out, "contents.0.parts.0.text").String())
	require.Equal(t, "user", gjson.GetBytes(out, "contents.0.role").String())
}

func TestBuildGeminiRequest_ReasoningEffort(t *testing.T) {
	req := []byte(`{"messages":[{"role":"user","content":"hi"}],"reasoning_effort":"high"}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.EqualValues(t, 24576, gjson.GetBytes(out, "generationConfig.thinkingConfig.thinkingBudget").Int())
}

func TestBuildGeminiRequest_ImageDataURL(t *testing.T) {
	req := []byte(`{"messages":[{"role":"user","content":[
		{"type":"text","text":"what is this"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,QUJD"}}
	]}]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, "image/png", gjson.GetBytes(out, "contents.0.parts.1.inlineData.mimeType").String())
	require.Equal(t, "QUJD", gjson.GetBytes(out, "contents.0.parts.1.inlineData.data").String())
}

func TestBuildGeminiRequest_NonDataURLImageDropped(t *testing.T) {
	req := []byte(`{"messages":[{"role":"user","content":[
		{"type":"text","text":"look"},
		{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}
	]}]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	parts := gjson.GetBytes(out, "contents.0.parts").Array()
	require.Len(t, parts, 1)
}

func TestBuildGeminiRequest_AssistantToolCallsThenToolResult(t *testing.T) {
	req := []byte(`{"messages":[
		{"role":"user","content":"weather in Paris?"},
		{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Paris\"}"}}]},
		{"role":"tool","tool_call_id":"call_1","content":"sunny"}
	]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, "get_weather", gjson.GetBytes(out, "contents.1.parts.0.functionCall.name").String())
	require.Equal(t, "Paris", gjson.GetBytes(out, "contents.1.parts.0.functionCall.args.city").String())
	require.Equal(t, "get_weather", gjson.GetBytes(out, "contents.2.parts.0.functionResponse.name").String())
	require.Equal(t, "sunny", gjson.GetBytes(out, "contents.2.parts.0.functionResponse.response.result").String())
}

func TestBuildGeminiRequest_ToolsAndToolChoice(t *testing.T) {
	req := []byte(`{"messages":[{"role":"user","content":"hi"}],
		"tools":[{"type":"function","function":{"name":"get_weather","description":"d","parameters":{"type":"object","properties":{"city":{"type":"string"}}}}}],
		"tool_choice":{"type":"function","function":{"name":"get_weather"}}
	}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, "get_weather", gjson.GetBytes(out, "tools.0.functionDeclarations.0.name").String())
	require.Equal(t, "ANY", gjson.GetBytes(out, "toolConfig.functionCallingConfig.mode").String())
	require.Equal(t, "get_weather", gjson.GetBytes(out, "toolConfig.functionCallingConfig.allowedFunctionNames.0").String())
}
