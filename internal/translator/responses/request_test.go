package responses

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuildGeminiRequest_PlainInput(t *testing.T) {
	req := []byte(`{"model":"gpt-4","instructions":"be terse","input":"hello"}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)
	require.Equal(t, "be terse", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())
	require.Equal(t, "hello", gjson.GetBytes(out, "contents.0.parts.0.text").String())
}

func TestBuildGeminiRequest_GroupsAdjacentFunctionCalls(t *testing.T) {
	req := []byte(`{"input":[
		{"role":"user","content":[{"type":"input_text","text":"weather in two cities?"}]},
		{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"Paris\"}"},
		{"type":"function_call","call_id":"call_2","name":"get_weather","arguments":"{\"city\":\"Tokyo\"}"},
		{"type":"function_call_output","call_id":"call_1","output":"sunny"},
		{"type":"function_call_output","call_id":"call_2","output":"rainy"}
	]}`)
	out, apiErr := BuildGeminiRequest(req)
	require.Nil(t, apiErr)

	require.Equal(t, "get_weather", gjson.GetBytes(out, "contents.1.parts.0.functionCall.name").String())
	require.Equal(t, "Paris", gjson.GetBytes(out, "contents.1.parts.0.functionCall.args.city").String())
	require.Equal(t, "Tokyo", gjson.GetBytes(out, "contents.1.parts.1.functionCall.args.city").String())
	require.Equal(t, "sunny", gjson.GetBytes(out, "contents.2.parts.0.functionResponse.response.result").String())
	require.Equal(t, "rainy", gjson.GetBytes(out, "contents.3.parts.0.functionResponse.response.result").String())
}
