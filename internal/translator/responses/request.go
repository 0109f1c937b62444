// Package responses implements the OpenAI Responses API request mapper
// and item-lifecycle SSE re-emitter (spec.md §4.3, §4.6). The request side
// is the two-stage Responses -> Chat -> Gemini adapter spec.md names:
// grouping adjacent `function_call` input items into one assistant message
// with aggregated `tool_calls`, and turning `function_call_output` items
// into `tool` messages keyed by `call_id`. Grounded on the teacher's
// internal/translator/gemini-cli/openai/responses/cli_openai-responses_request.go,
// which delegates to a two-stage Responses->Gemini pipeline the teacher's
// snapshot doesn't carry the Chat-shaped middle stage of; this package
// writes that middle stage explicitly and then hands off to
// internal/translator/openai's existing Gemini mapper instead of
// duplicating its field-by-field construction.
package responses

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/translator/openai"
)

// BuildGeminiRequest converts a Responses API request body into the Gemini
// canonical request object via the Chat-Completions-shaped intermediate.
func BuildGeminiRequest(rawJSON []byte) ([]byte, *apierror.Error) {
	chatJSON, err := toChatRequest(rawJSON)
	if err != nil {
		return nil, apierror.Wrap(apierror.InvalidRequest, "failed to adapt Responses request", err)
	}
	return openai.BuildGeminiRequest(chatJSON)
}

// toChatRequest builds an OpenAI Chat-Completions-shaped request from a
// Responses API request.
func toChatRequest(rawJSON []byte) ([]byte, error) {
	out := []byte(`{"messages":[]}`)
	var err error

	if model := gjson.GetBytes(rawJSON, "model"); model.Exists() {
		out, err = sjson.SetBytes(out, "model", model.String())
		if err != nil {
			return nil, err
		}
	}
	if tr := gjson.GetBytes(rawJSON, "temperature"); tr.Exists() {
		out, _ = sjson.SetBytes(out, "temperature", tr.Num)
	}
	if mt := gjson.GetBytes(rawJSON, "max_output_tokens"); mt.Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", mt.Int())
	}
	if re := gjson.GetBytes(rawJSON, "reasoning.effort"); re.Exists() {
		out, _ = sjson.SetBytes(out, "reasoning_effort", re.String())
	}

	if instructions := gjson.GetBytes(rawJSON, "instructions"); instructions.Exists() && instructions.String() != "" {
		sysMsg := []byte(`{"role":"system"}`)
		sysMsg, _ = sjson.SetBytes(sysMsg, "content", instructions.String())
		out, err = sjson.SetRawBytes(out, "messages.-1", sysMsg)
		if err != nil {
			return nil, err
		}
	}

	out, err = appendInputItems(out, rawJSON)
	if err != nil {
		return nil, err
	}

	out, err = appendTools(out, rawJSON)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// appendInputItems walks the Responses "input" array, grouping adjacent
// function_call items into one assistant message with aggregated
// tool_calls and turning function_call_output items into tool messages
// (spec.md §4.3's "OpenAI-Responses -> OpenAI-Chat adapter").
func appendInputItems(out, rawJSON []byte) ([]byte, error) {
	input := gjson.GetBytes(rawJSON, "input")
	if input.Type == gjson.String {
		msg := []byte(`{"role":"user"}`)
		msg, _ = sjson.SetBytes(msg, "content", input.String())
		return sjson.SetRawBytes(out, "messages.-1", msg)
	}
	if !input.IsArray() {
		return out, nil
	}

	items := input.Array()
	var err error
	var pendingCalls []gjson.Result

	flushCalls := func() error {
		if len(pendingCalls) == 0 {
			return nil
		}
		msg := []byte(`{"role":"assistant","content":null,"tool_calls":[]}`)
		for i, call := range pendingCalls {
			tc := []byte(`{"type":"function","id":"","function":{"name":"","arguments":""}}`)
			tc, _ = sjson.SetBytes(tc, "id", call.Get("call_id").String())
			tc, _ = sjson.SetBytes(tc, "function.name", call.Get("name").String())
			tc, _ = sjson.SetBytes(tc, "function.arguments", call.Get("arguments").String())
			msg, err = sjson.SetRawBytes(msg, msgToolCallPath(i), tc)
			if err != nil {
				return err
			}
		}
		out, err = sjson.SetRawBytes(out, "messages.-1", msg)
		pendingCalls = nil
		return err
	}

	for _, item := range items {
		switch item.Get("type").String() {
		case "function_call":
			pendingCalls = append(pendingCalls, item)
			continue
		case "function_call_output":
			if ferr := flushCalls(); ferr != nil {
				return nil, ferr
			}
			msg := []byte(`{"role":"tool"}`)
			msg, _ = sjson.SetBytes(msg, "tool_call_id", item.Get("call_id").String())
			msg, _ = sjson.SetBytes(msg, "content", item.Get("output").String())
			out, err = sjson.SetRawBytes(out, "messages.-1", msg)
			if err != nil {
				return nil, err
			}
			continue
		}

		if ferr := flushCalls(); ferr != nil {
			return nil, ferr
		}

		role := item.Get("role").String()
		if role == "" {
			role = "user"
		}
		content := item.Get("content")
		msg := []byte(`{}`)
		msg, _ = sjson.SetBytes(msg, "role", role)
		if content.Type == gjson.String {
			msg, _ = sjson.SetBytes(msg, "content", content.String())
		} else if content.IsArray() {
			text := ""
			for _, part := range content.Array() {
				switch part.Get("type").String() {
				case "input_text", "output_text", "text":
					text += part.Get("text").String()
				}
			}
			msg, _ = sjson.SetBytes(msg, "content", text)
		}
		out, err = sjson.SetRawBytes(out, "messages.-1", msg)
		if err != nil {
			return nil, err
		}
	}

	return out, flushCalls()
}

func msgToolCallPath(i int) string {
	return "tool_calls." + strconv.Itoa(i)
}

func appendTools(out, rawJSON []byte) ([]byte, error) {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.IsArray() || len(tools.Array()) == 0 {
		return out, nil
	}
	var err error
	out, err = sjson.SetRawBytes(out, "tools", []byte(`[]`))
	if err != nil {
		return out, err
	}
	for _, t := range tools.Array() {
		chatTool := []byte(`{"type":"function","function":{}}`)
		chatTool, _ = sjson.SetBytes(chatTool, "function.name", t.Get("name").String())
		chatTool, _ = sjson.SetBytes(chatTool, "function.description", t.Get("description").String())
		if params := t.Get("parameters"); params.Exists() {
			chatTool, _ = sjson.SetRawBytes(chatTool, "function.parameters", []byte(params.Raw))
		}
		out, err = sjson.SetRawBytes(out, "tools.-1", chatTool)
		if err != nil {
			return out, err
		}
	}
	if tc := gjson.GetBytes(rawJSON, "tool_choice"); tc.Exists() {
		out, err = sjson.SetRawBytes(out, "tool_choice", []byte(tc.Raw))
	}
	return out, err
}
