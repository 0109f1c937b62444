// Package openai implements the OpenAI Chat-Completions request mapper,
// chunk SSE re-emitter, and non-streaming response accumulator (spec.md
// §4.3, §4.6). Grounded on the teacher's
// internal/translator/gemini-cli/openai/chat-completions/cli_openai_request.go
// and cli_openai_response.go: same gjson/sjson field-by-field construction,
// generalized from the teacher's flat Code Assist envelope to emitting just
// the inner Gemini "request" object (the envelope itself is built by
// internal/geminiclient).
package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/gemini"
	"github.com/valerka1292/gemini-cli-proxy/internal/schema"
)

// BuildGeminiRequest converts an OpenAI Chat-Completions request body into
// the Gemini canonical request object (spec.md §4.3 common behaviors).
func BuildGeminiRequest(rawJSON []byte) ([]byte, *apierror.Error) {
	out := []byte(`{"contents":[],"generationConfig":{"thinkingConfig":{"include_thoughts":true,"thinkingBudget":-1}}}`)
	var err error

	if tr := gjson.GetBytes(rawJSON, "temperature"); tr.Exists() && tr.Type == gjson.Number {
		out, _ = sjson.SetBytes(out, "generationConfig.temperature", tr.Num)
	}
	if tpr := gjson.GetBytes(rawJSON, "top_p"); tpr.Exists() && tpr.Type == gjson.Number {
		out, _ = sjson.SetBytes(out, "generationConfig.topP", tpr.Num)
	}
	if mt := gjson.GetBytes(rawJSON, "max_tokens"); mt.Exists() && mt.Type == gjson.Number {
		out, _ = sjson.SetBytes(out, "generationConfig.maxOutputTokens", mt.Int())
	}

	if effort := reasoningEffort(rawJSON); effort != "" {
		out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.thinkingBudget", gemini.ReasoningBudget(effort))
	}

	out, apiErr := appendMessages(out, rawJSON)
	if apiErr != nil {
		return nil, apiErr
	}

	out, err = appendTools(out, rawJSON)
	if err != nil {
		return nil, apierror.Wrap(apierror.InvalidRequest, "failed to normalize tool schema", err)
	}

	return out, nil
}

// reasoningEffort reads "reasoning_effort" or the nested "reasoning.effort"
// field (spec.md §4.3 common behaviors).
func reasoningEffort(rawJSON []byte) string {
	if re := gjson.GetBytes(rawJSON, "reasoning_effort"); re.Exists() {
		return re.String()
	}
	return gjson.GetBytes(rawJSON, "reasoning.effort").String()
}

func appendMessages(out, rawJSON []byte) ([]byte, *apierror.Error) {
	messages := gjson.GetBytes(rawJSON, "messages")
	if !messages.IsArray() {
		return out, nil
	}
	arr := messages.Array()

	toolIDToName := map[string]string{}
	for _, m := range arr {
		if m.Get("role").String() != "assistant" {
			continue
		}
		for _, tc := range m.Get("tool_calls").Array() {
			if tc.Get("type").String() != "function" {
				continue
			}
			if id, name := tc.Get("id").String(), tc.Get("function.name").String(); id != "" && name != "" {
				toolIDToName[id] = name
			}
		}
	}

	var sysParts []string
	var err error

	for _, m := range arr {
		role := m.Get("role").String()
		content := m.Get("content")

		switch role {
		case "system", "developer":
			if t := extractText(content); t != "" {
				sysParts = append(sysParts, t)
			}
		case "user":
			node, buildErr := buildUserNode(content)
			if buildErr != nil {
				return nil, apierror.Wrap(apierror.InvalidRequest, "invalid user message content", buildErr)
			}
			out, err = sjson.SetRawBytes(out, "contents.-1", node)
		case "tool":
			node := buildToolResultNode(m, toolIDToName)
			if node != nil {
				out, err = sjson.SetRawBytes(out, "contents.-1", node)
			}
		case "assistant":
			out, err = appendAssistantTurn(out, m, content)
		}
		if err != nil {
			return nil, apierror.Wrap(apierror.UpstreamError, "failed to build Gemini content", err)
		}
	}

	if len(sysParts) > 0 {
		out, err = sjson.SetBytes(out, "systemInstruction.role", "user")
		if err == nil {
			out, err = sjson.SetBytes(out, "systemInstruction.parts.0.text", strings.Join(sysParts, "\n"))
		}
		if err != nil {
			return nil, apierror.Wrap(apierror.UpstreamError, "failed to build system instruction", err)
		}
	}

	return out, nil
}

func extractText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsObject() && content.Get("type").String() == "text" {
		return content.Get("text").String()
	}
	if content.IsArray() {
		var parts []string
		for _, item := range content.Array() {
			if item.Get("type").String() == "text" {
				parts = append(parts, item.Get("text").String())
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// buildUserNode builds one Gemini "user" content turn, terminating each
// text part of a multi-part turn with "\n" if it doesn't already end with
// one (spec.md §4.3).
func buildUserNode(content gjson.Result) ([]byte, error) {
	node := []byte(`{"role":"user","parts":[]}`)
	var err error

	if content.Type == gjson.String {
		node, err = sjson.SetBytes(node, "parts.0.text", content.String())
		return node, err
	}
	if !content.IsArray() {
		return node, nil
	}

	items := content.Array()
	multi := len(items) > 1
	p := 0
	for _, item := range items {
		switch item.Get("type").String() {
		case "text":
			text := item.Get("text").String()
			if multi && text != "" && !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			node, err = sjson.SetBytes(node, fmt.Sprintf("parts.%d.text", p), text)
			p++
		case "image_url":
			mime, data, ok := parseDataURL(item.Get("image_url.url").String())
			if ok {
				node, err = sjson.SetBytes(node, fmt.Sprintf("parts.%d.inlineData.mimeType", p), mime)
				if err == nil {
					node, err = sjson.SetBytes(node, fmt.Sprintf("parts.%d.inlineData.data", p), data)
				}
				p++
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// parseDataURL parses "data:<mime>;base64,<body>"; non-data-URL images are
// dropped per spec.md §4.3.
func parseDataURL(url string) (mime, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	sep := strings.Index(rest, ",")
	if sep < 0 {
		return "", "", false
	}
	header, body := rest[:sep], rest[sep+1:]
	if !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(header, ";base64"), body, true
}

func buildToolResultNode(m gjson.Result, toolIDToName map[string]string) []byte {
	toolCallID := m.Get("tool_call_id").String()
	name, ok := toolIDToName[toolCallID]
	if !ok || toolCallID == "" {
		return nil
	}
	content := m.Get("content")
	resp := extractText(content)
	if resp == "" {
		resp = content.String()
	}
	node := []byte(`{"role":"user","parts":[{"functionResponse":{}}]}`)
	node, _ = sjson.SetBytes(node, "parts.0.functionResponse.name", name)
	node, _ = sjson.SetBytes(node, "parts.0.functionResponse.response.result", resp)
	return node
}

func appendAssistantTurn(out []byte, m, content gjson.Result) ([]byte, error) {
	var err error
	if content.Type == gjson.String && content.String() != "" {
		node := []byte(`{"role":"model","parts":[{"text":""}]}`)
		node, err = sjson.SetBytes(node, "parts.0.text", content.String())
		if err != nil {
			return out, err
		}
		return sjson.SetRawBytes(out, "contents.-1", node)
	}

	tcs := m.Get("tool_calls")
	if !tcs.IsArray() || len(tcs.Array()) == 0 {
		return out, nil
	}
	node := []byte(`{"role":"model","parts":[]}`)
	p := 0
	for _, tc := range tcs.Array() {
		if tc.Get("type").String() != "function" {
			continue
		}
		node, err = sjson.SetBytes(node, fmt.Sprintf("parts.%d.functionCall.name", p), tc.Get("function.name").String())
		if err != nil {
			return out, err
		}
		args := tc.Get("function.arguments").String()
		if args == "" {
			args = "{}"
		}
		node, err = sjson.SetRawBytes(node, fmt.Sprintf("parts.%d.functionCall.args", p), []byte(args))
		if err != nil {
			return out, err
		}
		p++
	}
	if p == 0 {
		return out, nil
	}
	return sjson.SetRawBytes(out, "contents.-1", node)
}

func appendTools(out, rawJSON []byte) ([]byte, error) {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.IsArray() || len(tools.Array()) == 0 {
		return out, nil
	}

	var err error
	out, err = sjson.SetRawBytes(out, "tools", []byte(`[{"functionDeclarations":[]}]`))
	if err != nil {
		return out, err
	}
	for _, t := range tools.Array() {
		if t.Get("type").String() != "function" {
			continue
		}
		fn := t.Get("function")
		if !fn.Exists() || !fn.IsObject() {
			continue
		}
		decl := map[string]any{
			"name":        fn.Get("name").String(),
			"description": fn.Get("description").String(),
		}
		if params := fn.Get("parameters"); params.Exists() {
			var raw any
			if jerr := json.Unmarshal([]byte(params.Raw), &raw); jerr == nil {
				decl["parameters"] = schema.NormalizeSchema(raw)
			}
		}
		declJSON, jerr := json.Marshal(decl)
		if jerr != nil {
			return out, jerr
		}
		out, err = sjson.SetRawBytes(out, "tools.0.functionDeclarations.-1", declJSON)
		if err != nil {
			return out, err
		}
	}

	return appendToolChoice(out, rawJSON)
}

// appendToolChoice implements spec.md §4.3's tool_choice mapping.
func appendToolChoice(out, rawJSON []byte) ([]byte, error) {
	tc := gjson.GetBytes(rawJSON, "tool_choice")
	if !tc.Exists() {
		return out, nil
	}

	var err error
	if tc.Type == gjson.String {
		switch strings.ToLower(tc.String()) {
		case "none":
			return sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "NONE")
		case "auto":
			return sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "AUTO")
		case "any", "required":
			return sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "ANY")
		}
		return out, nil
	}
	if tc.IsObject() && tc.Get("type").String() == "function" {
		out, err = sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "ANY")
		if err != nil {
			return out, err
		}
		name := tc.Get("function.name").String()
		if name != "" {
			return sjson.SetBytes(out, "toolConfig.functionCallingConfig.allowedFunctionNames.0", name)
		}
	}
	return out, nil
}
