// Package anthropic implements the Anthropic Messages request mapper, the
// block-lifecycle SSE re-emitter, and the non-streaming response builder
// (spec.md §4.3, §4.6). Grounded on the teacher's
// internal/translator/gemini-cli/claude/code/cli_cc_request.go (request
// shape, tool_result id-suffix stripping) and cli_cc_response.go (the
// responseType/responseIndex state machine, generalized in stream.go).
package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/gemini"
	"github.com/valerka1292/gemini-cli-proxy/internal/schema"
)

// skipThoughtSignatureValidator is stamped onto echoed tool_use parts
// rebuilt from prior assistant turns (spec.md §4.3 Anthropic-specific:
// "to satisfy the validator").
const skipThoughtSignatureValidator = "skip_thought_signature_validator"

// BuildGeminiRequest converts an Anthropic Messages request body into the
// Gemini canonical request object, enforcing the required max_tokens field
// (spec.md §4.3 Anthropic-specific).
func BuildGeminiRequest(rawJSON []byte) ([]byte, *apierror.Error) {
	maxTokens := gjson.GetBytes(rawJSON, "max_tokens")
	if !maxTokens.Exists() {
		return nil, apierror.New(apierror.InvalidRequest, "max_tokens is required")
	}

	out := []byte(`{"contents":[],"generationConfig":{"thinkingConfig":{"include_thoughts":true,"thinkingBudget":-1}}}`)
	var err error
	out, _ = sjson.SetBytes(out, "generationConfig.maxOutputTokens", maxTokens.Int())

	if tr := gjson.GetBytes(rawJSON, "temperature"); tr.Exists() && tr.Type == gjson.Number {
		out, _ = sjson.SetBytes(out, "generationConfig.temperature", tr.Num)
	}
	if tpr := gjson.GetBytes(rawJSON, "top_p"); tpr.Exists() && tpr.Type == gjson.Number {
		out, _ = sjson.SetBytes(out, "generationConfig.topP", tpr.Num)
	}

	if effort := reasoningEffort(rawJSON); effort != "" {
		out, _ = sjson.SetBytes(out, "generationConfig.thinkingConfig.thinkingBudget", gemini.ReasoningBudget(effort))
	}

	hasTools := gjson.GetBytes(rawJSON, "tools").IsArray() && len(gjson.GetBytes(rawJSON, "tools").Array()) > 0

	sysText := systemText(rawJSON)
	if hasTools {
		hint := "Interleaved thinking is enabled; reason silently between tool calls without narrating intermediate steps."
		if sysText != "" {
			sysText += "\n" + hint
		} else {
			sysText = hint
		}
	}
	if sysText != "" {
		out, _ = sjson.SetBytes(out, "systemInstruction.role", "user")
		out, _ = sjson.SetBytes(out, "systemInstruction.parts.0.text", sysText)
	}

	out, apiErr := appendMessages(out, rawJSON)
	if apiErr != nil {
		return nil, apiErr
	}

	out, err = appendTools(out, rawJSON)
	if err != nil {
		return nil, apierror.Wrap(apierror.InvalidRequest, "failed to normalize tool schema", err)
	}

	out, err = appendToolChoice(out, rawJSON)
	if err != nil {
		return nil, apierror.Wrap(apierror.UpstreamError, "failed to build tool_choice", err)
	}

	return out, nil
}

func reasoningEffort(rawJSON []byte) string {
	if re := gjson.GetBytes(rawJSON, "reasoning_effort"); re.Exists() {
		return re.String()
	}
	return gjson.GetBytes(rawJSON, "reasoning.effort").String()
}

func systemText(rawJSON []byte) string {
	sys := gjson.GetBytes(rawJSON, "system")
	if sys.Type == gjson.String {
		return sys.String()
	}
	if !sys.IsArray() {
		return ""
	}
	var parts []string
	for _, item := range sys.Array() {
		if item.Get("type").String() == "text" {
			parts = append(parts, item.Get("text").String())
		}
	}
	return strings.Join(parts, "\n")
}

// appendMessages rebuilds Gemini content turns from the Anthropic message
// list, dropping inbound thinking blocks and stamping echoed tool_use parts
// with skipThoughtSignatureValidator (spec.md §4.3 Anthropic-specific).
func appendMessages(out, rawJSON []byte) ([]byte, *apierror.Error) {
	messages := gjson.GetBytes(rawJSON, "messages")
	if !messages.IsArray() {
		return out, nil
	}

	toolUseNames := map[string]string{}
	for _, m := range messages.Array() {
		for _, item := range m.Get("content").Array() {
			if item.Get("type").String() == "tool_use" {
				if id, name := item.Get("id").String(), item.Get("name").String(); id != "" && name != "" {
					toolUseNames[id] = name
				}
			}
		}
	}

	var err error
	for _, m := range messages.Array() {
		role := m.Get("role").String()
		geminiRole := "user"
		if role == "assistant" {
			geminiRole = "model"
		}

		content := m.Get("content")
		var parts []json.RawMessage

		if content.Type == gjson.String {
			parts = append(parts, textPart(content.String()))
		} else if content.IsArray() {
			for _, item := range content.Array() {
				switch item.Get("type").String() {
				case "thinking":
					// dropped per spec.md §4.3.
				case "text":
					parts = append(parts, textPart(item.Get("text").String()))
				case "tool_use":
					part, buildErr := toolUsePart(item)
					if buildErr != nil {
						return nil, apierror.Wrap(apierror.InvalidRequest, "invalid tool_use input", buildErr)
					}
					parts = append(parts, part)
				case "tool_result":
					parts = append(parts, toolResultPart(item, toolUseNames))
				case "image":
					if part, ok := imagePart(item); ok {
						parts = append(parts, part)
					}
				}
			}
		}

		if len(parts) == 0 {
			parts = append(parts, textPart("."))
		}

		node := map[string]any{"role": geminiRole, "parts": rawParts(parts)}
		nodeJSON, marshalErr := json.Marshal(node)
		if marshalErr != nil {
			return nil, apierror.Wrap(apierror.UpstreamError, "failed to build Gemini content", marshalErr)
		}
		out, err = sjson.SetRawBytes(out, "contents.-1", nodeJSON)
		if err != nil {
			return nil, apierror.Wrap(apierror.UpstreamError, "failed to append Gemini content", err)
		}
	}
	return out, nil
}

func rawParts(parts []json.RawMessage) []any {
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

func textPart(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"text": text})
	return b
}

func toolUsePart(item gjson.Result) (json.RawMessage, error) {
	var args map[string]any
	if raw := item.Get("input").Raw; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, err
		}
	}
	return json.Marshal(map[string]any{
		"functionCall": map[string]any{
			"name": item.Get("name").String(),
			"args": args,
		},
		"thoughtSignature": skipThoughtSignatureValidator,
	})
}

// toolResultPart implements spec.md §4.3's tool_result content-shape rule:
// array content concatenates text sub-parts with "\n"; string content
// becomes {result: <string>}; empty content becomes {result: "Success"}.
func toolResultPart(item gjson.Result, toolUseNames map[string]string) json.RawMessage {
	name := toolUseNames[item.Get("tool_use_id").String()]
	content := item.Get("content")

	var result string
	switch {
	case content.Type == gjson.String:
		result = content.String()
	case content.IsArray():
		var texts []string
		for _, sub := range content.Array() {
			if sub.Get("type").String() == "text" {
				texts = append(texts, sub.Get("text").String())
			}
		}
		result = strings.Join(texts, "\n")
	default:
		result = "Success"
	}
	if result == "" {
		result = "Success"
	}

	b, _ := json.Marshal(map[string]any{
		"functionResponse": map[string]any{
			"name":     name,
			"response": map[string]any{"result": result},
		},
	})
	return b
}

func imagePart(item gjson.Result) (json.RawMessage, bool) {
	src := item.Get("source")
	if src.Get("type").String() != "base64" {
		return nil, false
	}
	mime := src.Get("media_type").String()
	data := src.Get("data").String()
	if mime == "" || data == "" {
		return nil, false
	}
	b, _ := json.Marshal(map[string]any{
		"inlineData": map[string]any{"mimeType": mime, "data": data},
	})
	return b, true
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
		name := t.Get("name").String()
		if name == "" {
			continue
		}
		decl := map[string]any{
			"name":        name,
			"description": t.Get("description").String(),
		}
		if schemaResult := t.Get("input_schema"); schemaResult.Exists() {
			var raw any
			if jerr := json.Unmarshal([]byte(schemaResult.Raw), &raw); jerr == nil {
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
	return out, nil
}

func appendToolChoice(out, rawJSON []byte) ([]byte, error) {
	tc := gjson.GetBytes(rawJSON, "tool_choice")
	if !tc.Exists() {
		return out, nil
	}
	switch tc.Get("type").String() {
	case "none":
		return sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "NONE")
	case "auto":
		return sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "AUTO")
	case "any":
		return sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "ANY")
	case "tool":
		out, err := sjson.SetBytes(out, "toolConfig.functionCallingConfig.mode", "ANY")
		if err != nil {
			return out, err
		}
		if name := tc.Get("name").String(); name != "" {
			return sjson.SetBytes(out, "toolConfig.functionCallingConfig.allowedFunctionNames.0", name)
		}
		return out, nil
	}
	return out, nil
}
