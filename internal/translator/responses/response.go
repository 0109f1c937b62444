package responses

import (
	"encoding/json"

	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

// Accumulate consumes stream to completion and builds a single non-streaming
// Responses API "response" object (spec.md §4.3 "Response mapping
// (non-streaming path)").
func Accumulate(stream *chunk.Stream, responseID, model string) ([]byte, *apierror.Error) {
	out := []byte(`{"id":"","object":"response","status":"completed","output":[]}`)
	out, _ = sjson.SetBytes(out, "id", responseID)
	out, _ = sjson.SetBytes(out, "model", model)

	var text string
	type toolAcc struct {
		id, name, args string
	}
	byIndex := map[int]*toolAcc{}
	var toolOrder []*toolAcc
	var usage *chunk.Usage

	for c := range stream.Chunks {
		if c.Content != "" && !c.Thought {
			text += c.Content
		}
		if c.ToolCall != nil {
			acc, ok := byIndex[c.ToolCall.Index]
			if !ok {
				acc = &toolAcc{}
				byIndex[c.ToolCall.Index] = acc
				toolOrder = append(toolOrder, acc)
			}
			if c.ToolCall.ID != "" {
				acc.id = c.ToolCall.ID
			}
			if c.ToolCall.Name != "" {
				acc.name = c.ToolCall.Name
			}
			acc.args += c.ToolCall.ArgumentsDelta
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}

	if err := <-stream.Err; err != nil {
		if apiErr, ok := apierror.As(err); ok {
			return nil, apiErr
		}
		return nil, apierror.Wrap(apierror.UpstreamError, "upstream stream failed", err)
	}

	var output []map[string]any
	if text != "" || len(toolOrder) == 0 {
		output = append(output, map[string]any{
			"type":   "message",
			"status": "completed",
			"role":   "assistant",
			"content": []map[string]any{
				{"type": "output_text", "text": text},
			},
		})
	}
	for _, tc := range toolOrder {
		output = append(output, map[string]any{
			"type":      "function_call",
			"status":    "completed",
			"call_id":   tc.id,
			"name":      tc.name,
			"arguments": tc.args,
		})
	}

	outputJSON, err := json.Marshal(output)
	if err != nil {
		return nil, apierror.Wrap(apierror.UpstreamError, "failed to marshal output items", err)
	}
	out, _ = sjson.SetRawBytes(out, "output", outputJSON)

	if usage != nil {
		out, _ = sjson.SetBytes(out, "usage.input_tokens", usage.PromptTokens)
		out, _ = sjson.SetBytes(out, "usage.output_tokens", usage.CompletionTokens)
	}

	return out, nil
}
