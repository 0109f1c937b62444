package anthropic

import (
	"encoding/json"

	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

// Accumulate consumes stream to completion and builds a single non-streaming
// Anthropic "message" response object (spec.md §4.3 "Response mapping
// (non-streaming path)").
func Accumulate(stream *chunk.Stream, messageID, model string) ([]byte, *apierror.Error) {
	out := []byte(`{"type":"message","role":"assistant","content":[]}`)
	out, _ = sjson.SetBytes(out, "id", messageID)
	out, _ = sjson.SetBytes(out, "model", model)

	var content []map[string]any
	var curText string
	type toolAcc struct {
		id, name, args string
	}
	toolsByID := map[string]*toolAcc{}
	var toolOrder []*toolAcc
	var finish chunk.FinishReason
	var usage *chunk.Usage

	flushText := func() {
		if curText != "" {
			content = append(content, map[string]any{"type": "text", "text": curText})
			curText = ""
		}
	}

	for c := range stream.Chunks {
		switch {
		case c.ToolCall != nil:
			flushText()
			acc, ok := toolsByID[c.ToolCall.ID]
			if !ok {
				acc = &toolAcc{id: c.ToolCall.ID, name: c.ToolCall.Name}
				toolsByID[c.ToolCall.ID] = acc
				toolOrder = append(toolOrder, acc)
			}
			if c.ToolCall.Name != "" {
				acc.name = c.ToolCall.Name
			}
			acc.args += c.ToolCall.ArgumentsDelta
		case c.Content != "" && !c.Thought:
			curText += c.Content
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}
	flushText()

	if err := <-stream.Err; err != nil {
		if apiErr, ok := apierror.As(err); ok {
			return nil, apiErr
		}
		return nil, apierror.Wrap(apierror.UpstreamError, "upstream stream failed", err)
	}

	for _, tc := range toolOrder {
		var input any
		if tc.args != "" {
			_ = json.Unmarshal([]byte(tc.args), &input)
		}
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    tc.id,
			"name":  tc.name,
			"input": input,
		})
	}
	if len(content) == 0 {
		content = append(content, map[string]any{"type": "text", "text": "[No response received - please try again]"})
	}

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, apierror.Wrap(apierror.UpstreamError, "failed to marshal content blocks", err)
	}
	out, _ = sjson.SetRawBytes(out, "content", contentJSON)

	stopReason := "end_turn"
	switch finish {
	case chunk.FinishToolCalls:
		stopReason = "tool_use"
	case chunk.FinishLength:
		stopReason = "max_tokens"
	}
	out, _ = sjson.SetBytes(out, "stop_reason", stopReason)

	if usage != nil {
		out, _ = sjson.SetBytes(out, "usage.input_tokens", usage.PromptTokens)
		out, _ = sjson.SetBytes(out, "usage.output_tokens", usage.CompletionTokens)
	}

	return out, nil
}
