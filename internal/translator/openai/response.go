package openai

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

// Accumulate consumes stream to completion and builds a single non-streaming
// OpenAI "chat.completion" response object (spec.md §4.3 "Response mapping
// (non-streaming path)").
func Accumulate(stream *chunk.Stream, chatID, model string, created int64) ([]byte, *apierror.Error) {
	out := []byte(`{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"}}]}`)
	out, _ = sjson.SetBytes(out, "id", chatID)
	out, _ = sjson.SetBytes(out, "created", created)
	out, _ = sjson.SetBytes(out, "model", model)

	var content string
	type toolCallAcc struct {
		id, name, args string
	}
	var toolCalls []*toolCallAcc
	byIndex := map[int]*toolCallAcc{}
	var finish chunk.FinishReason
	var usage *chunk.Usage

	for c := range stream.Chunks {
		if c.Content != "" && !c.Thought {
			content += c.Content
		}
		if c.ToolCall != nil {
			acc, ok := byIndex[c.ToolCall.Index]
			if !ok {
				acc = &toolCallAcc{}
				byIndex[c.ToolCall.Index] = acc
				toolCalls = append(toolCalls, acc)
			}
			if c.ToolCall.ID != "" {
				acc.id = c.ToolCall.ID
			}
			if c.ToolCall.Name != "" {
				acc.name = c.ToolCall.Name
			}
			acc.args += c.ToolCall.ArgumentsDelta
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
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

	out, _ = sjson.SetBytes(out, "choices.0.message.content", content)
	for i, tc := range toolCalls {
		path := fmt.Sprintf("choices.0.message.tool_calls.%d", i)
		out, _ = sjson.SetBytes(out, path+".id", tc.id)
		out, _ = sjson.SetBytes(out, path+".type", "function")
		out, _ = sjson.SetBytes(out, path+".function.name", tc.name)
		out, _ = sjson.SetBytes(out, path+".function.arguments", tc.args)
	}

	finishReason := string(finish)
	if finishReason == "" {
		if len(toolCalls) > 0 {
			finishReason = string(chunk.FinishToolCalls)
		} else {
			finishReason = string(chunk.FinishStop)
		}
	}
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", finishReason)

	if usage != nil {
		out, _ = sjson.SetBytes(out, "usage.prompt_tokens", usage.PromptTokens)
		out, _ = sjson.SetBytes(out, "usage.completion_tokens", usage.CompletionTokens)
		out, _ = sjson.SetBytes(out, "usage.total_tokens", usage.PromptTokens+usage.CompletionTokens)
	}

	return out, nil
}
