package openai

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

// Emitter renders the normalized chunk stream as OpenAI Chat-Completions
// SSE events (spec.md §4.6): one "chat.completion.chunk" object per chunk,
// a shared id and monotone created timestamp, a final "[DONE]" sentinel.
type Emitter struct {
	chatID  string
	model   string
	created int64

	toolIndex    map[string]int
	nextToolSlot int
}

// NewEmitter constructs an Emitter for one streaming response.
func NewEmitter(chatID, model string, created int64) *Emitter {
	return &Emitter{chatID: chatID, model: model, created: created, toolIndex: map[string]int{}}
}

// Emit renders one chunk as a single SSE "data:" frame.
func (e *Emitter) Emit(c *chunk.Chunk) []byte {
	out := []byte(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`)
	out, _ = sjson.SetBytes(out, "id", e.chatID)
	out, _ = sjson.SetBytes(out, "created", e.created)
	out, _ = sjson.SetBytes(out, "model", e.model)

	if c.Role != "" {
		out, _ = sjson.SetBytes(out, "choices.0.delta.role", c.Role)
	}
	if c.Content != "" {
		if c.Thought {
			out, _ = sjson.SetBytes(out, "choices.0.delta.reasoning_content", c.Content)
		} else {
			out, _ = sjson.SetBytes(out, "choices.0.delta.content", c.Content)
		}
	}
	if c.ToolCall != nil {
		out = e.appendToolCallDelta(out, c.ToolCall)
	}
	if c.FinishReason != "" {
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", string(c.FinishReason))
	}
	if c.Usage != nil {
		out, _ = sjson.SetBytes(out, "usage.prompt_tokens", c.Usage.PromptTokens)
		out, _ = sjson.SetBytes(out, "usage.completion_tokens", c.Usage.CompletionTokens)
		out, _ = sjson.SetBytes(out, "usage.total_tokens", c.Usage.PromptTokens+c.Usage.CompletionTokens)
	}

	return frame(out)
}

func (e *Emitter) appendToolCallDelta(out []byte, tc *chunk.ToolCallDelta) []byte {
	slot, ok := e.toolIndex[tc.ID]
	if !ok {
		slot = e.nextToolSlot
		e.nextToolSlot++
		if tc.ID != "" {
			e.toolIndex[tc.ID] = slot
		}
	}
	path := fmt.Sprintf("choices.0.delta.tool_calls.%d", slot)
	out, _ = sjson.SetBytes(out, path+".index", tc.Index)
	if tc.ID != "" {
		out, _ = sjson.SetBytes(out, path+".id", tc.ID)
		out, _ = sjson.SetBytes(out, path+".type", "function")
	}
	if tc.Name != "" {
		out, _ = sjson.SetBytes(out, path+".function.name", tc.Name)
	}
	out, _ = sjson.SetBytes(out, path+".function.arguments", tc.ArgumentsDelta)
	return out
}

// Done renders the terminating "[DONE]" sentinel (spec.md §4.6).
func (e *Emitter) Done() []byte {
	return []byte("data: [DONE]\n\n")
}

func frame(payload []byte) []byte {
	return append(append([]byte("data: "), payload...), []byte("\n\n")...)
}
