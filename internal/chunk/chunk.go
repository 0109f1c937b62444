// Package chunk defines the normalized internal streaming unit that flows
// between the Gemini streaming client and the dialect-specific SSE
// re-emitters. It is the pipe described by the data-flow diagram: every
// dialect's wire format is produced from this single shape, and the shape
// itself never changes to accommodate a particular dialect.
package chunk

// ToolCallDelta carries an incremental piece of a single tool call.
// Arguments arrive as a concatenation of arbitrary-length string deltas at
// one Index; the final concatenation must parse as JSON.
type ToolCallDelta struct {
	Index            int    `json:"index"`
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ArgumentsDelta   string `json:"arguments_delta,omitempty"`
	ThoughtSignature string `json:"-"`
}

// Usage mirrors spec.md's final-chunk usage payload.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// FinishReason enumerates the terminal states a response may end in.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// Chunk is the normalized internal delta. Every field is optional except
// that a Chunk carries at most one "kind" of content: text, a tool-call
// delta, or a thinking-lifecycle marker, per the ordering rules in
// spec.md §4.4.
type Chunk struct {
	// Role is set to "assistant" on the first emitted chunk of a response, and
	// left empty on every subsequent chunk (invariant 2).
	Role string `json:"role,omitempty"`

	// Content is assistant-visible text. Mutually exclusive with ToolCall and
	// the thinking markers below on any single chunk.
	Content string `json:"content,omitempty"`

	// ToolCall carries one tool-call argument delta.
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`

	// Thought is true while Content carries a reasoning delta rather than
	// user-visible text.
	Thought bool `json:"thought,omitempty"`

	// ThoughtSignature accompanies a thinking or tool-call delta when the
	// upstream attached one (spec.md's thought-signature bookkeeping).
	ThoughtSignature string `json:"thought_signature,omitempty"`

	// ThinkingStart/ThinkingEnd bracket a thinking block. Invariant 1: at most
	// one thinking block is open at a time, and no non-thinking content chunk
	// appears between a ThinkingStart and its matching ThinkingEnd.
	ThinkingStart bool `json:"-"`
	ThinkingEnd   bool `json:"-"`

	// FinishReason appears on exactly one chunk: the last (invariant 4).
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Usage appears at most once, on a chunk at or after the finish-reason
	// chunk in emission order (invariant 4).
	Usage *Usage `json:"usage,omitempty"`
}

// IsTerminal reports whether this chunk carries the response's finish
// reason.
func (c *Chunk) IsTerminal() bool {
	return c != nil && c.FinishReason != ""
}

// Stream is the single-producer, single-consumer finite sequence of
// normalized chunks produced by the Gemini streaming client. A nil error on
// the Err channel after Chunks closes means the upstream stream ended
// cleanly; a non-nil error means it ended with a failure that the fallback
// controller or the HTTP handler must decide how to surface.
type Stream struct {
	Chunks <-chan *Chunk
	Err    <-chan error
}
