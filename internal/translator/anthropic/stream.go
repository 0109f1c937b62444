package anthropic

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

// blockKind is the currently open content block type (spec.md §4.6's
// "block lifecycle"), mirroring the teacher's responseType int state
// machine (cli_cc_response.go) but named instead of numbered.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
	blockToolUse
)

// Emitter renders the normalized chunk stream as Anthropic Messages SSE
// events (spec.md §4.6), tracking the open block type and a monotonic
// block_index the way the teacher's responseType/responseIndex pair does,
// generalized to a real cached signature_delta instead of the teacher's
// always-null stub.
type Emitter struct {
	messageID string
	model     string

	started       bool
	anyContent    bool
	block         blockKind
	blockIndex    int
	lastSignature string
	toolIDs       map[string]string // chunk.ToolCallDelta.ID -> toolu_<hex> id
	usage         *chunk.Usage
	finish        chunk.FinishReason
}

// NewEmitter constructs an Emitter for one streaming response.
func NewEmitter(messageID, model string) *Emitter {
	return &Emitter{messageID: messageID, model: model, toolIDs: map[string]string{}}
}

// Emit renders the SSE events produced by one normalized chunk, in order.
func (e *Emitter) Emit(c *chunk.Chunk) []byte {
	var out []byte

	if c.IsTerminal() {
		out = append(out, e.emitTerminal(c)...)
		return out
	}

	if !e.started && (c.Content != "" || c.ToolCall != nil) {
		out = append(out, e.emitMessageStart()...)
	}

	switch {
	case c.ToolCall != nil:
		e.anyContent = true
		out = append(out, e.emitToolCall(c.ToolCall)...)
	case c.ThinkingEnd:
		// ThinkingEnd markers carry no content of their own; the
		// transition is handled when the next block opens (rule 3).
	case c.Content != "" && c.Thought:
		e.anyContent = true
		out = append(out, e.emitThinking(c)...)
	case c.Content != "":
		e.anyContent = true
		out = append(out, e.emitText(c)...)
	}

	return out
}

func (e *Emitter) emitMessageStart() []byte {
	e.started = true
	tmpl := `{"type":"message_start","message":{"id":"","type":"message","role":"assistant","content":[],"model":"","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":0,"output_tokens":0}}}`
	tmpl, _ = sjson.Set(tmpl, "message.id", e.messageID)
	tmpl, _ = sjson.Set(tmpl, "message.model", e.model)
	return event("message_start", tmpl)
}

func (e *Emitter) emitThinking(c *chunk.Chunk) []byte {
	var out []byte
	if e.block != blockThinking {
		out = append(out, e.closeCurrentBlock()...)
		out = append(out, e.openBlock(blockThinking, `{"type":"thinking","thinking":""}`)...)
	}
	if c.ThoughtSignature != "" {
		e.lastSignature = c.ThoughtSignature
	}
	delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"thinking_delta","thinking":""}}`, e.blockIndex)
	delta, _ = sjson.Set(delta, "delta.thinking", c.Content)
	out = append(out, event("content_block_delta", delta)...)
	return out
}

func (e *Emitter) emitText(c *chunk.Chunk) []byte {
	var out []byte
	if e.block != blockText {
		out = append(out, e.closeCurrentBlock()...)
		out = append(out, e.openBlock(blockText, `{"type":"text","text":""}`)...)
	}
	delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":""}}`, e.blockIndex)
	delta, _ = sjson.Set(delta, "delta.text", c.Content)
	out = append(out, event("content_block_delta", delta)...)
	return out
}

func (e *Emitter) emitToolCall(tc *chunk.ToolCallDelta) []byte {
	var out []byte
	id, known := e.toolIDs[tc.ID]
	if !known {
		out = append(out, e.closeCurrentBlock()...)
		id = newToolUseID()
		if tc.ID != "" {
			e.toolIDs[tc.ID] = id
		}
		block := `{"type":"tool_use","id":"","name":"","input":{}}`
		block, _ = sjson.Set(block, "id", id)
		block, _ = sjson.Set(block, "name", tc.Name)
		out = append(out, e.openBlock(blockToolUse, block)...)
	}
	delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":""}}`, e.blockIndex)
	delta, _ = sjson.Set(delta, "delta.partial_json", tc.ArgumentsDelta)
	out = append(out, event("content_block_delta", delta)...)
	return out
}

// closeCurrentBlock implements rule 3: a transition out of thinking first
// emits a signature_delta (when a signature was cached for this block),
// then every transition emits content_block_stop and bumps the index.
func (e *Emitter) closeCurrentBlock() []byte {
	if e.block == blockNone {
		return nil
	}
	var out []byte
	if e.block == blockThinking && e.lastSignature != "" {
		sig := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"signature_delta","signature":""}}`, e.blockIndex)
		sig, _ = sjson.Set(sig, "delta.signature", e.lastSignature)
		out = append(out, event("content_block_delta", sig)...)
		e.lastSignature = ""
	}
	stop := fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, e.blockIndex)
	out = append(out, event("content_block_stop", stop)...)
	e.blockIndex++
	e.block = blockNone
	return out
}

func (e *Emitter) openBlock(kind blockKind, blockJSON string) []byte {
	e.block = kind
	start := fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":%s}`, e.blockIndex, blockJSON)
	return event("content_block_start", start)
}

// emitTerminal implements rule 6/7: close any open block, emit
// message_delta with the final stop_reason and usage, then message_stop.
// If no content was ever emitted, first emit the placeholder text block
// (rule 7).
func (e *Emitter) emitTerminal(c *chunk.Chunk) []byte {
	var out []byte
	if !e.anyContent {
		out = append(out, e.emitMessageStart()...)
		out = append(out, e.openBlock(blockText, `{"type":"text","text":""}`)...)
		delta := fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":""}}`, e.blockIndex)
		delta, _ = sjson.Set(delta, "delta.text", "[No response received - please try again]")
		out = append(out, event("content_block_delta", delta)...)
	}
	out = append(out, e.closeCurrentBlock()...)

	stopReason := "end_turn"
	switch c.FinishReason {
	case chunk.FinishToolCalls:
		stopReason = "tool_use"
	case chunk.FinishLength:
		stopReason = "max_tokens"
	}

	delta := `{"type":"message_delta","delta":{"stop_reason":"","stop_sequence":null},"usage":{"input_tokens":0,"output_tokens":0,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}`
	delta, _ = sjson.Set(delta, "delta.stop_reason", stopReason)
	if c.Usage != nil {
		delta, _ = sjson.Set(delta, "usage.input_tokens", c.Usage.PromptTokens)
		delta, _ = sjson.Set(delta, "usage.output_tokens", c.Usage.CompletionTokens)
	}
	out = append(out, event("message_delta", delta)...)
	out = append(out, event("message_stop", `{"type":"message_stop"}`)...)
	return out
}

func event(name, payload string) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, payload))
}

func newToolUseID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "toolu_" + hex.EncodeToString(b)
}
