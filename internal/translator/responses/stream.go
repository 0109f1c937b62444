package responses

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
)

// toolItem tracks one in-progress function_call output item, keyed by the
// chunk stream's tool-call index (spec.md §4.6 "toolCallItems keyed by
// stream index").
type toolItem struct {
	itemID      string
	callID      string
	name        string
	args        string
	outputIndex int
}

// Emitter renders the normalized chunk stream as Responses API SSE events
// (spec.md §4.6 "Responses-API SSE"), written fresh against the spec's
// literal event sequence since the teacher's snapshot carries no
// Responses-API streaming emitter to ground this on.
type Emitter struct {
	responseID string
	model      string

	outputIndex        int
	messageItemEmitted bool
	messageItemID      string
	messageText        string

	toolItems map[int]*toolItem
	toolOrder []*toolItem
}

// NewEmitter constructs an Emitter for one streaming response.
func NewEmitter(responseID, model string) *Emitter {
	return &Emitter{responseID: responseID, model: model, toolItems: map[int]*toolItem{}}
}

// Start renders the two events spec.md §4.6 emits before any item
// lifecycle begins: response.created then response.in_progress.
func (e *Emitter) Start() []byte {
	resp := `{"type":"","response":{"id":"","object":"response","status":"","model":"","output":[]}}`
	resp, _ = sjson.Set(resp, "response.id", e.responseID)
	resp, _ = sjson.Set(resp, "response.model", e.model)

	created, _ := sjson.Set(resp, "type", "response.created")
	created, _ = sjson.Set(created, "response.status", "in_progress")
	out := event("response.created", created)

	inProgress, _ := sjson.Set(resp, "type", "response.in_progress")
	inProgress, _ = sjson.Set(inProgress, "response.status", "in_progress")
	out = append(out, event("response.in_progress", inProgress)...)
	return out
}

// Emit renders the SSE events produced by one normalized chunk, in order.
func (e *Emitter) Emit(c *chunk.Chunk) []byte {
	var out []byte

	if c.IsTerminal() {
		out = append(out, e.finalizeMessageItem()...)
		out = append(out, e.finalizeAllToolItems()...)
		out = append(out, e.emitCompleted()...)
		return out
	}

	switch {
	case c.ToolCall != nil:
		out = append(out, e.finalizeMessageItem()...)
		out = append(out, e.emitToolCallDelta(c.ToolCall)...)
	case c.Content != "" && !c.Thought:
		out = append(out, e.emitTextDelta(c.Content)...)
	}

	return out
}

func (e *Emitter) emitTextDelta(text string) []byte {
	var out []byte
	if !e.messageItemEmitted {
		e.messageItemEmitted = true
		e.messageItemID = "msg_" + uuid.New().String()
		added := fmt.Sprintf(`{"type":"response.output_item.added","output_index":%d,"item":{"id":"","type":"message","status":"in_progress","role":"assistant","content":[]}}`, e.outputIndex)
		added, _ = sjson.Set(added, "item.id", e.messageItemID)
		out = append(out, event("response.output_item.added", added)...)

		part := fmt.Sprintf(`{"type":"response.content_part.added","output_index":%d,"item_id":"","content_index":0,"part":{"type":"output_text","text":""}}`, e.outputIndex)
		part, _ = sjson.Set(part, "item_id", e.messageItemID)
		out = append(out, event("response.content_part.added", part)...)
	}

	e.messageText += text
	delta := fmt.Sprintf(`{"type":"response.output_text.delta","output_index":%d,"item_id":"","content_index":0,"delta":""}`, e.outputIndex)
	delta, _ = sjson.Set(delta, "item_id", e.messageItemID)
	delta, _ = sjson.Set(delta, "delta", text)
	out = append(out, event("response.output_text.delta", delta)...)
	return out
}

// finalizeMessageItem implements the "On transition to any tool call,
// finalize the message item" rule: emits output_text.done,
// content_part.done, output_item.done, then bumps outputIndex.
func (e *Emitter) finalizeMessageItem() []byte {
	if !e.messageItemEmitted {
		return nil
	}
	var out []byte

	done := fmt.Sprintf(`{"type":"response.output_text.done","output_index":%d,"item_id":"","content_index":0,"text":""}`, e.outputIndex)
	done, _ = sjson.Set(done, "item_id", e.messageItemID)
	done, _ = sjson.Set(done, "text", e.messageText)
	out = append(out, event("response.output_text.done", done)...)

	part := fmt.Sprintf(`{"type":"response.content_part.done","output_index":%d,"item_id":"","content_index":0,"part":{"type":"output_text","text":""}}`, e.outputIndex)
	part, _ = sjson.Set(part, "item_id", e.messageItemID)
	part, _ = sjson.Set(part, "part.text", e.messageText)
	out = append(out, event("response.content_part.done", part)...)

	item := fmt.Sprintf(`{"type":"response.output_item.done","output_index":%d,"item":{"id":"","type":"message","status":"completed","role":"assistant","content":[{"type":"output_text","text":""}]}}`, e.outputIndex)
	item, _ = sjson.Set(item, "item.id", e.messageItemID)
	item, _ = sjson.Set(item, "item.content.0.text", e.messageText)
	out = append(out, event("response.output_item.done", item)...)

	e.messageItemEmitted = false
	e.outputIndex++
	return out
}

func (e *Emitter) emitToolCallDelta(tc *chunk.ToolCallDelta) []byte {
	var out []byte
	t, ok := e.toolItems[tc.Index]
	if !ok {
		t = &toolItem{itemID: "fc_" + uuid.New().String(), callID: tc.ID, name: tc.Name, outputIndex: e.outputIndex}
		e.outputIndex++
		e.toolItems[tc.Index] = t
		e.toolOrder = append(e.toolOrder, t)

		added := fmt.Sprintf(`{"type":"response.output_item.added","output_index":%d,"item":{"id":"","type":"function_call","status":"in_progress","call_id":"","name":"","arguments":""}}`, t.outputIndex)
		added, _ = sjson.Set(added, "item.id", t.itemID)
		added, _ = sjson.Set(added, "item.call_id", t.callID)
		added, _ = sjson.Set(added, "item.name", t.name)
		out = append(out, event("response.output_item.added", added)...)
	}
	if tc.ID != "" {
		t.callID = tc.ID
	}
	if tc.Name != "" {
		t.name = tc.Name
	}
	t.args += tc.ArgumentsDelta

	delta := fmt.Sprintf(`{"type":"response.function_call_arguments.delta","output_index":%d,"item_id":"","delta":""}`, t.outputIndex)
	delta, _ = sjson.Set(delta, "item_id", t.itemID)
	delta, _ = sjson.Set(delta, "delta", tc.ArgumentsDelta)
	out = append(out, event("response.function_call_arguments.delta", delta)...)
	return out
}

func (e *Emitter) finalizeAllToolItems() []byte {
	var out []byte
	for _, t := range e.toolOrder {
		done := fmt.Sprintf(`{"type":"response.function_call_arguments.done","output_index":%d,"item_id":"","arguments":""}`, t.outputIndex)
		done, _ = sjson.Set(done, "item_id", t.itemID)
		done, _ = sjson.Set(done, "arguments", t.args)
		out = append(out, event("response.function_call_arguments.done", done)...)

		item := fmt.Sprintf(`{"type":"response.output_item.done","output_index":%d,"item":{"id":"","type":"function_call","status":"completed","call_id":"","name":"","arguments":""}}`, t.outputIndex)
		item, _ = sjson.Set(item, "item.id", t.itemID)
		item, _ = sjson.Set(item, "item.call_id", t.callID)
		item, _ = sjson.Set(item, "item.name", t.name)
		item, _ = sjson.Set(item, "item.arguments", t.args)
		out = append(out, event("response.output_item.done", item)...)
	}
	return out
}

// emitCompleted emits the final response.completed event carrying the full
// assembled output array.
func (e *Emitter) emitCompleted() []byte {
	resp := `{"type":"response.completed","response":{"id":"","object":"response","status":"completed","model":"","output":[]}}`
	resp, _ = sjson.Set(resp, "response.id", e.responseID)
	resp, _ = sjson.Set(resp, "response.model", e.model)

	if e.messageText != "" || len(e.toolOrder) == 0 {
		msg := `{"id":"","type":"message","status":"completed","role":"assistant","content":[{"type":"output_text","text":""}]}`
		msg, _ = sjson.Set(msg, "id", e.messageItemID)
		msg, _ = sjson.Set(msg, "content.0.text", e.messageText)
		resp, _ = sjson.SetRaw(resp, "response.output.-1", msg)
	}
	for _, t := range e.toolOrder {
		fc := `{"id":"","type":"function_call","status":"completed","call_id":"","name":"","arguments":""}`
		fc, _ = sjson.Set(fc, "id", t.itemID)
		fc, _ = sjson.Set(fc, "call_id", t.callID)
		fc, _ = sjson.Set(fc, "name", t.name)
		fc, _ = sjson.Set(fc, "arguments", t.args)
		resp, _ = sjson.SetRaw(resp, "response.output.-1", fc)
	}

	return event("response.completed", resp)
}

func event(name, payload string) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, payload))
}
