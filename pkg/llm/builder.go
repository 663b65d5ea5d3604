package llm

import (
	"strings"
	"time"

	"github.com/haasonsaas/omnillm/internal/partialjson"
)

// StreamBuilder assembles an AssistantMessage from provider stream events and
// emits the canonical event sequence. Adapters feed it provider deltas; it
// enforces the stream invariants so each adapter doesn't have to:
//
//   - every block gets exactly one _start and one _end, deltas in between
//   - contentIndex increases monotonically and is never reused
//   - a terminal done or error event is emitted exactly once
//   - stop is coerced to toolUse when the content holds a tool call
//   - input-side usage is captured at its earliest appearance
//   - partial content survives errors and aborts
//
// A builder is single-goroutine, owned by the adapter's stream goroutine.
type StreamBuilder struct {
	stream *MessageStream
	model  *Model
	msg    *AssistantMessage
	begun  time.Time

	// open block state; openIndex is -1 when no block is open
	openIndex int
	openType  EventType
	text      strings.Builder
	rawArgs   strings.Builder

	finished bool
}

// NewStreamBuilder returns a builder that writes into stream. The message is
// stamped with the given id and the model's identity.
func NewStreamBuilder(model *Model, id string, stream *MessageStream) *StreamBuilder {
	now := time.Now()
	return &StreamBuilder{
		stream:    stream,
		model:     model,
		begun:     now,
		openIndex: -1,
		msg: &AssistantMessage{
			ID:        id,
			API:       model.API,
			Model:     model.ID,
			Timestamp: now.UnixMilli(),
		},
	}
}

// Message returns the message under construction. Adapters use it to attach
// the provider-native form before finishing.
func (b *StreamBuilder) Message() *AssistantMessage { return b.msg }

// Start emits the initial start event.
func (b *StreamBuilder) Start() {
	b.push(AssistantEvent{Type: EventStart})
}

// AddUsage merges a streaming usage update, keeping the earliest input-side
// observations.
func (b *StreamBuilder) AddUsage(u Usage) {
	b.msg.Usage.MergeEarliest(u)
}

// OpenText closes any open block and starts a response text block.
func (b *StreamBuilder) OpenText() {
	b.open(EventTextStart, ResponseBlock{Content: Content{TextContent{}}})
}

// OpenThinking closes any open block and starts a thinking block.
func (b *StreamBuilder) OpenThinking() {
	b.open(EventThinkingStart, ThinkingBlock{})
}

// OpenToolCall closes any open block and starts a tool call block.
func (b *StreamBuilder) OpenToolCall(callID, name string) {
	b.open(EventToolCallStart, ToolCallBlock{CallID: callID, Name: name, Arguments: map[string]any{}})
}

// AppendText adds a text delta, opening a text block first if the current
// block is of a different kind.
func (b *StreamBuilder) AppendText(delta string) {
	if delta == "" {
		return
	}
	if b.openType != EventTextStart {
		b.OpenText()
	}
	b.text.WriteString(delta)
	b.msg.Content[b.openIndex] = ResponseBlock{Content: Content{TextContent{Text: b.text.String()}}}
	b.push(AssistantEvent{Type: EventTextDelta, ContentIndex: b.openIndex, Delta: delta})
}

// AppendThinking adds a thinking delta, opening a thinking block as needed.
func (b *StreamBuilder) AppendThinking(delta string) {
	if delta == "" {
		return
	}
	if b.openType != EventThinkingStart {
		b.OpenThinking()
	}
	b.text.WriteString(delta)
	b.msg.Content[b.openIndex] = ThinkingBlock{Text: b.text.String()}
	b.push(AssistantEvent{Type: EventThinkingDelta, ContentIndex: b.openIndex, Delta: delta})
}

// AppendToolArgs adds an argument JSON fragment to the open tool call block
// and refreshes Arguments with the best partial parse so far.
func (b *StreamBuilder) AppendToolArgs(delta string) {
	if b.openType != EventToolCallStart || delta == "" {
		return
	}
	b.rawArgs.WriteString(delta)
	tc := b.msg.Content[b.openIndex].(ToolCallBlock)
	tc.Arguments = partialjson.Parse(b.rawArgs.String())
	b.msg.Content[b.openIndex] = tc
	b.push(AssistantEvent{Type: EventToolCallDelta, ContentIndex: b.openIndex, Delta: delta})
}

// RawToolArgs returns the accumulated argument text of the open tool call.
func (b *StreamBuilder) RawToolArgs() string { return b.rawArgs.String() }

// CloseBlock ends the open block, emitting its _end event. For a tool call
// the accumulated argument text is parsed one final time. No-op when no block
// is open.
func (b *StreamBuilder) CloseBlock() {
	if b.openIndex < 0 {
		return
	}
	idx := b.openIndex
	var end EventType
	switch b.openType {
	case EventTextStart:
		end = EventTextEnd
	case EventThinkingStart:
		end = EventThinkingEnd
	case EventToolCallStart:
		end = EventToolCallEnd
		tc := b.msg.Content[idx].(ToolCallBlock)
		tc.Arguments = partialjson.Parse(b.rawArgs.String())
		b.msg.Content[idx] = tc
	}
	b.openIndex = -1
	b.openType = ""
	b.text.Reset()
	b.rawArgs.Reset()
	b.push(AssistantEvent{Type: end, ContentIndex: idx})
}

// Finish seals the message with the given stop reason, emits done, and ends
// the stream. A stop reason of stop is coerced to toolUse when the content
// carries tool calls.
func (b *StreamBuilder) Finish(reason StopReason) {
	if b.finished {
		return
	}
	b.CloseBlock()
	if reason == StopReasonStop && len(b.msg.Content.ToolCalls()) > 0 {
		reason = StopReasonToolUse
	}
	b.seal(reason)
	b.push(AssistantEvent{Type: EventDone, Reason: reason})
	b.finished = true
	b.stream.End(b.msg)
}

// Fail seals the message with an error or aborted stop reason, emits the
// error event, and ends the stream with whatever content accumulated.
func (b *StreamBuilder) Fail(reason StopReason, errMsg string) {
	if b.finished {
		return
	}
	b.CloseBlock()
	b.msg.ErrorMessage = errMsg
	b.seal(reason)
	b.push(AssistantEvent{Type: EventError, Reason: reason, ErrorMessage: errMsg})
	b.finished = true
	b.stream.End(b.msg)
}

func (b *StreamBuilder) seal(reason StopReason) {
	b.msg.StopReason = reason
	b.msg.DurationMS = time.Since(b.begun).Milliseconds()
	b.msg.Usage.Finalize(b.model)
}

func (b *StreamBuilder) open(start EventType, block AssistantBlock) {
	b.CloseBlock()
	b.msg.Content = append(b.msg.Content, block)
	b.openIndex = len(b.msg.Content) - 1
	b.openType = start
	b.push(AssistantEvent{Type: start, ContentIndex: b.openIndex})
}

func (b *StreamBuilder) push(ev AssistantEvent) {
	ev.Partial = b.msg.Clone()
	b.stream.Push(ev)
}
