package llm

// EventType tags an AssistantEvent. Block events come in symmetric
// start/delta/end triples; done and error are terminal.
type EventType string

const (
	EventStart EventType = "start"

	EventTextStart EventType = "text_start"
	EventTextDelta EventType = "text_delta"
	EventTextEnd   EventType = "text_end"

	EventThinkingStart EventType = "thinking_start"
	EventThinkingDelta EventType = "thinking_delta"
	EventThinkingEnd   EventType = "thinking_end"

	EventToolCallStart EventType = "toolcall_start"
	EventToolCallDelta EventType = "toolcall_delta"
	EventToolCallEnd   EventType = "toolcall_end"

	EventDone  EventType = "done"
	EventError EventType = "error"
)

// AssistantEvent is one step of a streaming assistant response.
//
// ContentIndex addresses the block within the message's content array; it is
// assigned in block creation order and never reused. Partial is a snapshot of
// the message-under-construction, safe to retain across events.
type AssistantEvent struct {
	Type         EventType         `json:"type"`
	ContentIndex int               `json:"contentIndex,omitempty"`
	Delta        string            `json:"delta,omitempty"`
	Partial      *AssistantMessage `json:"partial,omitempty"`
	// Reason is set on done and error events.
	Reason StopReason `json:"reason,omitempty"`
	// ErrorMessage is set on error events.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e AssistantEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// MessageStream is the event stream produced by an adapter's streaming path.
// Its terminal result is the finalized assistant message.
type MessageStream = EventStream[AssistantEvent, *AssistantMessage]

// NewMessageStream returns an empty MessageStream.
func NewMessageStream() *MessageStream {
	return NewEventStream[AssistantEvent, *AssistantMessage]()
}
