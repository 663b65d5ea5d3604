package agent

import (
	"sort"
	"sync"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// EventType tags conversation lifecycle events.
type EventType string

const (
	EventAgentStart          EventType = "agent_start"
	EventTurnStart           EventType = "turn_start"
	EventMessageStart        EventType = "message_start"
	EventMessageUpdate       EventType = "message_update"
	EventMessageEnd          EventType = "message_end"
	EventToolExecutionStart  EventType = "tool_execution_start"
	EventToolExecutionUpdate EventType = "tool_execution_update"
	EventToolExecutionEnd    EventType = "tool_execution_end"
	EventTurnEnd             EventType = "turn_end"
	EventAgentEnd            EventType = "agent_end"
)

// Event is the tagged variant delivered to subscribers. Only the fields for
// its type are set.
type Event struct {
	Type EventType

	// message_start / message_update / message_end
	Message llm.Message
	// message_update only: the underlying stream event
	StreamEvent *llm.AssistantEvent

	// tool_execution_*
	CallID   string
	ToolName string
	Args     map[string]any
	Progress string
	Result   *llm.ToolResultMessage
	IsError  bool

	// agent_end
	AgentMessages []llm.Message
}

// Subscriber receives events synchronously and in order. A panicking
// subscriber is isolated; it cannot interrupt the loop or its peers.
type Subscriber func(Event)

// bus fans events out to subscribers in registration order.
type bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Subscriber
}

func newBus() *bus {
	return &bus{subs: make(map[int]Subscriber)}
}

// subscribe registers fn and returns its unsubscribe function.
func (b *bus) subscribe(fn Subscriber) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *bus) emit(ev Event) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]Subscriber, len(ids))
	for i, id := range ids {
		subs[i] = b.subs[id]
	}
	b.mu.Unlock()

	for _, fn := range subs {
		deliver(fn, ev)
	}
}

func deliver(fn Subscriber, ev Event) {
	defer func() {
		_ = recover()
	}()
	fn(ev)
}
