// Package agent drives the conversation loop: model calls interleaved with
// client-side tool execution, with budget limits, queued message injection,
// and a subscriber event bus.
package agent

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/omnillm/pkg/llm"
	"github.com/haasonsaas/omnillm/pkg/llm/providers"
	"github.com/haasonsaas/omnillm/pkg/llm/toolval"
)

// QueueMode controls how many queued messages are drained per turn boundary.
type QueueMode string

const (
	QueueModeOneAtATime QueueMode = "one-at-a-time"
	QueueModeAll        QueueMode = "all"
)

// QueuedMessage pairs a caller-side original with the message injected into
// the conversation at the next turn boundary.
type QueuedMessage struct {
	Original any
	Message  llm.Message
}

// StreamFunc opens a model stream; the default dispatches on model.API.
type StreamFunc func(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.MessageStream, error)

// MessageTransformer rewrites a copy of the history before it is sent to the
// model. The stored history is untouched.
type MessageTransformer func(messages []llm.Message) []llm.Message

// Usage accumulates across prompts and survives Reset.
type Usage struct {
	TotalTokens     int
	TotalCost       float64
	LastInputTokens int
}

// Config seeds a Conversation.
type Config struct {
	Model        *llm.Model
	Options      llm.StreamOptions
	SystemPrompt string
	Tools        []Tool
	CostLimit    float64 // dollars; 0 disables
	ContextLimit int     // input tokens; 0 disables
	QueueMode    QueueMode
	Transformer  MessageTransformer
	StreamFunc   StreamFunc // defaults to providers.Stream
}

// Conversation is a stateful agent loop. One prompt runs at a time;
// concurrent prompts fail with BusyError. Setters are legal between prompts,
// QueueMessage at any time.
type Conversation struct {
	mu sync.Mutex

	model        *llm.Model
	opts         llm.StreamOptions
	systemPrompt string
	tools        []Tool
	messages     []llm.Message
	queue        []QueuedMessage
	queueMode    QueueMode
	costLimit    float64
	contextLimit int
	transformer  MessageTransformer
	streamFn     StreamFunc

	streaming bool
	idleCh    chan struct{}
	cancel    context.CancelFunc
	pending   map[string]struct{}
	lastErr   error
	usage     Usage

	bus *bus
}

// NewConversation builds a Conversation from cfg.
func NewConversation(cfg Config) *Conversation {
	mode := cfg.QueueMode
	if mode == "" {
		mode = QueueModeOneAtATime
	}
	streamFn := cfg.StreamFunc
	if streamFn == nil {
		streamFn = providers.Stream
	}
	idle := make(chan struct{})
	close(idle)
	return &Conversation{
		model:        cfg.Model,
		opts:         cfg.Options,
		systemPrompt: cfg.SystemPrompt,
		tools:        cfg.Tools,
		queueMode:    mode,
		costLimit:    cfg.CostLimit,
		contextLimit: cfg.ContextLimit,
		transformer:  cfg.Transformer,
		streamFn:     streamFn,
		idleCh:       idle,
		pending:      make(map[string]struct{}),
		bus:          newBus(),
	}
}

// Prompt appends a user message and runs the loop to completion, returning
// every message appended during this invocation.
func (c *Conversation) Prompt(ctx context.Context, text string, attachments ...llm.ContentBlock) ([]llm.Message, error) {
	content := llm.Content{llm.TextContent{Text: text}}
	content = append(content, attachments...)
	user := &llm.UserMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	return c.run(ctx, user)
}

// Continue runs the loop without adding a user message, typically after the
// caller recovered from a context overflow.
func (c *Conversation) Continue(ctx context.Context) ([]llm.Message, error) {
	return c.run(ctx, nil)
}

// Abort trips the active prompt's cancellation token. Idempotent; a no-op
// when idle.
func (c *Conversation) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WaitForIdle blocks until no prompt is running.
func (c *Conversation) WaitForIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idleCh
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset aborts any active prompt and clears messages, error state, and
// pending tool calls. Usage counters are preserved.
func (c *Conversation) Reset(ctx context.Context) error {
	c.Abort()
	if err := c.WaitForIdle(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.messages = nil
	c.pending = make(map[string]struct{})
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// Subscribe registers a subscriber and returns its unsubscribe function.
func (c *Conversation) Subscribe(fn Subscriber) func() {
	return c.bus.subscribe(fn)
}

// QueueMessage enqueues a message for injection at the next turn boundary.
// Legal at any time, including during an active prompt.
func (c *Conversation) QueueMessage(qm QueuedMessage) {
	c.mu.Lock()
	c.queue = append(c.queue, qm)
	c.mu.Unlock()
}

// Message-history mutators.

func (c *Conversation) AppendMessage(m llm.Message) { c.AppendMessages(m) }

func (c *Conversation) AppendMessages(ms ...llm.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, ms...)
	c.mu.Unlock()
}

func (c *Conversation) ReplaceMessages(ms []llm.Message) {
	c.mu.Lock()
	c.messages = slices.Clone(ms)
	c.mu.Unlock()
}

func (c *Conversation) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

func (c *Conversation) RemoveMessage(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.messages {
		if m.GetID() == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Conversation) UpdateMessage(id string, fn func(llm.Message) llm.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.messages {
		if m.GetID() == id {
			c.messages[i] = fn(m)
			return true
		}
	}
	return false
}

// Setters; legal between prompts, not during.

func (c *Conversation) SetProvider(model *llm.Model, opts llm.StreamOptions) {
	c.mu.Lock()
	c.model = model
	c.opts = opts
	c.mu.Unlock()
}

func (c *Conversation) SetTools(tools []Tool) {
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
}

func (c *Conversation) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	c.systemPrompt = prompt
	c.mu.Unlock()
}

func (c *Conversation) SetCostLimit(limit float64) {
	c.mu.Lock()
	c.costLimit = limit
	c.mu.Unlock()
}

func (c *Conversation) SetContextLimit(limit int) {
	c.mu.Lock()
	c.contextLimit = limit
	c.mu.Unlock()
}

func (c *Conversation) SetQueueMode(mode QueueMode) {
	c.mu.Lock()
	c.queueMode = mode
	c.mu.Unlock()
}

func (c *Conversation) SetTransformer(fn MessageTransformer) {
	c.mu.Lock()
	c.transformer = fn
	c.mu.Unlock()
}

// State is a consistent snapshot of the conversation.
type State struct {
	IsStreaming      bool
	Messages         []llm.Message
	PendingToolCalls []string
	Usage            Usage
	Err              error
}

// State returns a snapshot; Messages is a copied slice.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := make([]string, 0, len(c.pending))
	for id := range c.pending {
		pending = append(pending, id)
	}
	return State{
		IsStreaming:      c.streaming,
		Messages:         slices.Clone(c.messages),
		PendingToolCalls: pending,
		Usage:            c.usage,
		Err:              c.lastErr,
	}
}

// Usage returns the accumulated usage counters.
func (c *Conversation) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// run is the single entry point for Prompt and Continue.
func (c *Conversation) run(ctx context.Context, initial llm.Message) ([]llm.Message, error) {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil, &BusyError{}
	}
	c.streaming = true
	c.lastErr = nil
	c.idleCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if initial != nil {
		c.messages = append(c.messages, initial)
	}
	idle := c.idleCh
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.streaming = false
		c.cancel = nil
		c.mu.Unlock()
		close(idle)
	}()

	var appended []llm.Message
	c.bus.emit(Event{Type: EventAgentStart})
	if initial != nil {
		appended = append(appended, initial)
		c.emitComplete(initial)
	}

	err := c.loop(runCtx, &appended)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
	}
	c.bus.emit(Event{Type: EventAgentEnd, AgentMessages: appended})
	return appended, err
}

func (c *Conversation) loop(ctx context.Context, appended *[]llm.Message) error {
	for {
		c.bus.emit(Event{Type: EventTurnStart})

		c.mu.Lock()
		model := c.model
		opts := c.opts
		systemPrompt := c.systemPrompt
		tools := c.tools
		transformer := c.transformer
		costLimit, totalCost := c.costLimit, c.usage.TotalCost
		contextLimit, lastInput := c.contextLimit, c.usage.LastInputTokens
		history := slices.Clone(c.messages)
		c.mu.Unlock()

		// Pre-flight budget checks, before the model is invoked.
		if costLimit > 0 && totalCost >= costLimit {
			return &CostLimitError{Limit: costLimit, Total: totalCost}
		}
		if contextLimit > 0 && lastInput >= contextLimit {
			return &ContextLimitError{Limit: contextLimit, Tokens: lastInput}
		}

		if transformer != nil {
			history = transformer(history)
		}
		lc := llm.Context{
			SystemPrompt: systemPrompt,
			Messages:     history,
			Tools:        definitions(tools),
		}

		stream, err := c.streamFn(ctx, model, lc, opts, uuid.NewString())
		if err != nil {
			return err
		}

		started := false
		for ev := range stream.Events() {
			ev := ev
			if !started {
				started = true
				c.bus.emit(Event{Type: EventMessageStart, Message: ev.Partial})
			}
			if ev.Type == llm.EventToolCallEnd {
				if tc := toolCallAt(ev.Partial, ev.ContentIndex); tc != nil {
					c.mu.Lock()
					c.pending[tc.CallID] = struct{}{}
					c.mu.Unlock()
				}
			}
			c.bus.emit(Event{Type: EventMessageUpdate, Message: ev.Partial, StreamEvent: &ev})
		}
		// The stream has ended, so the result is immediate.
		msg, err := stream.Result(context.Background())
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.usage.TotalTokens += msg.Usage.TotalTokens
		c.usage.TotalCost += msg.Usage.Cost.Total
		c.usage.LastInputTokens = msg.Usage.Input + msg.Usage.CacheRead
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
		*appended = append(*appended, msg)
		c.bus.emit(Event{Type: EventMessageEnd, Message: msg})

		switch msg.StopReason {
		case llm.StopReasonAborted:
			c.bus.emit(Event{Type: EventTurnEnd})
			return nil
		case llm.StopReasonError:
			if llm.IsContextOverflow(msg, model.ContextWindow) {
				return &ContextOverflowError{Message: msg}
			}
			return &StreamFailedError{Message: msg}
		}
		// Silent overflow: a stop response reporting more input than fits.
		if llm.IsContextOverflow(msg, model.ContextWindow) {
			return &ContextOverflowError{Message: msg}
		}

		toolCalls := msg.Content.ToolCalls()

		// Post-flight budget checks, gated on more work remaining so a
		// final non-tool response is never cut off by a late overrun.
		c.mu.Lock()
		costLimit, totalCost = c.costLimit, c.usage.TotalCost
		contextLimit, lastInput = c.contextLimit, c.usage.LastInputTokens
		hasMore := len(toolCalls) > 0 || len(c.queue) > 0
		c.mu.Unlock()
		if hasMore {
			if costLimit > 0 && totalCost >= costLimit {
				return &CostLimitError{Limit: costLimit, Total: totalCost}
			}
			if contextLimit > 0 && lastInput >= contextLimit {
				return &ContextLimitError{Limit: contextLimit, Tokens: lastInput}
			}
		}

		// Tool calls run sequentially, in emission order.
		for _, tc := range toolCalls {
			result := c.executeToolCall(ctx, tools, tc)
			c.mu.Lock()
			c.messages = append(c.messages, result)
			delete(c.pending, tc.CallID)
			c.mu.Unlock()
			*appended = append(*appended, result)
			c.bus.emit(Event{Type: EventMessageEnd, Message: result})
		}

		drained := c.drainQueue()
		for _, m := range drained {
			c.mu.Lock()
			c.messages = append(c.messages, m)
			c.mu.Unlock()
			*appended = append(*appended, m)
			c.emitComplete(m)
		}

		c.bus.emit(Event{Type: EventTurnEnd})
		// An abort during tool execution lands here with toolUse still set;
		// starting another turn would only stream one extra aborted message.
		if ctx.Err() != nil {
			return nil
		}
		if msg.StopReason == llm.StopReasonToolUse || len(drained) > 0 {
			continue
		}
		return nil
	}
}

func (c *Conversation) executeToolCall(ctx context.Context, tools []Tool, tc llm.ToolCallBlock) *llm.ToolResultMessage {
	c.bus.emit(Event{
		Type:     EventToolExecutionStart,
		CallID:   tc.CallID,
		ToolName: tc.Name,
		Args:     tc.Arguments,
	})

	var (
		content llm.Content
		execErr error
	)
	tool := findTool(tools, tc.Name)
	if tool == nil {
		execErr = errors.New("unknown tool: " + tc.Name)
		content = llm.Content{llm.TextContent{Text: execErr.Error()}}
	} else {
		args, err := toolval.ValidateArguments(&tool.Definition, tc.Arguments)
		if err != nil {
			// Invalid arguments become an error result so the model can
			// correct itself on the next turn.
			execErr = err
			content = llm.Content{llm.TextContent{Text: err.Error()}}
		} else {
			progress := func(text string) {
				c.bus.emit(Event{
					Type:     EventToolExecutionUpdate,
					CallID:   tc.CallID,
					ToolName: tc.Name,
					Progress: text,
				})
			}
			content, execErr = tool.Execute(ctx, tc.CallID, args, progress)
			if execErr != nil {
				content = llm.Content{llm.TextContent{Text: execErr.Error()}}
			}
		}
	}

	result := &llm.ToolResultMessage{
		ID:         uuid.NewString(),
		ToolCallID: tc.CallID,
		ToolName:   tc.Name,
		Content:    content,
		IsError:    execErr != nil,
		Timestamp:  time.Now().UnixMilli(),
	}
	if execErr != nil {
		result.Error = &llm.ErrorDetail{Message: execErr.Error()}
	}

	c.bus.emit(Event{
		Type:     EventToolExecutionEnd,
		CallID:   tc.CallID,
		ToolName: tc.Name,
		Result:   result,
		IsError:  result.IsError,
	})
	return result
}

// drainQueue pops queued messages per the queue mode, FIFO.
func (c *Conversation) drainQueue() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	n := len(c.queue)
	if c.queueMode == QueueModeOneAtATime {
		n = 1
	}
	out := make([]llm.Message, 0, n)
	for _, qm := range c.queue[:n] {
		if qm.Message != nil {
			out = append(out, qm.Message)
		}
	}
	c.queue = slices.Clone(c.queue[n:])
	return out
}

// emitComplete announces a message that arrives whole, with a start/end pair.
func (c *Conversation) emitComplete(m llm.Message) {
	c.bus.emit(Event{Type: EventMessageStart, Message: m})
	c.bus.emit(Event{Type: EventMessageEnd, Message: m})
}

func toolCallAt(msg *llm.AssistantMessage, index int) *llm.ToolCallBlock {
	if msg == nil || index < 0 || index >= len(msg.Content) {
		return nil
	}
	if tc, ok := msg.Content[index].(llm.ToolCallBlock); ok {
		return &tc
	}
	return nil
}
