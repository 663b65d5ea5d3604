package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// TraceWriter records conversation events as JSONL for debugging and replay.
// Each event is one line, written immediately for crash safety. Attach it
// with conversation.Subscribe(trace.OnEvent).
type TraceWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	file    *os.File // non-nil when we own the handle
	header  traceHeader
	started bool
}

type traceHeader struct {
	Version        int    `json:"version"`
	ConversationID string `json:"conversation_id"`
	StartedAt      int64  `json:"started_at"`
}

// traceRecord is the serialized form of one event. Messages are encoded with
// their role envelope so a replay can reconstruct the concrete types.
type traceRecord struct {
	Type     EventType       `json:"type"`
	Time     int64           `json:"time"`
	Message  json.RawMessage `json:"message,omitempty"`
	Delta    string          `json:"delta,omitempty"`
	CallID   string          `json:"callId,omitempty"`
	ToolName string          `json:"toolName,omitempty"`
	Args     map[string]any  `json:"args,omitempty"`
	Progress string          `json:"progress,omitempty"`
	IsError  bool            `json:"isError,omitempty"`
	Appended int             `json:"appendedMessages,omitempty"`
}

// NewTraceWriter writes trace lines to w.
func NewTraceWriter(w io.Writer, conversationID string) *TraceWriter {
	return &TraceWriter{
		writer: w,
		header: traceHeader{
			Version:        1,
			ConversationID: conversationID,
			StartedAt:      time.Now().UnixMilli(),
		},
	}
}

// NewTraceWriterFile creates or truncates path and writes trace lines to it.
// The caller should Close when done.
func NewTraceWriterFile(path, conversationID string) (*TraceWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	t := NewTraceWriter(f, conversationID)
	t.file = f
	return t, nil
}

// OnEvent is the Subscriber; write failures are swallowed so tracing never
// gates the loop.
func (t *TraceWriter) OnEvent(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.started = true
		t.writeLine(t.header)
	}

	rec := traceRecord{
		Type:     ev.Type,
		Time:     time.Now().UnixMilli(),
		CallID:   ev.CallID,
		ToolName: ev.ToolName,
		Args:     ev.Args,
		Progress: ev.Progress,
		IsError:  ev.IsError,
		Appended: len(ev.AgentMessages),
	}
	if ev.Message != nil {
		if raw, err := llm.MarshalMessage(ev.Message); err == nil {
			rec.Message = raw
		}
	}
	if ev.StreamEvent != nil {
		rec.Delta = ev.StreamEvent.Delta
	}
	t.writeLine(rec)
}

func (t *TraceWriter) writeLine(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = t.writer.Write(data)
	_, _ = t.writer.Write([]byte("\n"))
	if t.file != nil {
		_ = t.file.Sync()
	}
}

// Close closes the trace file when one was opened.
func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		err := t.file.Close()
		t.file = nil
		return err
	}
	return nil
}
