package agent

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

func TestTraceWriterLines(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTraceWriter(&buf, "conv-1")

	tw.OnEvent(Event{Type: EventAgentStart})
	tw.OnEvent(Event{
		Type:    EventMessageStart,
		Message: &llm.UserMessage{ID: "u1", Content: llm.Content{llm.TextContent{Text: "hi"}}},
	})
	tw.OnEvent(Event{
		Type:     EventToolExecutionEnd,
		CallID:   "call_1",
		ToolName: "calculate",
		IsError:  true,
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 records", len(lines))
	}

	var header traceHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header line: %v", err)
	}
	if header.Version != 1 || header.ConversationID != "conv-1" || header.StartedAt == 0 {
		t.Errorf("header = %+v", header)
	}

	var start traceRecord
	if err := json.Unmarshal([]byte(lines[2]), &start); err != nil {
		t.Fatalf("message_start line: %v", err)
	}
	if start.Type != EventMessageStart {
		t.Errorf("Type = %q", start.Type)
	}
	if !strings.Contains(string(start.Message), `"u1"`) {
		t.Errorf("message envelope missing: %s", start.Message)
	}

	var end traceRecord
	if err := json.Unmarshal([]byte(lines[3]), &end); err != nil {
		t.Fatalf("tool_execution_end line: %v", err)
	}
	if end.CallID != "call_1" || end.ToolName != "calculate" || !end.IsError {
		t.Errorf("tool record = %+v", end)
	}
}

func TestTraceWriterHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTraceWriter(&buf, "conv-2")
	tw.OnEvent(Event{Type: EventTurnStart})
	tw.OnEvent(Event{Type: EventTurnEnd})

	if got := strings.Count(buf.String(), `"conversation_id"`); got != 1 {
		t.Errorf("header written %d times, want 1", got)
	}
}
