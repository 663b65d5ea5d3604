package llm

import (
	"context"
	"testing"
)

func collect(s *MessageStream) []AssistantEvent {
	var out []AssistantEvent
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func TestStreamBuilderSymmetryAndIndices(t *testing.T) {
	model := &Model{ID: "m", API: APIAnthropicMessages}
	s := NewMessageStream()
	b := NewStreamBuilder(model, "a1", s)

	go func() {
		b.Start()
		b.AppendThinking("let me ")
		b.AppendThinking("think")
		b.AppendText("Hello")
		b.AppendText(" world")
		b.OpenToolCall("call_1", "search")
		b.AppendToolArgs(`{"que`)
		b.AppendToolArgs(`ry":"go"}`)
		b.Finish(StopReasonStop)
	}()

	events := collect(s)

	// Every block must have exactly one _start and one _end at the same
	// index, with deltas strictly between them.
	starts := map[int]EventType{}
	ends := map[int]EventType{}
	open := map[int]bool{}
	for _, ev := range events {
		switch ev.Type {
		case EventThinkingStart, EventTextStart, EventToolCallStart:
			if _, dup := starts[ev.ContentIndex]; dup {
				t.Fatalf("index %d started twice", ev.ContentIndex)
			}
			starts[ev.ContentIndex] = ev.Type
			open[ev.ContentIndex] = true
		case EventThinkingEnd, EventTextEnd, EventToolCallEnd:
			if !open[ev.ContentIndex] {
				t.Fatalf("index %d ended while not open", ev.ContentIndex)
			}
			if _, dup := ends[ev.ContentIndex]; dup {
				t.Fatalf("index %d ended twice", ev.ContentIndex)
			}
			ends[ev.ContentIndex] = ev.Type
			open[ev.ContentIndex] = false
		case EventThinkingDelta, EventTextDelta, EventToolCallDelta:
			if !open[ev.ContentIndex] {
				t.Fatalf("delta at index %d outside start/end", ev.ContentIndex)
			}
		}
	}
	if len(starts) != 3 || len(ends) != 3 {
		t.Fatalf("starts=%d ends=%d, want 3 each", len(starts), len(ends))
	}
	for i := 0; i < 3; i++ {
		if _, ok := starts[i]; !ok {
			t.Errorf("missing start for index %d", i)
		}
	}

	// Exactly one terminal event, and it is last.
	var terminals int
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 1 || !events[len(events)-1].Terminal() {
		t.Fatalf("terminal events = %d, last = %v", terminals, events[len(events)-1].Type)
	}

	msg, err := s.Result(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// stop must be coerced to toolUse because a tool call is present.
	if msg.StopReason != StopReasonToolUse {
		t.Errorf("StopReason = %v, want toolUse", msg.StopReason)
	}
	tcs := msg.Content.ToolCalls()
	if len(tcs) != 1 || tcs[0].Arguments["query"] != "go" {
		t.Errorf("tool call = %#v", tcs)
	}
	if msg.Content.Text() != "Hello world" || msg.Content.ThinkingText() != "let me think" {
		t.Errorf("content lost: %q / %q", msg.Content.Text(), msg.Content.ThinkingText())
	}
}

func TestStreamBuilderPartialArgsProgress(t *testing.T) {
	model := &Model{ID: "m", API: APIOpenAIResponses}
	s := NewMessageStream()
	b := NewStreamBuilder(model, "a1", s)

	full := `{"query":"vitest testing"}`
	chunks := []string{`{"q`, `uery`, `":"v`, `ites`, `t te`, `stin`, `g"}`}

	go func() {
		b.Start()
		b.OpenToolCall("c1", "search")
		for _, c := range chunks {
			b.AppendToolArgs(c)
		}
		b.Finish(StopReasonToolUse)
	}()

	for ev := range s.Events() {
		if ev.Type != EventToolCallDelta {
			continue
		}
		tc := ev.Partial.Content.ToolCalls()[0]
		// At every step arguments are {} or hold a prefix of the value.
		if q, ok := tc.Arguments["query"]; ok {
			qs, isStr := q.(string)
			if !isStr || !isPrefixOf(qs, "vitest testing") {
				t.Fatalf("partial arguments regressed: %#v", tc.Arguments)
			}
		} else if len(tc.Arguments) != 0 {
			t.Fatalf("unexpected partial keys: %#v", tc.Arguments)
		}
	}

	msg, _ := s.Result(context.Background())
	tc := msg.Content.ToolCalls()[0]
	if tc.Arguments["query"] != "vitest testing" {
		t.Fatalf("final arguments = %#v, want parse of %s", tc.Arguments, full)
	}
}

func isPrefixOf(p, s string) bool {
	return len(p) <= len(s) && s[:len(p)] == p
}

func TestStreamBuilderFailKeepsPartialContent(t *testing.T) {
	model := &Model{ID: "m", API: APIAnthropicMessages}
	s := NewMessageStream()
	b := NewStreamBuilder(model, "a1", s)

	go func() {
		b.Start()
		b.AddUsage(Usage{Input: 42})
		b.AppendText("partial answ")
		b.Fail(StopReasonAborted, "context canceled")
	}()

	events := collect(s)
	last := events[len(events)-1]
	if last.Type != EventError || last.Reason != StopReasonAborted {
		t.Fatalf("terminal event = %+v", last)
	}

	msg, _ := s.Result(context.Background())
	if msg.StopReason != StopReasonAborted || msg.Content.Text() != "partial answ" {
		t.Errorf("partial content dropped: %+v", msg)
	}
	if msg.Usage.Input != 42 {
		t.Errorf("usage lost: %+v", msg.Usage)
	}
}
