package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

func gptModel() *llm.Model {
	return &llm.Model{
		ID: "gpt-5.1", API: llm.APIOpenAIResponses,
		Reasoning:       true,
		InputModalities: []llm.Modality{llm.ModalityText, llm.ModalityImage},
		Capabilities:    []string{llm.CapabilityFunctionCalling},
		MaxTokens:       8192,
	}
}

func TestBuildRequestDeveloperRole(t *testing.T) {
	model := gptModel()
	lc := llm.Context{
		SystemPrompt: "Be terse.",
		Messages: []llm.Message{
			&llm.UserMessage{ID: "u1", Content: llm.Content{llm.TextContent{Text: "hi"}}},
		},
		Tools: []llm.ToolDefinition{{Name: "search", Parameters: []byte(`{"type":"object"}`)}},
	}
	req, err := buildRequest(model, lc, llm.StreamOptions{MaxTokens: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if req.MaxOutputTokens != 1024 || !req.Stream {
		t.Errorf("caps: %+v", req)
	}
	if len(req.Input) != 2 {
		t.Fatalf("input items = %d", len(req.Input))
	}
	if req.Input[0].Role != "developer" || req.Input[0].Type != "message" {
		t.Errorf("system item = %+v", req.Input[0])
	}
	var parts []contentPart
	if err := json.Unmarshal(req.Input[0].Content, &parts); err != nil || parts[0].Text != "Be terse." {
		t.Errorf("system content = %s", req.Input[0].Content)
	}
	if req.Reasoning == nil || req.Reasoning.Effort != "medium" || req.Reasoning.Summary != "auto" {
		t.Errorf("reasoning = %+v", req.Reasoning)
	}
	if len(req.Tools) != 1 || req.Tools[0].Type != "function" {
		t.Errorf("tools = %+v", req.Tools)
	}
}

func TestEffortForBudget(t *testing.T) {
	tests := []struct {
		budget int
		want   string
	}{
		{0, "medium"}, {1024, "low"}, {4096, "medium"}, {32768, "high"},
	}
	for _, tt := range tests {
		if got := effortForBudget(tt.budget); got != tt.want {
			t.Errorf("effortForBudget(%d) = %q, want %q", tt.budget, got, tt.want)
		}
	}
}

func TestConvertToolResultSplitsCompoundID(t *testing.T) {
	items, err := convertMessage(gptModel(), &llm.ToolResultMessage{
		ID: "t1", ToolCallID: "call_abc|item_xyz", ToolName: "search",
		Content: llm.Content{llm.TextContent{Text: "boom"}},
		IsError: true,
	})
	if err != nil || len(items) != 1 {
		t.Fatalf("items=%d err=%v", len(items), err)
	}
	if items[0].Type != "function_call_output" || items[0].CallID != "call_abc" {
		t.Errorf("item = %+v", items[0])
	}
	if items[0].Output != "[TOOL ERROR] boom" {
		t.Errorf("output = %q", items[0].Output)
	}
}

func TestTranslateAssistantOrdering(t *testing.T) {
	items, err := translateAssistant(&llm.AssistantMessage{
		ID: "a1", API: llm.APIAnthropicMessages,
		Content: llm.AssistantContent{
			llm.ThinkingBlock{Text: "ponder"},
			llm.ResponseBlock{Content: llm.Content{llm.TextContent{Text: "first"}}},
			llm.ToolCallBlock{CallID: "call_1|item_1", Name: "search", Arguments: map[string]any{"q": "go"}},
			llm.ResponseBlock{Content: llm.Content{llm.TextContent{Text: "second"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// text before the call, the call, text after: three items
	if len(items) != 3 {
		t.Fatalf("items = %d: %+v", len(items), items)
	}
	var parts []contentPart
	if err := json.Unmarshal(items[0].Content, &parts); err != nil || len(parts) != 2 {
		t.Fatalf("leading message parts = %+v", parts)
	}
	if parts[0].Text != "<thinking>\nponder\n</thinking>" {
		t.Errorf("thinking wrap = %q", parts[0].Text)
	}
	fc := items[1]
	if fc.Type != "function_call" || fc.CallID != "call_1" || fc.ID != "item_1" ||
		fc.Arguments != `{"q":"go"}` {
		t.Errorf("function call item = %+v", fc)
	}
}

func TestSplitCompoundID(t *testing.T) {
	if c, i := splitCompoundID("a|b"); c != "a" || i != "b" {
		t.Errorf("split = %q, %q", c, i)
	}
	if c, i := splitCompoundID("solo"); c != "solo" || i != "solo" {
		t.Errorf("split without separator = %q, %q", c, i)
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   string
		want llm.StopReason
		ok   bool
	}{
		{"completed", llm.StopReasonStop, true},
		{"", llm.StopReasonStop, true},
		{"incomplete", llm.StopReasonLength, true},
		{"failed", llm.StopReasonError, true},
		{"cancelled", llm.StopReasonError, true},
		{"queued", "", false},
	}
	for _, tt := range tests {
		got, ok := mapStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("mapStatus(%q) = %v, %v", tt.in, got, ok)
		}
	}
}

// scriptedServer returns an httptest server replaying the given SSE frames.
func scriptedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = w.Write([]byte("data: " + f + "\n\n"))
		}
	}))
}

func TestStreamEndToEnd(t *testing.T) {
	frames := []string{
		`{"type":"response.created"}`,
		`{"type":"response.output_item.added","item":{"id":"rs_1","type":"reasoning"}}`,
		`{"type":"response.reasoning_summary_text.delta","delta":"part one"}`,
		`{"type":"response.reasoning_summary_part.done"}`,
		`{"type":"response.reasoning_summary_text.delta","delta":"part two"}`,
		`{"type":"response.output_item.done","item":{"id":"rs_1","type":"reasoning"}}`,
		`{"type":"response.output_item.added","item":{"id":"msg_1","type":"message"}}`,
		`{"type":"response.output_text.delta","delta":"Hello "}`,
		`{"type":"response.output_text.delta","delta":"world"}`,
		`{"type":"response.output_item.done","item":{"id":"msg_1","type":"message"}}`,
		`{"type":"response.output_item.added","item":{"id":"item_9","type":"function_call","call_id":"call_9","name":"search"}}`,
		`{"type":"response.function_call_arguments.delta","delta":"{\"query\":"}`,
		`{"type":"response.function_call_arguments.delta","delta":"\"go\"}"}`,
		`{"type":"response.output_item.done","item":{"id":"item_9","type":"function_call","call_id":"call_9","name":"search"}}`,
		`{"type":"response.completed","response":{"status":"completed","usage":{"input_tokens":100,"output_tokens":20,"total_tokens":120,"input_tokens_details":{"cached_tokens":60}}}}`,
		`[DONE]`,
	}
	srv := scriptedServer(t, frames)
	defer srv.Close()

	model := gptModel()
	model.BaseURL = srv.URL
	lc := llm.Context{Messages: []llm.Message{
		&llm.UserMessage{ID: "u1", Content: llm.Content{llm.TextContent{Text: "hi"}}},
	}}

	msg, err := Complete(context.Background(), model, lc, llm.StreamOptions{APIKey: "test-key"}, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content.ThinkingText() != "part one\n\npart two" {
		t.Errorf("thinking = %q", msg.Content.ThinkingText())
	}
	if msg.Content.Text() != "Hello world" {
		t.Errorf("text = %q", msg.Content.Text())
	}
	tcs := msg.Content.ToolCalls()
	if len(tcs) != 1 || tcs[0].CallID != "call_9|item_9" || tcs[0].Arguments["query"] != "go" {
		t.Errorf("tool calls = %+v", tcs)
	}
	// tool call present forces toolUse even though status was completed
	if msg.StopReason != llm.StopReasonToolUse {
		t.Errorf("StopReason = %v", msg.StopReason)
	}
	if msg.Usage.Input != 40 || msg.Usage.CacheRead != 60 || msg.Usage.Output != 20 {
		t.Errorf("usage = %+v", msg.Usage)
	}
	if items, ok := msg.NativeMessage.([]inputItem); !ok || len(items) == 0 {
		t.Errorf("native items = %#v", msg.NativeMessage)
	}
}

func TestStreamHTTPErrorNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	model := gptModel()
	model.BaseURL = srv.URL
	lc := llm.Context{Messages: []llm.Message{
		&llm.UserMessage{ID: "u1", Content: llm.Content{llm.TextContent{Text: "hi"}}},
	}}

	msg, err := Complete(context.Background(), model, lc, llm.StreamOptions{APIKey: "test-key"}, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.StopReason != llm.StopReasonError {
		t.Fatalf("StopReason = %v", msg.StopReason)
	}
	if msg.ErrorMessage != "400 status code (no body)" {
		t.Errorf("error message = %q", msg.ErrorMessage)
	}
	if !llm.IsContextOverflow(msg, 0) {
		t.Error("bare 400 should classify as overflow")
	}
}
