package openaicompat

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

func deepseekModel() *llm.Model {
	return &llm.Model{
		ID: "deepseek-chat", API: llm.APIDeepSeek,
		InputModalities: []llm.Modality{llm.ModalityText},
		Capabilities:    []string{llm.CapabilityFunctionCalling},
		MaxTokens:       8192,
	}
}

func cerebrasModel() *llm.Model {
	return &llm.Model{
		ID: "zai-glm-4.6", API: llm.APICerebras,
		Reasoning:       true,
		InputModalities: []llm.Modality{llm.ModalityText},
		MaxTokens:       8192,
	}
}

func TestBuildRequestBasics(t *testing.T) {
	model := deepseekModel()
	lc := llm.Context{
		SystemPrompt: "Be terse.",
		Messages: []llm.Message{
			&llm.UserMessage{ID: "u1", Content: llm.Content{llm.TextContent{Text: "hi"}}},
			&llm.CustomMessage{ID: "c1", Payload: []byte(`{}`)},
		},
		Tools: []llm.ToolDefinition{{
			Name:        "search",
			Description: "Search the web",
			Parameters:  []byte(`{"type":"object"}`),
		}},
	}
	req, err := buildRequest(model, lc, llm.StreamOptions{MaxTokens: 2048})
	if err != nil {
		t.Fatal(err)
	}
	if req.MaxTokens != 2048 || !req.Stream {
		t.Errorf("MaxTokens=%d Stream=%v", req.MaxTokens, req.Stream)
	}
	if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
		t.Error("usage chunk not requested")
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(req.Messages))
	}
	if req.Messages[0].Role != openai.ChatMessageRoleSystem || req.Messages[0].Content != "Be terse." {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "search" {
		t.Errorf("tools = %+v", req.Tools)
	}
}

func TestToolsGatedOnCapability(t *testing.T) {
	model := cerebrasModel() // no function_calling capability
	lc := llm.Context{
		Messages: []llm.Message{&llm.UserMessage{ID: "u1", Content: llm.Content{llm.TextContent{Text: "hi"}}}},
		Tools:    []llm.ToolDefinition{{Name: "search", Parameters: []byte(`{}`)}},
	}
	req, err := buildRequest(model, lc, llm.StreamOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Tools) != 0 {
		t.Errorf("tools sent to a model without function calling: %+v", req.Tools)
	}
}

func TestToolResultErrorPrefix(t *testing.T) {
	model := deepseekModel()
	out, err := convertMessages(model, llm.Context{Messages: []llm.Message{
		&llm.ToolResultMessage{
			ID: "t1", ToolCallID: "call_1", ToolName: "search",
			Content: llm.Content{llm.TextContent{Text: "boom"}},
			IsError: true,
		},
	}})
	if err != nil || len(out) != 1 {
		t.Fatalf("out=%d err=%v", len(out), err)
	}
	if out[0].Role != openai.ChatMessageRoleTool || out[0].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", out[0])
	}
	if out[0].Content != "[TOOL ERROR] boom" {
		t.Errorf("content = %q", out[0].Content)
	}
}

func TestNativeMessageReuse(t *testing.T) {
	model := deepseekModel()
	native := openai.ChatCompletionMessage{
		Role:             openai.ChatMessageRoleAssistant,
		Content:          "native",
		ReasoningContent: "native reasoning",
	}
	out, err := convertMessages(model, llm.Context{Messages: []llm.Message{
		&llm.AssistantMessage{
			ID: "a1", API: llm.APIDeepSeek,
			Content:       llm.AssistantContent{llm.ResponseBlock{Content: llm.Content{llm.TextContent{Text: "translated"}}}},
			NativeMessage: native,
		},
	}})
	if err != nil || len(out) != 1 {
		t.Fatalf("out=%d err=%v", len(out), err)
	}
	if out[0].Content != "native" || out[0].ReasoningContent != "native reasoning" {
		t.Errorf("native form not reused: %+v", out[0])
	}
}

func TestTranslateForeignAssistant(t *testing.T) {
	foreign := &llm.AssistantMessage{
		ID: "a1", API: llm.APIAnthropicMessages,
		Content: llm.AssistantContent{
			llm.ThinkingBlock{Text: "ponder"},
			llm.ResponseBlock{Content: llm.Content{llm.TextContent{Text: "answer"}}},
			llm.ToolCallBlock{CallID: "c1", Name: "search", Arguments: map[string]any{"query": "go"}},
		},
	}

	msg := translateAssistant(deepseekModel(), foreign)
	if msg.ReasoningContent != "ponder" || msg.Content != "answer" {
		t.Errorf("deepseek translation = %+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "c1" ||
		msg.ToolCalls[0].Function.Arguments != `{"query":"go"}` {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}

	// Cerebras has no reasoning_content input; thinking rides in the body.
	cb := translateAssistant(cerebrasModel(), foreign)
	if cb.ReasoningContent != "" || cb.Content != "<think>\nponder\n</think>\nanswer" {
		t.Errorf("cerebras translation = %+v", cb)
	}
}

func TestTranslateAssistantRoundTrip(t *testing.T) {
	original := llm.AssistantContent{
		llm.ThinkingBlock{Text: "ponder"},
		llm.ResponseBlock{Content: llm.Content{llm.TextContent{Text: "answer"}}},
		llm.ToolCallBlock{CallID: "c1", Name: "search", Arguments: map[string]any{"query": "go"}},
	}
	foreign := &llm.AssistantMessage{ID: "a1", API: llm.APIAnthropicMessages, Content: original}

	wire := translateAssistant(deepseekModel(), foreign)

	// Rebuild the canonical block list from the wire form; every kind and
	// payload must survive the crossing.
	var recovered llm.AssistantContent
	if wire.ReasoningContent != "" {
		recovered = append(recovered, llm.ThinkingBlock{Text: wire.ReasoningContent})
	}
	if wire.Content != "" {
		recovered = append(recovered, llm.ResponseBlock{Content: llm.Content{llm.TextContent{Text: wire.Content}}})
	}
	for _, tc := range wire.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			t.Fatalf("arguments not valid JSON: %v", err)
		}
		recovered = append(recovered, llm.ToolCallBlock{CallID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	if !reflect.DeepEqual(recovered, original) {
		t.Errorf("round trip diverged:\n got  %#v\n want %#v", recovered, original)
	}
}

func TestNormalizeUsage(t *testing.T) {
	u := normalizeUsage(openai.Usage{
		PromptTokens:        1000,
		CompletionTokens:    50,
		TotalTokens:         1050,
		PromptTokensDetails: &openai.PromptTokensDetails{CachedTokens: 800},
	})
	if u.Input != 200 || u.CacheRead != 800 || u.Output != 50 || u.TotalTokens != 1050 {
		t.Errorf("usage = %+v", u)
	}

	plain := normalizeUsage(openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	if plain.Input != 10 || plain.CacheRead != 0 {
		t.Errorf("usage without details = %+v", plain)
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want llm.StopReason
		ok   bool
	}{
		{"stop", llm.StopReasonStop, true},
		{"", llm.StopReasonStop, true},
		{"length", llm.StopReasonLength, true},
		{"tool_calls", llm.StopReasonToolUse, true},
		{"content_filter", llm.StopReasonError, true},
		{"insufficient_system_resource", llm.StopReasonError, true},
		{"mystery", "", false},
	}
	for _, tt := range tests {
		got, ok := mapFinishReason(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("mapFinishReason(%q) = %v, %v", tt.in, got, ok)
		}
	}
}

func TestThinkSplitterTagAcrossChunks(t *testing.T) {
	model := cerebrasModel()
	s := llm.NewMessageStream()
	b := llm.NewStreamBuilder(model, "a1", s)
	ts := newThinkSplitter(true, b)

	b.Start()
	for _, chunk := range []string{"<thi", "nk>\nfirst ", "thought</t", "hink>\nThe answer", " is 42."} {
		ts.write(chunk)
	}
	ts.flush()
	b.Finish(llm.StopReasonStop)

	msg, err := s.Result(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := msg.Content.ThinkingText(); got != "\nfirst thought" {
		t.Errorf("thinking = %q", got)
	}
	if got := msg.Content.Text(); got != "The answer is 42." {
		t.Errorf("text = %q", got)
	}
}

func TestThinkSplitterNoTag(t *testing.T) {
	model := cerebrasModel()
	s := llm.NewMessageStream()
	b := llm.NewStreamBuilder(model, "a1", s)
	ts := newThinkSplitter(true, b)

	b.Start()
	ts.write("Plain ")
	ts.write("answer.")
	ts.flush()
	b.Finish(llm.StopReasonStop)

	msg, err := s.Result(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content.ThinkingText() != "" || msg.Content.Text() != "Plain answer." {
		t.Errorf("content = %q / %q", msg.Content.ThinkingText(), msg.Content.Text())
	}
}

func TestThinkSplitterUnterminated(t *testing.T) {
	model := cerebrasModel()
	s := llm.NewMessageStream()
	b := llm.NewStreamBuilder(model, "a1", s)
	ts := newThinkSplitter(true, b)

	b.Start()
	ts.write("<think>cut off mid")
	ts.flush()
	b.Finish(llm.StopReasonStop)

	msg, err := s.Result(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content.ThinkingText() != "cut off mid" {
		t.Errorf("thinking = %q", msg.Content.ThinkingText())
	}
}
