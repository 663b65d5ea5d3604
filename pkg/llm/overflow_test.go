package llm

import "testing"

func TestIsContextOverflowErrorMessages(t *testing.T) {
	overflow := []string{
		"prompt is too long: 213462 tokens > 200000 maximum",
		"Input is too long for requested model.",
		"This model's maximum context length is 128000 tokens, your messages exceed the context window",
		"The input token count (1048577) exceeds the maximum number of tokens allowed",
		"The maximum prompt length is 131072 tokens, please reduce your prompt",
		"Please reduce the length of the messages or completion.",
		"This endpoint's maximum context length is 200000 tokens",
		"prompt token count of 130000 exceeds the limit of 128000",
		"the request exceeds the available context size",
		"The number of tokens to keep from the initial prompt is greater than the context length",
		"Error: context window exceeds limit",
		"exceeded model token limit",
		"context_length_exceeded",
		"context length exceeded",
		"request contains too many tokens",
		"token limit exceeded for this request",
		"400 status code (no body)",
		"413 status code (no body)",
	}
	for _, msg := range overflow {
		m := &AssistantMessage{StopReason: StopReasonError, ErrorMessage: msg}
		if !IsContextOverflow(m, 0) {
			t.Errorf("not detected as overflow: %q", msg)
		}
	}

	benign := []string{
		"Invalid API key",
		"Rate limit exceeded",
		"Connection timeout",
		"Internal server error",
		"429 status code (no body)",
	}
	for _, msg := range benign {
		m := &AssistantMessage{StopReason: StopReasonError, ErrorMessage: msg}
		if IsContextOverflow(m, 0) {
			t.Errorf("false positive overflow: %q", msg)
		}
	}
}

func TestIsContextOverflowSilent(t *testing.T) {
	m := &AssistantMessage{
		StopReason: StopReasonStop,
		Usage:      Usage{Input: 190000, CacheRead: 20000},
	}
	if !IsContextOverflow(m, 200000) {
		t.Error("input + cacheRead above the window should count as overflow")
	}
	if IsContextOverflow(m, 0) {
		t.Error("silent check must be disabled when the window is unknown")
	}
	under := &AssistantMessage{StopReason: StopReasonStop, Usage: Usage{Input: 1000}}
	if IsContextOverflow(under, 200000) {
		t.Error("normal usage flagged as overflow")
	}
	if IsContextOverflow(nil, 200000) {
		t.Error("nil message flagged as overflow")
	}
}
