package llm

import "regexp"

// Context-window overflow has no common wire representation: most providers
// return an error with provider-specific phrasing, Cerebras and Mistral
// return a bare 400/413 with no body, and a few (z.ai) accept the over-long
// request and report the damage only in usage. IsContextOverflow folds all
// three signals into one classifier so the agent loop can surface a
// recoverable overflow instead of a generic failure.

// overflowPatterns covers the known provider error phrasings, all matched
// case-insensitively.
var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)prompt is too long`),                     // Anthropic
	regexp.MustCompile(`(?i)input is too long for requested model`),  // Amazon Bedrock
	regexp.MustCompile(`(?i)exceed.*context window`),                 // OpenAI
	regexp.MustCompile(`(?i)input token count.*exceeds the maximum`), // Google Gemini
	regexp.MustCompile(`(?i)maximum prompt length is \d+`),           // xAI
	regexp.MustCompile(`(?i)reduce the length of the messages`),      // Groq
	regexp.MustCompile(`(?i)maximum context length is \d+ tokens`),   // OpenRouter
	regexp.MustCompile(`(?i)exceeds the limit of \d+`),               // GitHub Copilot
	regexp.MustCompile(`(?i)exceeds the available context size`),     // llama.cpp
	regexp.MustCompile(`(?i)greater than the context length`),        // LM Studio
	regexp.MustCompile(`(?i)context window exceeds limit`),           // MiniMax
	regexp.MustCompile(`(?i)exceeded model token limit`),             // Kimi
	regexp.MustCompile(`(?i)context[_ ]length[_ ]exceeded`),          // generic
	regexp.MustCompile(`(?i)too many tokens`),                        // generic
	regexp.MustCompile(`(?i)token limit exceeded`),                   // generic
}

// bareStatusPattern matches providers that signal overflow as a 400 or 413
// with an empty body, which is distinguishable from rate limiting (429).
var bareStatusPattern = regexp.MustCompile(`(?i)^4(00|13)\s*(status code)?\s*\(no body\)`)

// IsContextOverflow reports whether msg represents a context-window overflow,
// either as a pattern-matched provider error or as a silent truncation where
// a successful response reports more input than the window holds. Pass
// contextWindow = 0 to disable the silent check.
func IsContextOverflow(msg *AssistantMessage, contextWindow int) bool {
	if msg == nil {
		return false
	}

	if msg.StopReason == StopReasonError && msg.ErrorMessage != "" {
		for _, re := range overflowPatterns {
			if re.MatchString(msg.ErrorMessage) {
				return true
			}
		}
		if bareStatusPattern.MatchString(msg.ErrorMessage) {
			return true
		}
	}

	if contextWindow > 0 && msg.StopReason == StopReasonStop {
		if msg.Usage.Input+msg.Usage.CacheRead > contextWindow {
			return true
		}
	}

	return false
}
