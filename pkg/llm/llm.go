// Package llm defines the canonical message model shared by every provider
// adapter: messages, content blocks, assistant responses, usage accounting,
// stop reasons, streaming events, and the event stream primitive that carries
// them. Adapters translate between this model and their provider's wire
// format; the agent loop in pkg/agent consumes it.
package llm

// API identifies a provider wire protocol. Adapters are selected by the API
// of the model being called.
type API string

const (
	// APIOpenAIResponses is the OpenAI Responses API.
	APIOpenAIResponses API = "openai-responses"
	// APIAnthropicMessages is the Anthropic Messages API.
	APIAnthropicMessages API = "anthropic-messages"
	// APIGoogleGenAI is the Google GenAI (Gemini) API.
	APIGoogleGenAI API = "google-genai"
	// APIDeepSeek is DeepSeek's OpenAI-compatible Chat Completions API.
	APIDeepSeek API = "deepseek"
	// APICerebras is Cerebras' OpenAI-compatible Chat Completions API.
	APICerebras API = "cerebras"
	// APIZAI is Z.AI's OpenAI-compatible Chat Completions API.
	APIZAI API = "zai"
	// APIKimi is Moonshot Kimi's OpenAI-compatible Chat Completions API.
	APIKimi API = "kimi"
)

// StopReason is the canonical reason an assistant message stopped.
type StopReason string

const (
	// StopReasonStop means the model finished its response naturally.
	StopReasonStop StopReason = "stop"
	// StopReasonLength means the response was truncated by the output token limit.
	StopReasonLength StopReason = "length"
	// StopReasonToolUse means the model is requesting tool execution.
	StopReasonToolUse StopReason = "toolUse"
	// StopReasonError means the request failed; ErrorMessage carries details.
	StopReasonError StopReason = "error"
	// StopReasonAborted means the caller cancelled the request mid-flight.
	StopReasonAborted StopReason = "aborted"
)
