package agent

import (
	"fmt"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// BusyError is returned when a prompt is started while another is running.
type BusyError struct{}

func (e *BusyError) Error() string {
	return "agent: a prompt is already running on this conversation"
}

// CostLimitError is returned when accumulated cost crosses the configured
// limit while more actions remain.
type CostLimitError struct {
	Limit float64
	Total float64
}

func (e *CostLimitError) Error() string {
	return fmt.Sprintf("agent: cost limit exceeded: $%.6f >= $%.6f", e.Total, e.Limit)
}

// ContextLimitError is returned when the last observed input size crosses
// the configured context limit while more actions remain.
type ContextLimitError struct {
	Limit  int
	Tokens int
}

func (e *ContextLimitError) Error() string {
	return fmt.Sprintf("agent: context limit exceeded: %d tokens >= %d", e.Tokens, e.Limit)
}

// ContextOverflowError is returned when a stream terminated on a
// context-window overflow. The caller may trim history and Continue.
type ContextOverflowError struct {
	Message *llm.AssistantMessage
}

func (e *ContextOverflowError) Error() string {
	return "agent: context window overflow: " + e.Message.ErrorMessage
}

// StreamFailedError is returned when the model stream terminated with a
// non-overflow error. The failed assistant message stays in history.
type StreamFailedError struct {
	Message *llm.AssistantMessage
}

func (e *StreamFailedError) Error() string {
	return "agent: stream failed: " + e.Message.ErrorMessage
}
