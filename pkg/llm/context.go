package llm

import "encoding/json"

// ToolDefinition declares a callable tool: a name, a human-readable
// description for the model, and a JSON Schema for its arguments.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Context is everything sent to the model on one call: the system prompt,
// the conversation so far, and the available tools.
type Context struct {
	SystemPrompt string           `json:"systemPrompt,omitempty"`
	Messages     []Message        `json:"-"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// ToolByName returns the definition with the given name, or nil.
func (c *Context) ToolByName(name string) *ToolDefinition {
	for i := range c.Tools {
		if c.Tools[i].Name == name {
			return &c.Tools[i]
		}
	}
	return nil
}

// StreamOptions tune one model call.
type StreamOptions struct {
	// APIKey overrides the environment lookup for this call.
	APIKey string
	// MaxTokens caps output tokens; 0 uses the model's MaxTokens.
	MaxTokens int
	// Temperature, when non-nil, is passed through to the provider.
	Temperature *float64
	// ThinkingBudgetTokens caps reasoning tokens on providers that take an
	// explicit budget (Anthropic, Google). 0 selects a provider default.
	ThinkingBudgetTokens int
	// Headers are extra HTTP headers merged over the model's Headers.
	Headers map[string]string
}

// EffectiveMaxTokens resolves the output token cap for a call.
func (o StreamOptions) EffectiveMaxTokens(m *Model) int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	if m != nil && m.MaxTokens > 0 {
		return m.MaxTokens
	}
	return 4096
}
