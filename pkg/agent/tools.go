package agent

import (
	"context"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// ProgressFunc reports intermediate tool output; each call surfaces as a
// tool_execution_update event.
type ProgressFunc func(text string)

// Tool pairs a definition with its executor. Execute receives the prompt's
// cancellation context; a returned error becomes an error tool result, not a
// loop failure, so the model can recover.
type Tool struct {
	Definition llm.ToolDefinition
	Execute    func(ctx context.Context, callID string, args map[string]any, progress ProgressFunc) (llm.Content, error)
}

func definitions(tools []Tool) []llm.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition
	}
	return defs
}

func findTool(tools []Tool, name string) *Tool {
	for i := range tools {
		if tools[i].Definition.Name == name {
			return &tools[i]
		}
	}
	return nil
}
