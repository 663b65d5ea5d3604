// Package providers routes completion calls to the adapter for a model's
// wire protocol.
package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/haasonsaas/omnillm/pkg/llm"
	"github.com/haasonsaas/omnillm/pkg/llm/providers/anthropic"
	"github.com/haasonsaas/omnillm/pkg/llm/providers/google"
	"github.com/haasonsaas/omnillm/pkg/llm/providers/openai"
	"github.com/haasonsaas/omnillm/pkg/llm/providers/openaicompat"
)

// Stream dispatches a streaming call to the model's adapter. An empty id is
// replaced with a fresh UUID.
func Stream(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.MessageStream, error) {
	if id == "" {
		id = uuid.NewString()
	}
	switch model.API {
	case llm.APIAnthropicMessages:
		return anthropic.Stream(ctx, model, lc, opts, id)
	case llm.APIOpenAIResponses:
		return openai.Stream(ctx, model, lc, opts, id)
	case llm.APIGoogleGenAI:
		return google.Stream(ctx, model, lc, opts, id)
	case llm.APIDeepSeek, llm.APICerebras, llm.APIZAI, llm.APIKimi:
		return openaicompat.Stream(ctx, model, lc, opts, id)
	default:
		return nil, &llm.ProtocolError{API: model.API, Detail: "no adapter for API"}
	}
}

// Complete dispatches a call and waits for the final message.
func Complete(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.AssistantMessage, error) {
	stream, err := Stream(ctx, model, lc, opts, id)
	if err != nil {
		return nil, err
	}
	for range stream.Events() {
	}
	return stream.Result(ctx)
}
