// Package openaicompat implements one adapter for the OpenAI-compatible Chat
// Completions providers: DeepSeek, Cerebras, Z.AI, and Kimi. They share the
// wire shape but differ in reasoning and cache-token reporting:
//
//   - DeepSeek, Z.AI, Kimi stream reasoning under the reasoning_content
//     delta field; Cerebras GLM models inline it in content between
//     <think>...</think> tags.
//   - Cached prompt tokens arrive under prompt_tokens_details.cached_tokens
//     and are included in prompt_tokens, so input is prompt minus cached.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/omnillm/internal/backoff"
	"github.com/haasonsaas/omnillm/pkg/llm"
)

// defaultBaseURLs maps each compatible API to its endpoint.
var defaultBaseURLs = map[llm.API]string{
	llm.APIDeepSeek: "https://api.deepseek.com/v1",
	llm.APICerebras: "https://api.cerebras.ai/v1",
	llm.APIZAI:      "https://api.z.ai/api/paas/v4",
	llm.APIKimi:     "https://api.moonshot.ai/v1",
}

// Supports reports whether this adapter serves the given API.
func Supports(api llm.API) bool {
	_, ok := defaultBaseURLs[api]
	return ok
}

// maxConnectAttempts bounds the initial-connection retry loop. Only 429 and
// 5xx before the first received chunk are retried.
const maxConnectAttempts = 3

// Stream opens a streaming Chat Completions request against the model's API.
func Stream(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.MessageStream, error) {
	if !Supports(model.API) {
		return nil, &llm.ProtocolError{API: model.API, Detail: "not an OpenAI-compatible API"}
	}
	key, err := llm.ResolveAPIKey(model.API, opts.APIKey)
	if err != nil {
		return nil, err
	}
	req, err := buildRequest(model, lc, opts)
	if err != nil {
		return nil, err
	}
	client := newClient(key, model, opts)

	out := llm.NewMessageStream()
	go process(ctx, client, req, model, id, out)
	return out, nil
}

// Complete runs a request to completion and returns the final message.
func Complete(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.AssistantMessage, error) {
	stream, err := Stream(ctx, model, lc, opts, id)
	if err != nil {
		return nil, err
	}
	for range stream.Events() {
	}
	return stream.Result(ctx)
}

func newClient(key string, model *llm.Model, opts llm.StreamOptions) *openai.Client {
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = defaultBaseURLs[model.API]
	if model.BaseURL != "" {
		cfg.BaseURL = model.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func buildRequest(model *llm.Model, lc llm.Context, opts llm.StreamOptions) (openai.ChatCompletionRequest, error) {
	messages, err := convertMessages(model, lc)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	req := openai.ChatCompletionRequest{
		Model:         model.ID,
		Messages:      messages,
		MaxTokens:     opts.EffectiveMaxTokens(model),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if model.HasCapability(llm.CapabilityFunctionCalling) && len(lc.Tools) > 0 {
		req.Tools = convertTools(lc.Tools)
	}
	return req, nil
}

func convertTools(tools []llm.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// convertMessages builds the wire message sequence. The system prompt rides
// as the first message; tool results each become a separate tool-role
// message; custom messages never reach the wire.
func convertMessages(model *llm.Model, lc llm.Context) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(lc.Messages)+1)
	if lc.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: llm.SanitizeSurrogates(lc.SystemPrompt),
		})
	}

	for _, m := range lc.Messages {
		switch msg := m.(type) {
		case *llm.CustomMessage:
			continue

		case *llm.UserMessage:
			out = append(out, convertUserMessage(model, msg))

		case *llm.ToolResultMessage:
			text := llm.SanitizeSurrogates(msg.Content.Text())
			if text == "" && hasAttachments(msg.Content) {
				text = "(see attached)"
			}
			if msg.IsError {
				text = "[TOOL ERROR] " + text
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    text,
				ToolCallID: msg.ToolCallID,
			})

		case *llm.AssistantMessage:
			if msg.API == model.API {
				if native, ok := msg.NativeMessage.(openai.ChatCompletionMessage); ok {
					out = append(out, native)
					continue
				}
			}
			out = append(out, translateAssistant(model, msg))
		}
	}
	return out, nil
}

func convertUserMessage(model *llm.Model, msg *llm.UserMessage) openai.ChatCompletionMessage {
	wantImages := model.SupportsModality(llm.ModalityImage) && hasAttachments(msg.Content)
	if !wantImages {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: llm.SanitizeSurrogates(msg.Content.Text()),
		}
	}
	var parts []openai.ChatMessagePart
	for _, c := range msg.Content {
		switch b := c.(type) {
		case llm.TextContent:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: llm.SanitizeSurrogates(b.Text),
			})
		case llm.ImageContent:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + b.MimeType + ";base64," + b.Data,
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// translateAssistant rebuilds a foreign assistant message for this wire.
// Thinking goes to reasoning_content, except Cerebras which expects it
// inlined under <think> tags.
func translateAssistant(model *llm.Model, msg *llm.AssistantMessage) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}

	thinking := llm.SanitizeSurrogates(msg.Content.ThinkingText())
	text := llm.SanitizeSurrogates(msg.Content.Text())
	if thinking != "" {
		if model.API == llm.APICerebras {
			text = "<think>\n" + thinking + "\n</think>\n" + text
		} else {
			out.ReasoningContent = thinking
		}
	}
	out.Content = text

	for _, tc := range msg.Content.ToolCalls() {
		args := "{}"
		if tc.Arguments != nil {
			if raw, err := json.Marshal(tc.Arguments); err == nil {
				args = string(raw)
			}
		}
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.CallID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		})
	}
	return out
}

// pendingCall accumulates one streamed tool call before it is handed to the
// builder in index order at stream end.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func process(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest, model *llm.Model, id string, out *llm.MessageStream) {
	b := llm.NewStreamBuilder(model, id, out)
	b.Start()

	stream, err := connect(ctx, client, req)
	if err != nil {
		failWith(ctx, b, err)
		return
	}
	defer stream.Close()

	// <think> tag splitting for Cerebras GLM models.
	think := newThinkSplitter(model.API == llm.APICerebras && model.Reasoning, b)

	var (
		calls      = map[int]*pendingCall{}
		callOrder  []int
		finish     string
		sawToolEnd bool
	)

	flushCalls := func() {
		think.flush()
		for _, idx := range callOrder {
			pc := calls[idx]
			if pc == nil || pc.id == "" || pc.name == "" {
				continue
			}
			b.OpenToolCall(pc.id, pc.name)
			b.AppendToolArgs(pc.args.String())
			b.CloseBlock()
		}
		calls = map[int]*pendingCall{}
		callOrder = nil
		sawToolEnd = true
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !sawToolEnd {
					flushCalls()
				}
				think.flush()
				reason, ok := mapFinishReason(finish)
				if !ok {
					b.Fail(llm.StopReasonError, (&llm.ProtocolError{
						API: model.API, Detail: "unknown finish reason " + finish,
					}).Error())
					return
				}
				b.Message().NativeMessage = nativeMessage(model, b.Message())
				b.Finish(reason)
				return
			}
			think.flush()
			b.Message().NativeMessage = nativeMessage(model, b.Message())
			failWith(ctx, b, err)
			return
		}

		if resp.Usage != nil {
			b.AddUsage(normalizeUsage(*resp.Usage))
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.ReasoningContent != "" {
			b.AppendThinking(delta.ReasoningContent)
		}
		if delta.Content != "" {
			think.write(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc := calls[idx]
			if pc == nil {
				pc = &pendingCall{}
				calls[idx] = pc
				callOrder = append(callOrder, idx)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
			if finish == "tool_calls" || finish == "function_call" {
				flushCalls()
			}
		}
	}
}

// connect opens the stream, retrying transient failures (429, 5xx) with
// backoff. Nothing is retried once the stream is established.
func connect(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return backoff.Retry(ctx, backoff.Default(), maxConnectAttempts,
		func() (*openai.ChatCompletionStream, bool, error) {
			stream, err := client.CreateChatCompletionStream(ctx, req)
			if err != nil {
				return nil, isRetryable(err), err
			}
			return stream, false, nil
		})
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func failWith(ctx context.Context, b *llm.StreamBuilder, err error) {
	if ctx.Err() != nil {
		b.Fail(llm.StopReasonAborted, err.Error())
		return
	}
	b.Fail(llm.StopReasonError, err.Error())
}

// normalizeUsage subtracts cached tokens from the inclusive prompt count so
// input holds non-cached tokens only.
func normalizeUsage(u openai.Usage) llm.Usage {
	cached := 0
	if u.PromptTokensDetails != nil {
		cached = u.PromptTokensDetails.CachedTokens
	}
	input := u.PromptTokens - cached
	if input < 0 {
		input = 0
	}
	return llm.Usage{
		Input:       input,
		Output:      u.CompletionTokens,
		CacheRead:   cached,
		TotalTokens: u.TotalTokens,
	}
}

func mapFinishReason(s string) (llm.StopReason, bool) {
	switch s {
	case "", "stop":
		return llm.StopReasonStop, true
	case "length", "max_tokens":
		return llm.StopReasonLength, true
	case "tool_calls", "function_call":
		return llm.StopReasonToolUse, true
	case "content_filter", "insufficient_system_resource":
		return llm.StopReasonError, true
	default:
		return "", false
	}
}

// nativeMessage records the provider's own assistant message form for
// same-provider replay.
func nativeMessage(model *llm.Model, msg *llm.AssistantMessage) any {
	native := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: msg.Content.Text(),
	}
	if thinking := msg.Content.ThinkingText(); thinking != "" && model.API != llm.APICerebras {
		native.ReasoningContent = thinking
	}
	for _, tc := range msg.Content.ToolCalls() {
		args := "{}"
		if tc.Arguments != nil {
			if raw, err := json.Marshal(tc.Arguments); err == nil {
				args = string(raw)
			}
		}
		native.ToolCalls = append(native.ToolCalls, openai.ToolCall{
			ID:   tc.CallID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: tc.Name, Arguments: args},
		})
	}
	if native.Content == "" && native.ReasoningContent == "" && len(native.ToolCalls) == 0 {
		return nil
	}
	return native
}

func hasAttachments(content llm.Content) bool {
	for _, c := range content {
		switch c.(type) {
		case llm.ImageContent, llm.FileContent:
			return true
		}
	}
	return false
}
