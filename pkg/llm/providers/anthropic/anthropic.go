// Package anthropic implements the Anthropic Messages adapter.
//
// Streaming uses the official SDK's SSE stream. Events map onto the
// canonical sequence as follows:
//
//   - message_start        → capture input/cache token counts
//   - content_block_start  → open a text, thinking, or tool call block
//   - content_block_delta  → text_delta / thinking_delta / input_json_delta
//   - content_block_stop   → close the open block
//   - message_delta        → output tokens and the stop reason
//   - message_stop         → finish
//
// Input tokens arrive on message_start and are never repeated, so usage
// merging keeps the earliest observation.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// betaFineGrainedToolStreaming streams tool-argument JSON incrementally
// instead of buffering it server-side.
const betaFineGrainedToolStreaming = "fine-grained-tool-streaming-2025-05-14"

// OAuth tokens require the oauth beta and a fixed identity block ahead of the
// caller's system prompt; the API rejects oauth requests without both.
const (
	oauthTokenPrefix  = "sk-ant-oat"
	betaOAuth         = "oauth-2025-04-20"
	oauthIdentityText = "You are Claude Code, Anthropic's official CLI for Claude."
)

// Stream opens a streaming Messages request and returns its event stream.
// The terminal result is the finalized assistant message; wire failures
// surface through the stream as an error-stopped message, not as a Go error.
func Stream(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.MessageStream, error) {
	key, err := llm.ResolveAPIKey(llm.APIAnthropicMessages, opts.APIKey)
	if err != nil {
		return nil, err
	}
	params, err := buildParams(model, lc, opts)
	if err != nil {
		return nil, err
	}
	client := newClient(key, model, opts)

	stream := llm.NewMessageStream()
	go process(ctx, client, params, model, id, stream)
	return stream, nil
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

func newClient(key string, model *llm.Model, opts llm.StreamOptions) anthropic.Client {
	betas := betaFineGrainedToolStreaming
	ro := []option.RequestOption{}
	if strings.HasPrefix(key, oauthTokenPrefix) {
		betas += "," + betaOAuth
		ro = append(ro, option.WithHeader("Authorization", "Bearer "+key))
	} else {
		ro = append(ro, option.WithAPIKey(key))
	}
	ro = append(ro, option.WithHeader("anthropic-beta", betas))
	if model.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(model.BaseURL))
	}
	for k, v := range model.Headers {
		ro = append(ro, option.WithHeader(k, v))
	}
	for k, v := range opts.Headers {
		ro = append(ro, option.WithHeader(k, v))
	}
	return anthropic.NewClient(ro...)
}

func buildParams(model *llm.Model, lc llm.Context, opts llm.StreamOptions) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(model, lc.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model.ID),
		Messages:  messages,
		MaxTokens: int64(opts.EffectiveMaxTokens(model)),
	}

	params.System = buildSystem(lc.SystemPrompt, opts)
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	if model.HasCapability(llm.CapabilityFunctionCalling) && len(lc.Tools) > 0 {
		tools, err := convertTools(lc.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	if model.Reasoning {
		budget := int64(opts.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

// buildSystem assembles the system blocks. The last block carries ephemeral
// cache control so repeated turns reuse the prompt cache. OAuth requests get
// the mandatory identity block first.
func buildSystem(systemPrompt string, opts llm.StreamOptions) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	key := opts.APIKey
	if key == "" {
		key = llm.APIKeyFromEnv(llm.APIAnthropicMessages)
	}
	if strings.HasPrefix(key, oauthTokenPrefix) {
		blocks = append(blocks, anthropic.TextBlockParam{Text: oauthIdentityText})
	}
	if systemPrompt != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: llm.SanitizeSurrogates(systemPrompt)})
	}
	if len(blocks) > 0 {
		blocks[len(blocks)-1].CacheControl = anthropic.CacheControlEphemeralParam{}
	}
	return blocks
}

func convertTools(tools []llm.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, &llm.ToolSchemaError{Tool: t.Name, Detail: err.Error()}
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, &llm.ToolSchemaError{Tool: t.Name, Detail: "missing tool definition"}
		}
		if t.Description != "" {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

// convertMessages translates the conversation for the wire. Assistant
// messages produced by this adapter round-trip through their stored native
// form; foreign ones are rebuilt from canonical content.
func convertMessages(model *llm.Model, messages []llm.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch msg := m.(type) {
		case *llm.CustomMessage:
			continue

		case *llm.UserMessage:
			blocks := userBlocks(model, msg.Content)
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(blocks...))

		case *llm.ToolResultMessage:
			out = append(out, anthropic.NewUserMessage(toolResultBlock(model, msg)))

		case *llm.AssistantMessage:
			if msg.API == llm.APIAnthropicMessages {
				if native, ok := msg.NativeMessage.(anthropic.MessageParam); ok {
					out = append(out, native)
					continue
				}
			}
			param, err := translateAssistant(msg)
			if err != nil {
				return nil, err
			}
			if param != nil {
				out = append(out, *param)
			}
		}
	}
	return out, nil
}

func userBlocks(model *llm.Model, content llm.Content) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, c := range content {
		switch b := c.(type) {
		case llm.TextContent:
			blocks = append(blocks, anthropic.NewTextBlock(llm.SanitizeSurrogates(b.Text)))
		case llm.ImageContent:
			if model.SupportsModality(llm.ModalityImage) {
				blocks = append(blocks, anthropic.NewImageBlockBase64(b.MimeType, b.Data))
			}
		case llm.FileContent:
			// PDF and other document inputs are not carried over; attachments
			// are advisory and dropped when untranslatable.
		}
	}
	return blocks
}

// toolResultBlock builds a tool_result block carrying the result text plus
// any image attachments the model accepts. Attachments that cannot be carried
// degrade to a "(see attached)" placeholder so the block is never empty when
// the result had content.
func toolResultBlock(model *llm.Model, msg *llm.ToolResultMessage) anthropic.ContentBlockParamUnion {
	block := anthropic.ToolResultBlockParam{ToolUseID: msg.ToolCallID}
	if msg.IsError {
		block.IsError = anthropic.Bool(true)
	}

	var images []anthropic.ToolResultBlockParamContentUnion
	if model.SupportsModality(llm.ModalityImage) {
		for _, c := range msg.Content {
			if img, ok := c.(llm.ImageContent); ok {
				b := anthropic.NewImageBlockBase64(img.MimeType, img.Data)
				images = append(images, anthropic.ToolResultBlockParamContentUnion{OfImage: b.OfImage})
			}
		}
	}

	text := llm.SanitizeSurrogates(msg.Content.Text())
	if text == "" && len(images) == 0 && hasAttachments(msg.Content) {
		text = "(see attached)"
	}
	if text != "" {
		block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
			OfText: &anthropic.TextBlockParam{Text: text},
		})
	}
	block.Content = append(block.Content, images...)

	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

// translateAssistant rebuilds a foreign assistant message as an Anthropic
// message param. Thinking text is wrapped into the visible text body: replayed
// thinking blocks need the original cryptographic signature, which only the
// native form preserves.
func translateAssistant(msg *llm.AssistantMessage) (*anthropic.MessageParam, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, b := range msg.Content {
		switch block := b.(type) {
		case llm.ThinkingBlock:
			if block.Text != "" {
				text := "<thinking>\n" + llm.SanitizeSurrogates(block.Text) + "\n</thinking>"
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
		case llm.ResponseBlock:
			if text := llm.SanitizeSurrogates(block.Content.Text()); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
		case llm.ToolCallBlock:
			args := block.Arguments
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(block.CallID, args, block.Name))
		}
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	param := anthropic.NewAssistantMessage(blocks...)
	return &param, nil
}

// process consumes the SDK stream and drives the canonical builder.
func process(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, model *llm.Model, id string, out *llm.MessageStream) {
	b := llm.NewStreamBuilder(model, id, out)
	b.Start()

	stream := client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	// Per-stream state: the open tool call's signature isn't part of the
	// canonical model, but the native message needs it for replay.
	var (
		signatures  = map[int]string{} // content index → thinking signature
		curThinking = -1
		stopReason  string
	)

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			b.AddUsage(llm.Usage{
				Input:      int(ms.Message.Usage.InputTokens),
				CacheRead:  int(ms.Message.Usage.CacheReadInputTokens),
				CacheWrite: int(ms.Message.Usage.CacheCreationInputTokens),
			})

		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			switch cb.Type {
			case "text":
				b.OpenText()
			case "thinking":
				b.OpenThinking()
				curThinking = len(b.Message().Content) - 1
			case "tool_use":
				tu := cb.AsToolUse()
				b.OpenToolCall(tu.ID, tu.Name)
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				b.AppendText(delta.Text)
			case "thinking_delta":
				b.AppendThinking(delta.Thinking)
			case "input_json_delta":
				b.AppendToolArgs(delta.PartialJSON)
			case "signature_delta":
				if curThinking >= 0 {
					signatures[curThinking] += delta.Signature
				}
			}

		case "content_block_stop":
			b.CloseBlock()
			curThinking = -1

		case "message_delta":
			md := event.AsMessageDelta()
			b.AddUsage(llm.Usage{Output: int(md.Usage.OutputTokens)})
			if md.Delta.StopReason != "" {
				stopReason = string(md.Delta.StopReason)
			}

		case "message_stop":
			reason, ok := mapStopReason(stopReason)
			if !ok {
				b.Fail(llm.StopReasonError, (&llm.ProtocolError{
					API: llm.APIAnthropicMessages, Detail: "unknown stop reason " + stopReason,
				}).Error())
				return
			}
			b.Message().NativeMessage = nativeMessage(b.Message(), signatures)
			b.Finish(reason)
			return
		}
	}

	if err := stream.Err(); err != nil {
		b.Message().NativeMessage = nativeMessage(b.Message(), signatures)
		if ctx.Err() != nil {
			b.Fail(llm.StopReasonAborted, err.Error())
		} else {
			b.Fail(llm.StopReasonError, err.Error())
		}
		return
	}
	// Stream closed without message_stop; keep what accumulated.
	b.Message().NativeMessage = nativeMessage(b.Message(), signatures)
	if ctx.Err() != nil {
		b.Fail(llm.StopReasonAborted, "stream aborted")
		return
	}
	b.Finish(llm.StopReasonStop)
}

// nativeMessage captures the provider's own form of the finished message so
// a same-provider follow-up can resend it verbatim, signatures included.
func nativeMessage(msg *llm.AssistantMessage, signatures map[int]string) any {
	var blocks []anthropic.ContentBlockParamUnion
	for i, b := range msg.Content {
		switch block := b.(type) {
		case llm.ThinkingBlock:
			blocks = append(blocks, anthropic.NewThinkingBlock(signatures[i], block.Text))
		case llm.ResponseBlock:
			if text := block.Content.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
		case llm.ToolCallBlock:
			args := block.Arguments
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(block.CallID, args, block.Name))
		}
	}
	if len(blocks) == 0 {
		return nil
	}
	return anthropic.NewAssistantMessage(blocks...)
}

func mapStopReason(s string) (llm.StopReason, bool) {
	switch s {
	case "", "end_turn", "stop_sequence", "pause_turn":
		return llm.StopReasonStop, true
	case "max_tokens":
		return llm.StopReasonLength, true
	case "tool_use":
		return llm.StopReasonToolUse, true
	case "refusal":
		return llm.StopReasonError, true
	default:
		return "", false
	}
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
