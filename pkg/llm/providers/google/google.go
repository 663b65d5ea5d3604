// Package google implements the Gemini adapter over the Google Gen AI SDK.
//
// Gemini differs from the other wires in three ways that shape this file:
// parts carry a thought flag instead of a separate reasoning channel,
// function calls arrive whole rather than as argument deltas, and the API
// assigns no tool call IDs, so the adapter synthesizes them.
package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// defaultThinkingBudget is passed when a reasoning model is used without an
// explicit budget; -1 lets the API choose.
const defaultThinkingBudget int32 = -1

// Stream opens a streaming generateContent request.
func Stream(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.MessageStream, error) {
	key, err := llm.ResolveAPIKey(model.API, opts.APIKey)
	if err != nil {
		return nil, err
	}
	contents, err := convertMessages(model, lc.Messages)
	if err != nil {
		return nil, err
	}
	config, err := buildConfig(model, lc, opts)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &llm.ProtocolError{API: model.API, Detail: "client init: " + err.Error()}
	}

	out := llm.NewMessageStream()
	go process(ctx, client, model, contents, config, id, out)
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

func buildConfig(model *llm.Model, lc llm.Context, opts llm.StreamOptions) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}

	if lc.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: llm.SanitizeSurrogates(lc.SystemPrompt)}},
		}
	}

	maxTokens := opts.EffectiveMaxTokens(model)
	// #nosec G115 -- token caps are far below int32 range
	config.MaxOutputTokens = int32(maxTokens)

	if opts.Temperature != nil {
		temp := float32(*opts.Temperature)
		config.Temperature = &temp
	}

	if model.HasCapability(llm.CapabilityFunctionCalling) && len(lc.Tools) > 0 {
		tools, err := convertTools(lc.Tools)
		if err != nil {
			return nil, err
		}
		config.Tools = tools
	}

	if model.Reasoning {
		budget := defaultThinkingBudget
		if opts.ThinkingBudgetTokens > 0 {
			// #nosec G115 -- budgets are far below int32 range
			budget = int32(opts.ThinkingBudgetTokens)
		}
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  &budget,
		}
	}

	return config, nil
}

func convertTools(tools []llm.ToolDefinition) ([]*genai.Tool, error) {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Parameters, &schemaMap); err != nil {
			return nil, &llm.ToolSchemaError{Tool: t.Name, Detail: "invalid schema: " + err.Error()}
		}
		schema, err := toGeminiSchema(schemaMap)
		if err != nil {
			return nil, &llm.ToolSchemaError{Tool: t.Name, Detail: err.Error()}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}, nil
}

// convertMessages builds the contents array. Tool results ride on the user
// side as function responses; assistant turns use the model role.
func convertMessages(model *llm.Model, messages []llm.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, m := range messages {
		switch msg := m.(type) {
		case *llm.CustomMessage:
			continue

		case *llm.UserMessage:
			content := &genai.Content{Role: genai.RoleUser}
			for _, c := range msg.Content {
				switch b := c.(type) {
				case llm.TextContent:
					content.Parts = append(content.Parts, &genai.Part{Text: llm.SanitizeSurrogates(b.Text)})
				case llm.ImageContent:
					if !model.SupportsModality(llm.ModalityImage) {
						continue
					}
					part, err := inlineDataPart(b.Data, b.MimeType)
					if err != nil {
						return nil, err
					}
					content.Parts = append(content.Parts, part)
				case llm.FileContent:
					if !model.SupportsModality(llm.ModalityFile) {
						continue
					}
					part, err := inlineDataPart(b.Data, b.MimeType)
					if err != nil {
						return nil, err
					}
					content.Parts = append(content.Parts, part)
				}
			}
			if len(content.Parts) > 0 {
				result = append(result, content)
			}

		case *llm.ToolResultMessage:
			text := llm.SanitizeSurrogates(msg.Content.Text())
			response := map[string]any{"output": text}
			if msg.IsError {
				response = map[string]any{"error": text}
			}
			result = append(result, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolName,
						Response: response,
					},
				}},
			})

		case *llm.AssistantMessage:
			if msg.API == model.API {
				if native, ok := msg.NativeMessage.(*genai.Content); ok && native != nil {
					result = append(result, native)
					continue
				}
			}
			content := translateAssistant(msg)
			if len(content.Parts) > 0 {
				result = append(result, content)
			}
		}
	}

	return result, nil
}

// translateAssistant rebuilds a foreign assistant turn. Thinking becomes a
// thought-flagged part; Gemini drops it on replay but the shape is valid.
func translateAssistant(msg *llm.AssistantMessage) *genai.Content {
	content := &genai.Content{Role: genai.RoleModel}
	for _, block := range msg.Content {
		switch b := block.(type) {
		case llm.ThinkingBlock:
			if b.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{
					Text:    llm.SanitizeSurrogates(b.Text),
					Thought: true,
				})
			}
		case llm.ResponseBlock:
			if text := llm.SanitizeSurrogates(b.Content.Text()); text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: text})
			}
		case llm.ToolCallBlock:
			args := b.Arguments
			if args == nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   b.CallID,
					Name: b.Name,
					Args: args,
				},
			})
		}
	}
	return content
}

func inlineDataPart(data, mimeType string) (*genai.Part, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &llm.TranslationError{To: llm.APIGoogleGenAI, Detail: "invalid base64 attachment: " + err.Error()}
	}
	return &genai.Part{InlineData: &genai.Blob{Data: raw, MIMEType: mimeType}}, nil
}

func process(ctx context.Context, client *genai.Client, model *llm.Model, contents []*genai.Content, config *genai.GenerateContentConfig, id string, out *llm.MessageStream) {
	b := llm.NewStreamBuilder(model, id, out)
	b.Start()

	var finish genai.FinishReason

	for resp, err := range client.Models.GenerateContentStream(ctx, model.ID, contents, config) {
		if err != nil {
			b.Message().NativeMessage = nativeMessage(b.Message())
			if ctx.Err() != nil {
				b.Fail(llm.StopReasonAborted, err.Error())
			} else {
				b.Fail(llm.StopReasonError, err.Error())
			}
			return
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			b.AddUsage(normalizeUsage(resp.UsageMetadata))
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil {
				continue
			}
			if candidate.FinishReason != "" {
				finish = candidate.FinishReason
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				switch {
				case part.FunctionCall != nil:
					emitFunctionCall(b, part.FunctionCall)
				case part.Thought && part.Text != "":
					b.AppendThinking(part.Text)
				case part.Text != "":
					b.AppendText(part.Text)
				}
			}
		}
	}

	reason, ok := mapFinishReason(finish)
	if !ok {
		b.Fail(llm.StopReasonError, (&llm.ProtocolError{
			API: model.API, Detail: "unknown finish reason " + string(finish),
		}).Error())
		return
	}
	b.Message().NativeMessage = nativeMessage(b.Message())
	b.Finish(reason)
}

// emitFunctionCall streams one complete function call through the builder.
// Gemini assigns no call IDs, so absent ones are synthesized.
func emitFunctionCall(b *llm.StreamBuilder, fc *genai.FunctionCall) {
	callID := fc.ID
	if callID == "" {
		callID = fmt.Sprintf("call_%s_%s", fc.Name, uuid.NewString())
	}
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = []byte("{}")
	}
	b.OpenToolCall(callID, fc.Name)
	b.AppendToolArgs(string(args))
	b.CloseBlock()
}

// normalizeUsage applies the Gemini token accounting: prompt counts include
// cached tokens, and thought tokens count as output.
func normalizeUsage(u *genai.GenerateContentResponseUsageMetadata) llm.Usage {
	input := int(u.PromptTokenCount) - int(u.CachedContentTokenCount)
	if input < 0 {
		input = 0
	}
	return llm.Usage{
		Input:       input,
		Output:      int(u.CandidatesTokenCount) + int(u.ThoughtsTokenCount),
		CacheRead:   int(u.CachedContentTokenCount),
		TotalTokens: int(u.TotalTokenCount),
	}
}

func mapFinishReason(r genai.FinishReason) (llm.StopReason, bool) {
	switch r {
	case "", genai.FinishReasonStop:
		return llm.StopReasonStop, true
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength, true
	case genai.FinishReasonSafety,
		genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII,
		genai.FinishReasonMalformedFunctionCall,
		genai.FinishReasonImageSafety,
		genai.FinishReasonUnexpectedToolCall,
		genai.FinishReasonLanguage,
		genai.FinishReasonOther:
		return llm.StopReasonError, true
	default:
		return "", false
	}
}

// nativeMessage records the model-role content for same-provider replay.
func nativeMessage(msg *llm.AssistantMessage) any {
	content := translateAssistant(msg)
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}
