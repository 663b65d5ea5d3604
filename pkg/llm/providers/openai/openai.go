// Package openai implements the OpenAI Responses API adapter
// (POST {baseURL}/responses) over plain HTTP and SSE.
//
// The Responses wire differs from Chat Completions throughout:
//
//   - the conversation rides in "input" items, not "messages"; the system
//     prompt uses the developer role
//   - tool calls are standalone function_call items with separate call and
//     item IDs, and tool results are function_call_output items
//   - reasoning arrives as summary parts; parts are joined with a blank line
//   - output caps use max_output_tokens
//
// The call and item IDs are both needed on replay, so tool call IDs here are
// compound: "call_id|item_id".
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/omnillm/internal/backoff"
	"github.com/haasonsaas/omnillm/internal/sse"
	"github.com/haasonsaas/omnillm/pkg/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// maxConnectAttempts bounds the pre-stream retry loop; 429 and 5xx before
// any event is received are retried with backoff.
const maxConnectAttempts = 3

var httpClient = &http.Client{Timeout: 10 * time.Minute}

// Wire types.

// inputItem is the input union; only the fields for its type are set.
type inputItem struct {
	Type string `json:"type"`
	Role string `json:"role,omitempty"`

	// type=message
	Content json.RawMessage `json:"content,omitempty"`

	// type=function_call
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// type=function_call_output
	Output string `json:"output,omitempty"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Detail   string `json:"detail,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

type wireTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict"`
}

type wireReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type wireRequest struct {
	Model           string         `json:"model"`
	Input           []inputItem    `json:"input"`
	Tools           []wireTool     `json:"tools,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
	Stream          bool           `json:"stream"`
	Reasoning       *wireReasoning `json:"reasoning,omitempty"`
}

type wireEvent struct {
	Type string `json:"type"`

	Item      *wireItem     `json:"item,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Response  *wireResponse `json:"response,omitempty"`

	// type=error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type wireItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "message" | "function_call" | "reasoning"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireResponse struct {
	Status string     `json:"status"`
	Usage  *wireUsage `json:"usage,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type wireUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

// Stream opens a streaming Responses request.
func Stream(ctx context.Context, model *llm.Model, lc llm.Context, opts llm.StreamOptions, id string) (*llm.MessageStream, error) {
	key, err := llm.ResolveAPIKey(model.API, opts.APIKey)
	if err != nil {
		return nil, err
	}
	req, err := buildRequest(model, lc, opts)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &llm.ProtocolError{API: model.API, Detail: "request encode: " + err.Error()}
	}

	out := llm.NewMessageStream()
	go process(ctx, model, key, body, opts.Headers, id, out)
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

func buildRequest(model *llm.Model, lc llm.Context, opts llm.StreamOptions) (wireRequest, error) {
	req := wireRequest{
		Model:           model.ID,
		Stream:          true,
		MaxOutputTokens: opts.EffectiveMaxTokens(model),
		Temperature:     opts.Temperature,
	}

	if model.Reasoning {
		req.Reasoning = &wireReasoning{
			Effort:  effortForBudget(opts.ThinkingBudgetTokens),
			Summary: "auto",
		}
	}

	if lc.SystemPrompt != "" {
		content, err := json.Marshal([]contentPart{{
			Type: "input_text",
			Text: llm.SanitizeSurrogates(lc.SystemPrompt),
		}})
		if err != nil {
			return wireRequest{}, err
		}
		req.Input = append(req.Input, inputItem{Type: "message", Role: "developer", Content: content})
	}

	for _, m := range lc.Messages {
		items, err := convertMessage(model, m)
		if err != nil {
			return wireRequest{}, err
		}
		req.Input = append(req.Input, items...)
	}

	if model.HasCapability(llm.CapabilityFunctionCalling) {
		for _, t := range lc.Tools {
			req.Tools = append(req.Tools, wireTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
	}

	return req, nil
}

// effortForBudget folds an Anthropic-style token budget onto the discrete
// effort scale this API takes instead.
func effortForBudget(budget int) string {
	switch {
	case budget == 0:
		return "medium"
	case budget <= 2048:
		return "low"
	case budget <= 8192:
		return "medium"
	default:
		return "high"
	}
}

func convertMessage(model *llm.Model, m llm.Message) ([]inputItem, error) {
	switch msg := m.(type) {
	case *llm.CustomMessage:
		return nil, nil

	case *llm.UserMessage:
		var parts []contentPart
		for _, c := range msg.Content {
			switch b := c.(type) {
			case llm.TextContent:
				parts = append(parts, contentPart{Type: "input_text", Text: llm.SanitizeSurrogates(b.Text)})
			case llm.ImageContent:
				if !model.SupportsModality(llm.ModalityImage) {
					continue
				}
				parts = append(parts, contentPart{
					Type:     "input_image",
					Detail:   "auto",
					ImageURL: fmt.Sprintf("data:%s;base64,%s", b.MimeType, b.Data),
				})
			case llm.FileContent:
				if !model.SupportsModality(llm.ModalityFile) {
					continue
				}
				parts = append(parts, contentPart{
					Type:     "input_file",
					Filename: b.Filename,
					FileData: fmt.Sprintf("data:%s;base64,%s", b.MimeType, b.Data),
				})
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		content, err := json.Marshal(parts)
		if err != nil {
			return nil, err
		}
		return []inputItem{{Type: "message", Role: "user", Content: content}}, nil

	case *llm.ToolResultMessage:
		callID, _ := splitCompoundID(msg.ToolCallID)
		text := llm.SanitizeSurrogates(msg.Content.Text())
		if text == "" && hasAttachments(msg.Content) {
			text = "(see attached)"
		}
		if msg.IsError {
			text = "[TOOL ERROR] " + text
		}
		return []inputItem{{Type: "function_call_output", CallID: callID, Output: text}}, nil

	case *llm.AssistantMessage:
		if msg.API == model.API {
			if native, ok := msg.NativeMessage.([]inputItem); ok && len(native) > 0 {
				return native, nil
			}
		}
		return translateAssistant(msg)
	}
	return nil, &llm.TranslationError{To: llm.APIOpenAIResponses, Detail: fmt.Sprintf("unsupported message type %T", m)}
}

// translateAssistant rebuilds an assistant turn as input items. Thinking has
// no replayable input form on this wire, so it rides in the text body.
func translateAssistant(msg *llm.AssistantMessage) ([]inputItem, error) {
	var items []inputItem
	var textParts []contentPart

	flushText := func() error {
		if len(textParts) == 0 {
			return nil
		}
		content, err := json.Marshal(textParts)
		if err != nil {
			return err
		}
		items = append(items, inputItem{Type: "message", Role: "assistant", Content: content})
		textParts = nil
		return nil
	}

	for _, block := range msg.Content {
		switch b := block.(type) {
		case llm.ThinkingBlock:
			if strings.TrimSpace(b.Text) != "" {
				textParts = append(textParts, contentPart{
					Type: "output_text",
					Text: "<thinking>\n" + llm.SanitizeSurrogates(b.Text) + "\n</thinking>",
				})
			}
		case llm.ResponseBlock:
			if text := llm.SanitizeSurrogates(b.Content.Text()); strings.TrimSpace(text) != "" {
				textParts = append(textParts, contentPart{Type: "output_text", Text: text})
			}
		case llm.ToolCallBlock:
			if err := flushText(); err != nil {
				return nil, err
			}
			callID, itemID := splitCompoundID(b.CallID)
			args := "{}"
			if b.Arguments != nil {
				if raw, err := json.Marshal(b.Arguments); err == nil {
					args = string(raw)
				}
			}
			items = append(items, inputItem{
				Type:      "function_call",
				ID:        itemID,
				CallID:    callID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	if err := flushText(); err != nil {
		return nil, err
	}
	return items, nil
}

func process(ctx context.Context, model *llm.Model, key string, body []byte, headers map[string]string, id string, out *llm.MessageStream) {
	b := llm.NewStreamBuilder(model, id, out)
	b.Start()

	resp, err := connect(ctx, model, key, body, headers)
	if err != nil {
		failWith(ctx, b, err)
		return
	}
	defer resp.Body.Close()

	var (
		dec         = sse.NewDecoder(resp.Body)
		currentType string // open item type
		status      string
		errMsg      string
		// reasoning summary parts are joined with a blank line
		pendingSeparator bool
	)

	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			b.Message().NativeMessage = nativeItems(b.Message())
			failWith(ctx, b, &llm.ProtocolError{API: model.API, Detail: "sse read: " + err.Error()})
			return
		}
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}
		var e wireEvent
		if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
			continue
		}

		switch e.Type {
		case "response.output_item.added":
			if e.Item == nil {
				continue
			}
			currentType = e.Item.Type
			switch e.Item.Type {
			case "message":
				b.OpenText()
			case "reasoning":
				b.OpenThinking()
				pendingSeparator = false
			case "function_call":
				b.OpenToolCall(compoundID(e.Item.CallID, e.Item.ID), e.Item.Name)
			}

		case "response.output_text.delta":
			if currentType == "message" {
				b.AppendText(e.Delta)
			}

		case "response.reasoning_summary_text.delta":
			if currentType == "reasoning" {
				if pendingSeparator {
					b.AppendThinking("\n\n")
					pendingSeparator = false
				}
				b.AppendThinking(e.Delta)
			}

		case "response.reasoning_summary_part.done":
			if currentType == "reasoning" {
				pendingSeparator = true
			}

		case "response.function_call_arguments.delta":
			if currentType == "function_call" {
				b.AppendToolArgs(e.Delta)
			}

		case "response.function_call_arguments.done":
			// Safety net for servers that skip argument deltas.
			if currentType == "function_call" && b.RawToolArgs() == "" && e.Arguments != "" {
				b.AppendToolArgs(e.Arguments)
			}

		case "response.output_item.done":
			if currentType == "function_call" && e.Item != nil &&
				b.RawToolArgs() == "" && e.Item.Arguments != "" {
				b.AppendToolArgs(e.Item.Arguments)
			}
			b.CloseBlock()
			currentType = ""
			pendingSeparator = false

		case "response.completed", "response.incomplete", "response.failed":
			if e.Response != nil {
				status = e.Response.Status
				if e.Response.Usage != nil {
					b.AddUsage(normalizeUsage(e.Response.Usage))
				}
				if e.Response.Error != nil {
					errMsg = e.Response.Error.Message
				}
			}

		case "error":
			b.Message().NativeMessage = nativeItems(b.Message())
			b.Fail(llm.StopReasonError, fmt.Sprintf("API error %s: %s", e.Code, e.Message))
			return
		}
	}

	reason, ok := mapStatus(status)
	if !ok {
		b.Fail(llm.StopReasonError, (&llm.ProtocolError{
			API: model.API, Detail: "unknown response status " + status,
		}).Error())
		return
	}
	b.Message().NativeMessage = nativeItems(b.Message())
	if reason == llm.StopReasonError {
		if errMsg == "" {
			errMsg = "response " + status
		}
		b.Fail(llm.StopReasonError, errMsg)
		return
	}
	b.Finish(reason)
}

// connect posts the request, retrying transient failures before any stream
// data is consumed. Non-2xx responses become errors carrying the body; an
// empty body keeps the bare "N status code (no body)" shape used for
// overflow classification.
func connect(ctx context.Context, model *llm.Model, key string, body []byte, headers map[string]string) (*http.Response, error) {
	baseURL := defaultBaseURL
	if model.BaseURL != "" {
		baseURL = model.BaseURL
	}
	return backoff.Retry(ctx, backoff.Default(), maxConnectAttempts,
		func() (*http.Response, bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/responses", bytes.NewReader(body))
			if err != nil {
				return nil, false, err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+key)
			for k, v := range model.Headers {
				req.Header.Set(k, v)
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, false, err
			}
			if resp.StatusCode != http.StatusOK {
				payload, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				retryable := resp.StatusCode == 429 || resp.StatusCode >= 500
				if len(bytes.TrimSpace(payload)) == 0 {
					return nil, retryable, fmt.Errorf("%d status code (no body)", resp.StatusCode)
				}
				return nil, retryable, fmt.Errorf("HTTP %d: %s", resp.StatusCode, payload)
			}
			return resp, false, nil
		})
}

func failWith(ctx context.Context, b *llm.StreamBuilder, err error) {
	if ctx.Err() != nil {
		b.Fail(llm.StopReasonAborted, err.Error())
		return
	}
	b.Fail(llm.StopReasonError, err.Error())
}

func normalizeUsage(u *wireUsage) llm.Usage {
	cached := u.InputTokensDetails.CachedTokens
	input := u.InputTokens - cached
	if input < 0 {
		input = 0
	}
	return llm.Usage{
		Input:       input,
		Output:      u.OutputTokens,
		CacheRead:   cached,
		TotalTokens: u.TotalTokens,
	}
}

func mapStatus(status string) (llm.StopReason, bool) {
	switch status {
	case "", "completed":
		return llm.StopReasonStop, true
	case "incomplete":
		return llm.StopReasonLength, true
	case "failed", "cancelled":
		return llm.StopReasonError, true
	default:
		return "", false
	}
}

// nativeItems records the input-item form of the finished message for
// same-provider replay.
func nativeItems(msg *llm.AssistantMessage) any {
	items, err := translateAssistant(msg)
	if err != nil || len(items) == 0 {
		return nil
	}
	return items
}

func compoundID(callID, itemID string) string {
	if callID == "" {
		return itemID
	}
	return callID + "|" + itemID
}

// splitCompoundID splits "call_id|item_id"; without a separator the whole
// string serves as both.
func splitCompoundID(id string) (callID, itemID string) {
	if idx := strings.Index(id, "|"); idx != -1 {
		return id[:idx], id[idx+1:]
	}
	return id, id
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
