package llm

import (
	"encoding/json"
	"fmt"
)

// Role identifies the kind of a conversation message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
	// RoleCustom marks caller-defined payloads that ride along in the
	// conversation but are filtered out before any model call.
	RoleCustom Role = "custom"
)

// Message is one entry in a conversation: user input, an assistant response,
// a tool result, or an opaque custom payload. It is a closed tagged variant.
type Message interface {
	GetRole() Role
	GetID() string
	GetTimestamp() int64
}

// UserMessage is input supplied by the caller.
type UserMessage struct {
	ID        string  `json:"id"`
	Content   Content `json:"content"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// ErrorDetail describes a tool execution failure attached to a
// ToolResultMessage.
type ErrorDetail struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// ToolResultMessage carries the outcome of one tool call back to the model.
type ToolResultMessage struct {
	ID         string         `json:"id"`
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Content    Content        `json:"content"`
	IsError    bool           `json:"isError"`
	Error      *ErrorDetail   `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// AssistantMessage is a model response. Content holds the normalized block
// sequence; NativeMessage holds the provider's own message form so a
// same-provider follow-up can round-trip it without translation.
type AssistantMessage struct {
	ID           string           `json:"id"`
	API          API              `json:"api"`
	Model        string           `json:"model"`
	Timestamp    int64            `json:"timestamp"`
	DurationMS   int64            `json:"durationMs"`
	StopReason   StopReason       `json:"stopReason"`
	Content      AssistantContent `json:"content"`
	Usage        Usage            `json:"usage"`
	ErrorMessage string           `json:"errorMessage,omitempty"`

	// NativeMessage is adapter-specific and treated as opaque. It survives
	// JSON serialization as raw JSON but deserializes to a generic value;
	// adapters fall back to canonical translation when the concrete native
	// form is unavailable.
	NativeMessage any `json:"nativeMessage,omitempty"`
}

// CustomMessage is an opaque caller payload. The model never sees it.
type CustomMessage struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func (m *UserMessage) GetRole() Role        { return RoleUser }
func (m *UserMessage) GetID() string        { return m.ID }
func (m *UserMessage) GetTimestamp() int64  { return m.Timestamp }
func (m *ToolResultMessage) GetRole() Role  { return RoleToolResult }
func (m *ToolResultMessage) GetID() string  { return m.ID }
func (m *ToolResultMessage) GetTimestamp() int64 { return m.Timestamp }
func (m *AssistantMessage) GetRole() Role   { return RoleAssistant }
func (m *AssistantMessage) GetID() string   { return m.ID }
func (m *AssistantMessage) GetTimestamp() int64 { return m.Timestamp }
func (m *CustomMessage) GetRole() Role      { return RoleCustom }
func (m *CustomMessage) GetID() string      { return m.ID }
func (m *CustomMessage) GetTimestamp() int64 { return m.Timestamp }

// AssistantBlock is one element of an assistant response: visible output,
// reasoning text, or a tool call.
type AssistantBlock interface {
	assistantBlock()
}

// ResponseBlock is user-visible assistant output.
type ResponseBlock struct {
	Content Content `json:"content"`
}

// ThinkingBlock is reasoning text surfaced by reasoning-capable models.
type ThinkingBlock struct {
	Text string `json:"text"`
}

// ToolCallBlock is a model request to invoke a named tool. Arguments holds
// the current best parse of the argument JSON; while the block is streaming
// it may be a partial object.
type ToolCallBlock struct {
	CallID    string         `json:"callId"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (ResponseBlock) assistantBlock() {}
func (ThinkingBlock) assistantBlock() {}
func (ToolCallBlock) assistantBlock() {}

// AssistantContent is the ordered block sequence of an assistant response.
type AssistantContent []AssistantBlock

// ToolCalls returns the tool call blocks in emission order.
func (c AssistantContent) ToolCalls() []ToolCallBlock {
	var out []ToolCallBlock
	for _, b := range c {
		if tc, ok := b.(ToolCallBlock); ok {
			out = append(out, tc)
		}
	}
	return out
}

// Text concatenates the text of all response blocks.
func (c AssistantContent) Text() string {
	var out string
	for _, b := range c {
		if r, ok := b.(ResponseBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += r.Content.Text()
		}
	}
	return out
}

// ThinkingText concatenates the text of all thinking blocks.
func (c AssistantContent) ThinkingText() string {
	var out string
	for _, b := range c {
		if t, ok := b.(ThinkingBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (c AssistantContent) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(c))
	for _, b := range c {
		var (
			raw []byte
			err error
		)
		switch v := b.(type) {
		case ResponseBlock:
			raw, err = json.Marshal(struct {
				Type string `json:"type"`
				ResponseBlock
			}{"response", v})
		case ThinkingBlock:
			raw, err = json.Marshal(struct {
				Type string `json:"type"`
				ThinkingBlock
			}{"thinking", v})
		case ToolCallBlock:
			raw, err = json.Marshal(struct {
				Type string `json:"type"`
				ToolCallBlock
			}{"toolCall", v})
		default:
			err = fmt.Errorf("unknown assistant block type %T", b)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *AssistantContent) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(AssistantContent, 0, len(raws))
	for _, raw := range raws {
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		switch tag.Type {
		case "response":
			var v ResponseBlock
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v)
		case "thinking":
			var v ThinkingBlock
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v)
		case "toolCall":
			var v ToolCallBlock
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v)
		default:
			return fmt.Errorf("unknown assistant block type %q", tag.Type)
		}
	}
	*c = out
	return nil
}

// Clone returns a deep copy of the message. Streaming adapters attach a clone
// to every event so subscribers observe a consistent snapshot while the
// original keeps accumulating.
func (m *AssistantMessage) Clone() *AssistantMessage {
	if m == nil {
		return nil
	}
	out := *m
	out.Content = make(AssistantContent, len(m.Content))
	for i, b := range m.Content {
		switch v := b.(type) {
		case ResponseBlock:
			cb := ResponseBlock{Content: append(Content(nil), v.Content...)}
			out.Content[i] = cb
		case ToolCallBlock:
			tc := v
			if v.Arguments != nil {
				tc.Arguments = make(map[string]any, len(v.Arguments))
				for k, av := range v.Arguments {
					tc.Arguments[k] = av
				}
			}
			out.Content[i] = tc
		default:
			out.Content[i] = b
		}
	}
	return &out
}

// MarshalMessage serializes a message with a role tag so the concrete variant
// survives a round-trip through UnmarshalMessage.
func MarshalMessage(m Message) ([]byte, error) {
	type env struct {
		Role Role `json:"role"`
	}
	switch v := m.(type) {
	case *UserMessage:
		return json.Marshal(struct {
			env
			*UserMessage
		}{env{RoleUser}, v})
	case *ToolResultMessage:
		return json.Marshal(struct {
			env
			*ToolResultMessage
		}{env{RoleToolResult}, v})
	case *AssistantMessage:
		return json.Marshal(struct {
			env
			*AssistantMessage
		}{env{RoleAssistant}, v})
	case *CustomMessage:
		return json.Marshal(struct {
			env
			*CustomMessage
		}{env{RoleCustom}, v})
	default:
		return nil, fmt.Errorf("unknown message type %T", m)
	}
}

// UnmarshalMessage deserializes a message produced by MarshalMessage. The
// NativeMessage of an assistant message comes back as a generic JSON value.
func UnmarshalMessage(data []byte) (Message, error) {
	var tag struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Role {
	case RoleUser:
		var v UserMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case RoleToolResult:
		var v ToolResultMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case RoleAssistant:
		var v AssistantMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case RoleCustom:
		var v CustomMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", tag.Role)
	}
}

// MarshalMessages serializes a message history.
func MarshalMessages(msgs []Message) ([]byte, error) {
	raws := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		raw, err := MarshalMessage(m)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// UnmarshalMessages deserializes a message history.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	out := make([]Message, len(raws))
	for i, raw := range raws {
		m, err := UnmarshalMessage(raw)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
