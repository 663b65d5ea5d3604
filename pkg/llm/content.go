package llm

import (
	"encoding/json"
	"fmt"
)

// ContentBlock is one element of user-visible content: text, an image, or a
// file attachment. It is a closed tagged variant; the type discriminator in
// JSON is the "type" field.
type ContentBlock interface {
	contentBlock()
}

// TextContent is a plain text block.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent is a base64-encoded image.
type ImageContent struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// FileContent is a base64-encoded file attachment.
type FileContent struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

func (TextContent) contentBlock()  {}
func (ImageContent) contentBlock() {}
func (FileContent) contentBlock()  {}

// Content is an ordered sequence of content blocks. It serializes each block
// with a "type" tag so the variant survives a JSON round-trip.
type Content []ContentBlock

// Text concatenates all text blocks, joined with newlines. Non-text blocks
// are skipped.
func (c Content) Text() string {
	var out string
	for _, b := range c {
		if t, ok := b.(TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(c))
	for _, b := range c {
		var (
			raw []byte
			err error
		)
		switch v := b.(type) {
		case TextContent:
			raw, err = json.Marshal(struct {
				Type string `json:"type"`
				TextContent
			}{"text", v})
		case ImageContent:
			raw, err = json.Marshal(struct {
				Type string `json:"type"`
				ImageContent
			}{"image", v})
		case FileContent:
			raw, err = json.Marshal(struct {
				Type string `json:"type"`
				FileContent
			}{"file", v})
		default:
			err = fmt.Errorf("unknown content block type %T", b)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Content, 0, len(raws))
	for _, raw := range raws {
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		switch tag.Type {
		case "text":
			var v TextContent
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v)
		case "image":
			var v ImageContent
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v)
		case "file":
			var v FileContent
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			out = append(out, v)
		default:
			return fmt.Errorf("unknown content block type %q", tag.Type)
		}
	}
	*c = out
	return nil
}
