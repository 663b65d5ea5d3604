package openaicompat

import (
	"strings"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// thinkSplitter routes streamed content to the builder, peeling a leading
// <think>...</think> section into thinking deltas. Cerebras GLM models emit
// reasoning inline this way rather than under reasoning_content. Tags can be
// split across chunk boundaries, so a partial match is carried to the next
// write.
type thinkSplitter struct {
	enabled bool
	b       *llm.StreamBuilder
	carry   string
	state   thinkState
}

type thinkState int

const (
	thinkLead   thinkState = iota // before content: optional open tag
	thinkInside                   // between tags
	thinkPlain                    // past the think section, or no tag
)

func newThinkSplitter(enabled bool, b *llm.StreamBuilder) *thinkSplitter {
	return &thinkSplitter{enabled: enabled, b: b}
}

func (t *thinkSplitter) write(s string) {
	if !t.enabled {
		t.b.AppendText(s)
		return
	}
	t.carry += s
	for t.carry != "" {
		switch t.state {
		case thinkLead:
			trimmed := strings.TrimLeft(t.carry, " \t\r\n")
			if trimmed == "" {
				t.carry = ""
				return
			}
			if strings.HasPrefix(trimmed, thinkOpenTag) {
				t.carry = trimmed[len(thinkOpenTag):]
				t.state = thinkInside
				continue
			}
			if strings.HasPrefix(thinkOpenTag, trimmed) {
				// Might still complete into the open tag.
				t.carry = trimmed
				return
			}
			t.carry = trimmed
			t.state = thinkPlain

		case thinkInside:
			if i := strings.Index(t.carry, thinkCloseTag); i >= 0 {
				t.b.AppendThinking(t.carry[:i])
				t.carry = strings.TrimLeft(t.carry[i+len(thinkCloseTag):], "\n")
				t.state = thinkPlain
				continue
			}
			hold := partialTagSuffix(t.carry, thinkCloseTag)
			t.b.AppendThinking(t.carry[:len(t.carry)-hold])
			t.carry = t.carry[len(t.carry)-hold:]
			return

		case thinkPlain:
			t.b.AppendText(t.carry)
			t.carry = ""
			return
		}
	}
}

// flush drains anything still carried, treating an unterminated think
// section as thinking and an incomplete open tag as plain text.
func (t *thinkSplitter) flush() {
	if t.carry == "" {
		return
	}
	switch t.state {
	case thinkInside:
		t.b.AppendThinking(t.carry)
	default:
		t.b.AppendText(t.carry)
	}
	t.carry = ""
	t.state = thinkPlain
}

// partialTagSuffix returns the length of the longest proper prefix of tag
// that s ends with.
func partialTagSuffix(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
