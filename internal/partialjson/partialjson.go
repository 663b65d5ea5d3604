// Package partialjson parses possibly-truncated prefixes of JSON documents.
//
// Streaming tool-call arguments arrive as incremental text fragments; callers
// want to render the arguments assembled so far without waiting for the final
// byte. Parse accepts any prefix of a JSON object or array and returns the
// best interpretation of what has been received:
//
//   - Empty or whitespace-only input yields an empty object.
//   - Complete valid JSON yields the standard parse.
//   - A string truncated mid-value yields the characters received so far.
//   - A number or literal truncated mid-token is dropped along with its key.
//   - Garbage input yields an empty object. Parse never panics.
//
// Parse is a pure function and is called once per streaming delta, so it
// favors a single left-to-right scan with no backtracking beyond token
// boundaries.
package partialjson

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Parse returns the best-effort interpretation of a possibly-truncated JSON
// prefix. The result is always non-nil; unparseable input produces an empty
// map.
func Parse(s string) map[string]any {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}
	}

	// Fast path: complete valid JSON object.
	if s[0] == '{' {
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err == nil && out != nil {
			return out
		}
	}

	p := &parser{src: s}
	v, ok := p.value()
	if !ok {
		return map[string]any{}
	}
	if m, isMap := v.(map[string]any); isMap {
		return m
	}
	// A bare array or scalar prefix is not an arguments object.
	return map[string]any{}
}

// ParseValue parses a truncated prefix of any JSON value (object, array,
// string, number, literal). It returns the parsed value and whether anything
// usable was recovered.
func ParseValue(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	p := &parser{src: s}
	return p.value()
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// value parses one JSON value starting at the current position. The second
// return is false when the token is too incomplete to represent (a bare "tr"
// or "-1.2e"), in which case the caller drops the surrounding key.
func (p *parser) value() (any, bool) {
	p.skipSpace()
	if p.eof() {
		return nil, false
	}
	switch c := p.peek(); {
	case c == '{':
		return p.object(), true
	case c == '[':
		return p.array(), true
	case c == '"':
		s, _ := p.stringLit()
		return s, true
	case c == 't' || c == 'f' || c == 'n':
		return p.literal()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		// Unrecognized byte: consume it so object/array loops make progress.
		p.pos++
		return nil, false
	}
}

// object parses from '{'. Keys whose values were dropped (truncated numbers,
// literals, or a missing ':') are omitted from the result.
func (p *parser) object() map[string]any {
	p.pos++ // consume '{'
	out := map[string]any{}
	for {
		p.skipSpace()
		if p.eof() {
			return out
		}
		switch p.peek() {
		case '}':
			p.pos++
			return out
		case ',':
			p.pos++
			continue
		case '"':
			key, complete := p.stringLit()
			if !complete {
				// Key truncated mid-string: no value can follow.
				return out
			}
			p.skipSpace()
			if p.eof() {
				return out
			}
			if p.peek() != ':' {
				// Malformed; drop the key and resync.
				continue
			}
			p.pos++
			p.skipSpace()
			if p.eof() {
				return out
			}
			if v, ok := p.value(); ok {
				out[key] = v
			}
		default:
			// Junk between members; skip one byte and resync.
			p.pos++
		}
	}
}

func (p *parser) array() []any {
	p.pos++ // consume '['
	out := []any{}
	for {
		p.skipSpace()
		if p.eof() {
			return out
		}
		switch p.peek() {
		case ']':
			p.pos++
			return out
		case ',':
			p.pos++
			continue
		default:
			if v, ok := p.value(); ok {
				out = append(out, v)
			}
		}
	}
}

// stringLit parses from '"'. complete is false when input ended before the
// closing quote; the decoded prefix is still returned. A trailing incomplete
// escape sequence is discarded rather than guessed at.
func (p *parser) stringLit() (s string, complete bool) {
	p.pos++ // consume '"'
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		if c == '"' {
			p.pos++
			return b.String(), true
		}
		if c != '\\' {
			b.WriteByte(c)
			p.pos++
			continue
		}
		// Escape sequence.
		if p.pos+1 >= len(p.src) {
			p.pos = len(p.src)
			return b.String(), false
		}
		esc := p.src[p.pos+1]
		switch esc {
		case '"', '\\', '/':
			b.WriteByte(esc)
			p.pos += 2
		case 'b':
			b.WriteByte('\b')
			p.pos += 2
		case 'f':
			b.WriteByte('\f')
			p.pos += 2
		case 'n':
			b.WriteByte('\n')
			p.pos += 2
		case 'r':
			b.WriteByte('\r')
			p.pos += 2
		case 't':
			b.WriteByte('\t')
			p.pos += 2
		case 'u':
			if p.pos+6 > len(p.src) {
				p.pos = len(p.src)
				return b.String(), false
			}
			n, err := strconv.ParseUint(p.src[p.pos+2:p.pos+6], 16, 32)
			if err != nil {
				p.pos += 2
				continue
			}
			r := rune(n)
			p.pos += 6
			if utf16.IsSurrogate(r) {
				// Try to pair with a following \uXXXX low surrogate.
				if p.pos+6 <= len(p.src) && p.src[p.pos] == '\\' && p.src[p.pos+1] == 'u' {
					if n2, err2 := strconv.ParseUint(p.src[p.pos+2:p.pos+6], 16, 32); err2 == nil {
						if dec := utf16.DecodeRune(r, rune(n2)); dec != 0xFFFD {
							b.WriteRune(dec)
							p.pos += 6
							continue
						}
					}
				}
				// Unpaired surrogate: drop it.
				continue
			}
			b.WriteRune(r)
		default:
			// Unknown escape; keep the raw character.
			b.WriteByte(esc)
			p.pos += 2
		}
	}
	return b.String(), false
}

// literal parses true/false/null. A truncated literal reports ok=false.
func (p *parser) literal() (any, bool) {
	rest := p.src[p.pos:]
	for lit, v := range map[string]any{"true": true, "false": false, "null": nil} {
		if strings.HasPrefix(rest, lit) {
			p.pos += len(lit)
			return v, true
		}
		if strings.HasPrefix(lit, rest) {
			p.pos = len(p.src)
			return nil, false
		}
	}
	p.pos++
	return nil, false
}

// number parses a JSON number. A number cut off at end of input is treated as
// incomplete (the next delta may extend it), so it is dropped.
func (p *parser) number() (any, bool) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	tok := p.src[start:p.pos]
	if p.eof() {
		// Possibly truncated mid-number; "12" could become "123".
		return nil, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}
