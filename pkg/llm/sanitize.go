package llm

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// SanitizeSurrogates removes unpaired UTF-16 surrogate code points from s.
//
// Strings assembled from streaming deltas or naive UTF-16 sources can carry a
// high surrogate with no matching low surrogate (or vice versa); most
// provider APIs reject such strings as invalid JSON text. Scanning left to
// right, a high surrogate is kept only when immediately followed by a low
// surrogate, and a low surrogate only when it completes the preceding high
// surrogate. Valid pairs — emoji, ZWJ sequences, skin-tone modifiers — pass
// through untouched, as does all well-formed UTF-8. The function is
// idempotent.
//
// Every string crossing a provider boundary goes through here: system
// prompts, user text, tool-result text, and assistant text re-serialized for
// a cross-provider request.
func SanitizeSurrogates(s string) string {
	// Fast path: well-formed UTF-8 cannot contain surrogate code points,
	// and nearly every string is clean.
	if utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid byte sequence. WTF-8 encodes a lone surrogate as a
			// 3-byte sequence; decode it by hand to apply the pairing rule.
			if hi, ok := decodeWTF8Surrogate(s[i:]); ok {
				if utf16.IsSurrogate(hi) && hi >= 0xD800 && hi < 0xDC00 {
					// High surrogate: keep only if a low surrogate follows.
					if lo, ok2 := decodeWTF8Surrogate(s[i+3:]); ok2 {
						if dec := utf16.DecodeRune(hi, lo); dec != utf8.RuneError {
							b.WriteRune(dec)
							i += 6
							continue
						}
					}
				}
				// Unpaired (or bare low) surrogate: drop it.
				i += 3
				continue
			}
			// Garbage byte: drop it.
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// decodeWTF8Surrogate decodes a 3-byte WTF-8 sequence encoding a surrogate
// code point (U+D800–U+DFFF). Standard UTF-8 decoding rejects these, so the
// bytes are assembled manually.
func decodeWTF8Surrogate(s string) (rune, bool) {
	if len(s) < 3 {
		return 0, false
	}
	b0, b1, b2 := s[0], s[1], s[2]
	if b0&0xF0 != 0xE0 || b1&0xC0 != 0x80 || b2&0xC0 != 0x80 {
		return 0, false
	}
	r := rune(b0&0x0F)<<12 | rune(b1&0x3F)<<6 | rune(b2&0x3F)
	if r < 0xD800 || r > 0xDFFF {
		return 0, false
	}
	return r, true
}
