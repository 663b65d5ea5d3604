package llm

import "testing"

func TestSanitizeSurrogates(t *testing.T) {
	// WTF-8 encodings of a lone high (U+D83D) and lone low (U+DE00)
	// surrogate, as produced by naive UTF-16 to UTF-8 transcoding.
	loneHigh := string([]byte{0xED, 0xA0, 0xBD})
	loneLow := string([]byte{0xED, 0xB8, 0x80})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain ascii", "hello world", "hello world"},
		{"emoji preserved", "hi 😀 there", "hi 😀 there"},
		{"zwj sequence preserved", "👩‍👩‍👧‍👦 family", "👩‍👩‍👧‍👦 family"},
		{"skin tone preserved", "👍🏽", "👍🏽"},
		{"lone high dropped", "a" + loneHigh + "b", "ab"},
		{"lone low dropped", "a" + loneLow + "b", "ab"},
		{"trailing high dropped", "text" + loneHigh, "text"},
		{"wtf8 pair recombined", loneHigh + loneLow, "😀"},
		{"cjk preserved", "日本語テスト", "日本語テスト"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeSurrogates(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeSurrogates(%q) = %q, want %q", tt.input, got, tt.want)
			}
			// Idempotence: a second pass must be a no-op.
			if again := SanitizeSurrogates(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}
