package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/unicode"
)

func TestLookupCharset(t *testing.T) {
	t.Run("empty label is utf-8", func(t *testing.T) {
		assert.Equal(t, unicode.UTF8, lookupCharset(""))
	})

	t.Run("unknown label is utf-8", func(t *testing.T) {
		assert.Equal(t, unicode.UTF8, lookupCharset("no-such-charset"))
	})

	t.Run("label is trimmed and case-insensitive", func(t *testing.T) {
		enc := lookupCharset("  ISO-8859-1  ")
		out, err := enc.NewDecoder().Bytes([]byte{0xE9})
		assert.NoError(t, err)
		assert.Equal(t, "é", string(out))
	})
}

func TestStreamDecoder(t *testing.T) {
	t.Run("utf-8 passes through", func(t *testing.T) {
		d := NewStreamDecoder("utf-8")
		assert.Equal(t, "héllo wörld", d.Decode([]byte("héllo wörld")))
		assert.Equal(t, "", d.Flush())
	})

	t.Run("latin-1 bytes become utf-8 text", func(t *testing.T) {
		d := NewStreamDecoder("iso-8859-1")
		assert.Equal(t, "café", d.Decode([]byte{'c', 'a', 'f', 0xE9}))
	})

	t.Run("multi-byte sequence split across chunks", func(t *testing.T) {
		d := NewStreamDecoder("utf-8")
		// "é" is 0xC3 0xA9; the first chunk ends mid-sequence.
		assert.Equal(t, "caf", d.Decode([]byte{'c', 'a', 'f', 0xC3}))
		assert.Equal(t, "é!", d.Decode([]byte{0xA9, '!'}))
		assert.Equal(t, "", d.Flush())
	})

	t.Run("flush decodes a truncated tail", func(t *testing.T) {
		d := NewStreamDecoder("utf-8")
		assert.Equal(t, "ok", d.Decode([]byte{'o', 'k', 0xC3}))
		assert.Equal(t, "�", d.Flush())
	})

	t.Run("bad label degrades to utf-8", func(t *testing.T) {
		d := NewStreamDecoder("not-a-real-charset")
		assert.Equal(t, "plain", d.Decode([]byte("plain")))
	})
}

func TestUnescapeUnicode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no escapes", "plain text", "plain text"},
		{"basic escape", `\u0041\u0042\u0043`, "ABC"},
		{"uppercase hex", `\u00C9`, "É"},
		{"embedded in text", `say \u00e9 twice`, "say é twice"},
		{"double quote re-escaped", `{"a":"\u0022quoted\u0022"}`, `{"a":"\"quoted\""}`},
		{"surrogate pair", `\ud83d\ude00`, "😀"},
		{"lone high surrogate stays literal", `\ud800x`, `\ud800x`},
		{"lone low surrogate stays literal", `\ude00`, `\ude00`},
		{"truncated escape stays literal", `\u12`, `\u12`},
		{"non-hex stays literal", `\uzzzz`, `\uzzzz`},
		{"backslash without u", `\n\t`, `\n\t`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnescapeUnicode(tt.input))
		})
	}
}
