package http

import (
	nethttp "net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproximateHeaderSize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, int64(0), approximateHeaderSize(nethttp.Header{}))
	})

	t.Run("sums names and values plus half the count", func(t *testing.T) {
		h := nethttp.Header{
			"Content-Type": {"application/json"},
			"X-A":          {"1", "22"},
		}
		// 12+16 + 3+1 + 3+2 = 37, three entries add 3/2 = 1.
		assert.Equal(t, int64(38), approximateHeaderSize(h))
	})
}

func TestFlattenHeader(t *testing.T) {
	h := nethttp.Header{
		"Accept":     {"text/html", "application/json"},
		"X-Single":   {"one"},
		"Set-Cookie": {"a=1", "b=2"},
	}
	flat := flattenHeader(h)
	assert.Equal(t, map[string]string{
		"Accept":     "text/html, application/json",
		"X-Single":   "one",
		"Set-Cookie": "a=1, b=2",
	}, flat)
}

func TestContentTypeParts(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		wantEssence string
		wantCharset string
	}{
		{"empty", "", "", ""},
		{"bare type", "application/json", "application/json", ""},
		{"mixed case with charset", "Text/HTML; charset=ISO-8859-1", "text/html", "ISO-8859-1"},
		{"event stream", "text/event-stream; charset=utf-8", "text/event-stream", "utf-8"},
		{"malformed parameters fall back to the prefix", "text/html; charset", "text/html", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			essence, charsetLabel := contentTypeParts(tt.value)
			assert.Equal(t, tt.wantEssence, essence)
			assert.Equal(t, tt.wantCharset, charsetLabel)
		})
	}
}
