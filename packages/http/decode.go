package http

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// lookupCharset resolves a charset label to an encoding. Unknown, empty or
// unsupported labels resolve to UTF-8.
func lookupCharset(label string) encoding.Encoding {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return unicode.UTF8
	}
	if enc, _ := charset.Lookup(label); enc != nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(label); err == nil && enc != nil {
		return enc
	}
	return unicode.UTF8
}

// StreamDecoder incrementally decodes bytes in one charset into UTF-8 text.
// Multi-byte sequences split across chunk boundaries are carried over to
// the next chunk rather than decoded as garbage.
type StreamDecoder struct {
	transformer transform.Transformer
	pending     []byte
	scratch     []byte
}

// NewStreamDecoder builds a decoder for the given charset label. The label
// is resolved per lookupCharset, so a bad label degrades to UTF-8.
func NewStreamDecoder(label string) *StreamDecoder {
	return &StreamDecoder{
		transformer: lookupCharset(label).NewDecoder(),
	}
}

// Decode converts one chunk, buffering any trailing partial sequence.
func (d *StreamDecoder) Decode(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	return d.run(src, false)
}

// Flush drains any held partial sequence at end of stream, decoding it as
// a final (possibly replacement-charred) fragment.
func (d *StreamDecoder) Flush() string {
	src := d.pending
	d.pending = nil
	if len(src) == 0 {
		return ""
	}
	return d.run(src, true)
}

func (d *StreamDecoder) run(src []byte, atEOF bool) string {
	if cap(d.scratch) < len(src)*4+16 {
		d.scratch = make([]byte, len(src)*4+16)
	}
	dst := d.scratch[:cap(d.scratch)]

	var out []byte
	for {
		nDst, nSrc, err := d.transformer.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch err {
		case nil:
			if len(src) == 0 {
				return string(out)
			}
		case transform.ErrShortDst:
			// Loop again with the remaining source.
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return string(out)
		default:
			// Undecodable input: pass the remainder through raw rather
			// than dropping response bytes.
			out = append(out, src...)
			return string(out)
		}
	}
}

// UnescapeUnicode replaces literal \uXXXX sequences with the characters
// they name, combining surrogate pairs. A decoded double quote is written
// back as \" so quoting inside structured text is not corrupted. Lone
// surrogates and malformed sequences stay as written.
func UnescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, n, ok := decodeUnicodeEscape(s[i:])
		if !ok {
			b.WriteByte(s[i])
			i++
			continue
		}
		if utf16.IsSurrogate(r) {
			if r2, n2, ok2 := decodeUnicodeEscape(s[i+n:]); ok2 {
				if combined := utf16.DecodeRune(r, r2); combined != 0xFFFD {
					b.WriteRune(combined)
					i += n + n2
					continue
				}
			}
			b.WriteString(s[i : i+n])
			i += n
			continue
		}
		if r == '"' {
			b.WriteString(`\"`)
		} else {
			b.WriteRune(r)
		}
		i += n
	}
	return b.String()
}

// decodeUnicodeEscape reads one \uXXXX sequence at the start of s.
func decodeUnicodeEscape(s string) (rune, int, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, 0, false
	}
	code, err := strconv.ParseUint(s[2:6], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return rune(code), 6, true
}
