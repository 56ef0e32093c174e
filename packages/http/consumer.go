package http

import (
	"io"
	"mime"
	nethttp "net/http"
	"strings"
	"time"
)

// EventStreamMediaType marks responses that resolve early: the caller gets
// the Response while the body is still streaming.
const EventStreamMediaType = "text/event-stream"

// readChunkSize is the consumer's read granularity.
const readChunkSize = 32 * 1024

// approximateHeaderSize estimates the wire size of a header block as the
// sum of name and value byte lengths plus half the header count. The
// figure approximates the original framing rather than reproducing it.
func approximateHeaderSize(h nethttp.Header) int64 {
	var size, count int64
	for name, values := range h {
		for _, value := range values {
			size += int64(len(name) + len(value))
			count++
		}
	}
	return size + count/2
}

// flattenHeader collapses a multi-valued header block into a name→value
// map, joining repeated values the way they would read on one line.
func flattenHeader(h nethttp.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for name, values := range h {
		headers[name] = strings.Join(values, ", ")
	}
	return headers
}

// contentTypeParts splits a content-type value into its essence (the media
// type with parameters stripped, lower-cased) and the declared charset.
func contentTypeParts(value string) (essence, charsetLabel string) {
	if value == "" {
		return "", ""
	}
	mediatype, params, err := mime.ParseMediaType(value)
	if err != nil {
		before, _, _ := strings.Cut(value, ";")
		return strings.ToLower(strings.TrimSpace(before)), ""
	}
	return mediatype, params["charset"]
}

// attachMetadata folds the response line and headers into result, selects
// the decode charset from the content-type, and reports whether the
// response is an event stream.
func attachMetadata(result *Response, resp *nethttp.Response) (decoder *StreamDecoder, eventStream bool) {
	headers := flattenHeader(resp.Header)
	closeBody := func() { _ = resp.Body.Close() }
	result.setMetadata(resp, headers, approximateHeaderSize(resp.Header), closeBody)

	essence, charsetLabel := contentTypeParts(resp.Header.Get("Content-Type"))
	if essence == EventStreamMediaType {
		result.markEventStream()
		eventStream = true
	}
	return NewStreamDecoder(charsetLabel), eventStream
}

// consumeBody folds body chunks into result strictly in arrival order:
// raw bytes accumulate, each chunk is charset-decoded (optionally unicode-
// unescaped) and appended to the text body, and the byte counter advances
// to the bytes processed so far. It returns the terminal stream error,
// which is also recorded on result.
func consumeBody(result *Response, resp *nethttp.Response, decoder *StreamDecoder, unescape bool, start time.Time) error {
	defer resp.Body.Close()

	buf := make([]byte, readChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			text := decoder.Decode(buf[:n])
			if unescape {
				text = UnescapeUnicode(text)
			}
			result.appendChunk(buf[:n], text, time.Since(start))
		}
		if err == io.EOF {
			tail := decoder.Flush()
			if unescape {
				tail = UnescapeUnicode(tail)
			}
			result.appendText(tail)
			result.finish(nil, time.Since(start))
			return nil
		}
		if err != nil {
			if result.closedByCaller() {
				// A caller-initiated Close on a live stream ends it cleanly.
				result.finish(nil, time.Since(start))
				return nil
			}
			streamErr := &NetError{URL: result.request.URL, Err: err}
			result.finish(streamErr, time.Since(start))
			return streamErr
		}
	}
}
