package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"strings"
	"sync"
	"time"
)

// Timing is the phase breakdown of one dispatch. Phases that did not occur
// (reused connections, plain HTTP) are zero.
type Timing struct {
	DNS       time.Duration
	Connect   time.Duration
	TLS       time.Duration
	FirstByte time.Duration
	Total     time.Duration
}

// RequestEcho is the effective outgoing request as sent, with header casing
// normalized to the first-seen spelling of each name.
type RequestEcho struct {
	// ID correlates one dispatch across logs, output and the response.
	ID      string
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the incrementally-growing result of one dispatch. For
// event-stream responses it is handed to the caller while chunks are still
// arriving, so every accessor takes a snapshot under the response lock.
type Response struct {
	mu         sync.Mutex
	statusCode int
	status     string
	proto      string
	headers    map[string]string
	body       []byte
	raw        []byte
	bodySize   int64
	headerSize int64
	timing     Timing
	request    RequestEcho
	transport  *nethttp.Response
	err        error
	finished   bool

	eventStream bool
	userClosed  bool

	done      chan struct{}
	closeBody func()
	closeOnce sync.Once
}

func newResponse(echo RequestEcho) *Response {
	return &Response{
		request: echo,
		done:    make(chan struct{}),
	}
}

// StatusCode returns the HTTP status code, or 0 before metadata arrived.
func (r *Response) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCode
}

// Status returns the status message, e.g. "200 OK".
func (r *Response) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Proto returns the negotiated protocol version, e.g. "HTTP/1.1".
func (r *Response) Proto() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proto
}

// Headers returns a copy of the response headers, names normalized to
// their first-seen raw spelling.
func (r *Response) Headers() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	headers := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		headers[k] = v
	}
	return headers
}

// Header returns the value for key, matched case-insensitively.
func (r *Response) Header(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

// Body returns the decoded text accumulated so far.
func (r *Response) Body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.body)
}

// RawBody returns a snapshot of the raw bytes accumulated so far.
func (r *Response) RawBody() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw := make([]byte, len(r.raw))
	copy(raw, r.raw)
	return raw
}

// BodyJSON decodes the accumulated body as JSON.
func (r *Response) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal([]byte(r.Body()), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// BodySize returns the count of raw body bytes processed so far.
func (r *Response) BodySize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodySize
}

// HeaderSize returns the approximate wire size of the response headers.
func (r *Response) HeaderSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headerSize
}

// Timing returns the phase breakdown so far. Total keeps growing for live
// streams until the stream ends.
func (r *Response) Timing() Timing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timing
}

// Request returns the echo of the effective outgoing request.
func (r *Response) Request() RequestEcho {
	r.mu.Lock()
	defer r.mu.Unlock()
	echo := r.request
	headers := make(map[string]string, len(r.request.Headers))
	for k, v := range r.request.Headers {
		headers[k] = v
	}
	echo.Headers = headers
	return echo
}

// Transport returns the live transport response, or nil before metadata.
func (r *Response) Transport() *nethttp.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transport
}

func (r *Response) IsSuccess() bool {
	code := r.StatusCode()
	return code >= 200 && code < 300
}

func (r *Response) IsRedirect() bool {
	code := r.StatusCode()
	return code >= 300 && code < 400
}

func (r *Response) IsClientError() bool {
	code := r.StatusCode()
	return code >= 400 && code < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode() >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Timing().Total.Milliseconds()
}

// Done is closed once the stream has ended and no further mutation will
// occur.
func (r *Response) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the stream ends or ctx is cancelled. It returns the
// terminal stream error, if any.
func (r *Response) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the terminal stream error. It is meaningful once Done is
// closed; a cleanly-ended stream returns nil.
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// EventStream reports whether this response resolved early as a live
// stream.
func (r *Response) EventStream() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventStream
}

func (r *Response) markEventStream() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventStream = true
}

// Close aborts a live stream. Closing an already-ended response is a no-op.
func (r *Response) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.userClosed = true
		closeBody := r.closeBody
		r.mu.Unlock()
		if closeBody != nil {
			closeBody()
		}
	})
}

func (r *Response) closedByCaller() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userClosed
}

// setMetadata records the response line and normalized headers. Called once
// by the consumer before any chunk.
func (r *Response) setMetadata(resp *nethttp.Response, headers map[string]string, headerSize int64, closeBody func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCode = resp.StatusCode
	r.status = resp.Status
	r.proto = resp.Proto
	r.headers = headers
	r.headerSize = headerSize
	r.transport = resp
	r.closeBody = closeBody
}

// appendChunk folds one data chunk into the result: raw bytes, decoded
// text, and the running byte counter, all under one lock acquisition so
// readers always observe a consistent prefix of the stream.
func (r *Response) appendChunk(raw []byte, text string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = append(r.raw, raw...)
	r.body = append(r.body, text...)
	r.bodySize += int64(len(raw))
	r.timing.Total = elapsed
}

// appendText adds decoder flush output that has no raw-byte counterpart.
func (r *Response) appendText(text string) {
	if text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = append(r.body, text...)
}

func (r *Response) setTiming(timing Timing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timing = timing
}

// finish marks the stream ended. Subsequent finishes are ignored.
func (r *Response) finish(err error, elapsed time.Duration) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.err = err
	r.timing.Total = elapsed
	r.mu.Unlock()
	close(r.done)
}
