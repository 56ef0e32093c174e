// Package capture runs a recording reverse proxy. Traffic sent through it
// reaches the target unchanged while every exchange is kept and can be
// exported as request file text, so a browser session or an existing client
// becomes a replayable .http file.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Exchange is one recorded request/response pair.
type Exchange struct {
	Time     time.Time         `json:"time"`
	Method   string            `json:"method"`
	Path     string            `json:"path"` // path with query, as received
	Headers  map[string]string `json:"headers,omitempty"`
	Body     string            `json:"body,omitempty"`
	Response *ExchangeResponse `json:"response,omitempty"`
}

// ExchangeResponse is the response half of an Exchange.
type ExchangeResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Recorder proxies requests to a target and keeps every exchange.
type Recorder struct {
	target  *url.URL
	handler http.Handler
	log     zerolog.Logger
	exclude []string
	redact  []string
	dedupe  bool

	mu        sync.Mutex
	exchanges []Exchange
	seen      map[string]bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Recorder) {
		r.log = log
	}
}

// WithExclude skips recording for requests whose path contains one of the
// given fragments. The requests are still proxied.
func WithExclude(paths []string) Option {
	return func(r *Recorder) {
		r.exclude = append(r.exclude, paths...)
	}
}

// WithRedactHeaders extends the set of headers replaced by placeholders in
// recordings. Authorization, Cookie and API key headers are always
// redacted.
func WithRedactHeaders(headers []string) Option {
	return func(r *Recorder) {
		r.redact = append(r.redact, headers...)
	}
}

// WithDedupe records only the first exchange for each method and path.
func WithDedupe(enabled bool) Option {
	return func(r *Recorder) {
		r.dedupe = enabled
	}
}

// New creates a recorder proxying to target.
func New(target string, opts ...Option) (*Recorder, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("target URL needs a scheme and host: %q", target)
	}

	r := &Recorder{
		target: parsed,
		log:    zerolog.Nop(),
		redact: []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key", "Api-Key"},
		seen:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(parsed)
			pr.Out.Host = parsed.Host
		},
		ModifyResponse: r.recordResponse,
	}
	r.handler = r.record(proxy)

	return r, nil
}

// Handler returns the recording proxy as an http.Handler.
func (r *Recorder) Handler() http.Handler {
	return r.handler
}

// Start serves the proxy on addr until ctx is canceled.
func (r *Recorder) Start(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: r.handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	r.log.Info().Str("addr", addr).Str("target", r.target.String()).Msg("recording proxy listening")

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type exchangeKey struct{}

// record captures the request half of an exchange and parks it on the
// context; recordResponse completes it once the target has answered.
func (r *Recorder) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.excluded(req.URL.Path) {
			r.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("excluded")
			next.ServeHTTP(w, req)
			return
		}

		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		exchange := &Exchange{
			Time:    time.Now(),
			Method:  req.Method,
			Path:    req.URL.RequestURI(),
			Headers: r.redactedHeaders(req.Header),
			Body:    string(body),
		}

		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), exchangeKey{}, exchange)))
	})
}

func (r *Recorder) recordResponse(resp *http.Response) error {
	exchange, ok := resp.Request.Context().Value(exchangeKey{}).(*Exchange)
	if !ok {
		return nil
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	exchange.Response = &ExchangeResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    r.redactedHeaders(resp.Header),
		Body:       string(body),
		Duration:   time.Since(exchange.Time),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dedupe {
		key := exchange.Method + " " + strippedPath(exchange.Path)
		if r.seen[key] {
			r.log.Debug().Str("key", key).Msg("duplicate skipped")
			return nil
		}
		r.seen[key] = true
	}

	r.exchanges = append(r.exchanges, *exchange)
	r.log.Debug().
		Str("method", exchange.Method).
		Str("path", exchange.Path).
		Int("status", resp.StatusCode).
		Dur("duration", exchange.Response.Duration).
		Msg("recorded")

	return nil
}

func (r *Recorder) excluded(path string) bool {
	for _, fragment := range r.exclude {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

// redactedHeaders flattens headers to single values, replacing sensitive
// ones with a {{NAME}} placeholder so exported files template them instead
// of leaking them.
func (r *Recorder) redactedHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if r.redacted(key) {
			result[key] = "{{" + strings.ToUpper(strings.ReplaceAll(key, "-", "_")) + "}}"
		} else {
			result[key] = values[0]
		}
	}
	return result
}

func (r *Recorder) redacted(name string) bool {
	for _, candidate := range r.redact {
		if strings.EqualFold(name, candidate) {
			return true
		}
	}
	return false
}

// Exchanges returns a copy of everything recorded so far.
func (r *Recorder) Exchanges() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Exchange, len(r.exchanges))
	copy(result, r.exchanges)
	return result
}

// Clear drops all recordings and the dedupe memory.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = nil
	r.seen = make(map[string]bool)
}

// Target returns the URL requests are proxied to.
func (r *Recorder) Target() string {
	return r.target.String()
}

// ExportJSON renders the recordings as indented JSON.
func (r *Recorder) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r.Exchanges(), "", "  ")
}

// Export renders the recordings as request file text against a @baseUrl
// variable holding the target.
func (r *Recorder) Export() string {
	exchanges := r.Exchanges()

	var sb strings.Builder
	sb.WriteString("# Recorded by restwire\n\n@baseUrl = ")
	sb.WriteString(r.target.String())
	sb.WriteString("\n\n")

	names := make(map[string]int)
	for _, exchange := range exchanges {
		writeExchange(&sb, exchange, names)
	}
	return sb.String()
}

// Headers carried by the transport rather than the request author; they are
// captured but left out of exported files.
var exportSkipHeaders = map[string]bool{
	"accept-encoding":   true,
	"connection":        true,
	"content-length":    true,
	"host":              true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
	"upgrade":           true,
	"user-agent":        true,
}

func writeExchange(sb *strings.Builder, exchange Exchange, names map[string]int) {
	path := strippedPath(exchange.Path)

	sb.WriteString("### ")
	sb.WriteString(exchange.Method)
	sb.WriteString(" ")
	sb.WriteString(path)
	sb.WriteString("\n# @name ")
	sb.WriteString(uniqueName(exchangeName(exchange.Method, path), names))
	sb.WriteString("\n")

	if resp := exchange.Response; resp != nil {
		sb.WriteString("# ")
		sb.WriteString(resp.Status)
		sb.WriteString(" (")
		sb.WriteString(resp.Duration.Round(time.Millisecond).String())
		sb.WriteString(")\n")
	}

	sb.WriteString(exchange.Method)
	sb.WriteString(" {{baseUrl}}")
	sb.WriteString(exchange.Path)
	sb.WriteString("\n")

	for _, name := range sortedHeaderNames(exchange.Headers) {
		if exportSkipHeaders[strings.ToLower(name)] {
			continue
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(exchange.Headers[name])
		sb.WriteString("\n")
	}

	if exchange.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(exchange.Body)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
}

func sortedHeaderNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// strippedPath drops the query string.
func strippedPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// exchangeName builds a lowerCamel identifier from method and path, e.g.
// GET /api/users becomes getApiUsers.
func exchangeName(method, path string) string {
	name := strings.ToLower(method)
	for _, segment := range strings.Split(path, "/") {
		var clean strings.Builder
		for _, r := range segment {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				clean.WriteRune(r)
			}
		}
		if clean.Len() == 0 {
			continue
		}
		s := clean.String()
		name += strings.ToUpper(s[:1]) + s[1:]
	}
	if name == strings.ToLower(method) {
		name += "Root"
	}
	return name
}

// uniqueName suffixes repeated names with an ordinal so every request in
// the export stays addressable by --name.
func uniqueName(name string, names map[string]int) string {
	names[name]++
	if n := names[name]; n > 1 {
		return fmt.Sprintf("%s%d", name, n)
	}
	return name
}
