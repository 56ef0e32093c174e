// Package echo runs a local HTTP server that reflects every request back
// as a JSON document. It gives request files a target that shows exactly
// what arrived on the wire: method, path, headers after auth negotiation,
// cookies, and the decoded body.
package echo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Server reflects requests. The zero value is not usable; use New.
type Server struct {
	delay time.Duration
	log   zerolog.Logger
}

type Option func(*Server)

// WithDelay makes every response wait before being written, for trying
// out timeouts and timing output.
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reflection is the document written for every request.
type Reflection struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      map[string]string `json:"query,omitempty"`
	Protocol   string            `json:"protocol"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body,omitempty"`
	RemoteAddr string            `json:"remoteAddr"`
	Time       string            `json:"time"`
}

// Handler returns the reflecting handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.reflect)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) reflect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	doc := Reflection{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      flattenQuery(r),
		Protocol:   r.Proto,
		Headers:    flattenHeaders(r.Header),
		RemoteAddr: r.RemoteAddr,
		Time:       start.Format(time.RFC3339),
	}

	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		doc.Body = bodyValue(body, r.Header.Get("Content-Type"))
	}

	status := responseStatus(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(doc)

	s.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("reflected")
}

// responseStatus honors a status query parameter so a request file can
// provoke any status code, e.g. GET /orders?status=503.
func responseStatus(r *http.Request) int {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return http.StatusOK
	}
	status, err := strconv.Atoi(raw)
	if err != nil || status < 100 || status > 599 {
		return http.StatusOK
	}
	return status
}

func flattenQuery(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	query := make(map[string]string, len(values))
	for name, vals := range values {
		query[name] = strings.Join(vals, ", ")
	}
	return query
}

func flattenHeaders(header http.Header) map[string]string {
	headers := make(map[string]string, len(header))
	for name, vals := range header {
		headers[name] = strings.Join(vals, ", ")
	}
	return headers
}

// bodyValue embeds JSON bodies as structured values so the reflection
// stays readable; everything else is kept as a string.
func bodyValue(body []byte, contentType string) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}
