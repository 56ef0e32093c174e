package output

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	rwhttp "github.com/restwire/restwire/packages/http"
	"github.com/restwire/restwire/packages/sse"
	"github.com/restwire/restwire/packages/stats"
)

// JSONDocument is the per-dispatch output structure.
type JSONDocument struct {
	ID       string            `json:"id"`
	Request  JSONRequest       `json:"request"`
	Response JSONResponse      `json:"response"`
	Timing   JSONTiming        `json:"timing"`
	Body     any               `json:"body,omitempty"`
	Extracts map[string]string `json:"extracts,omitempty"`
	Time     string            `json:"time"`
}

// JSONRequest echoes what went on the wire.
type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// JSONResponse carries response details.
type JSONResponse struct {
	Protocol    string            `json:"protocol"`
	StatusCode  int               `json:"statusCode"`
	Status      string            `json:"status"`
	Headers     map[string]string `json:"headers,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	BodySize    int64             `json:"bodySize"`
	HeaderSize  int64             `json:"headerSize"`
	EventStream bool              `json:"eventStream,omitempty"`
}

// JSONTiming reports phase durations in milliseconds.
type JSONTiming struct {
	DNS       float64 `json:"dns"`
	Connect   float64 `json:"connect"`
	TLS       float64 `json:"tls"`
	FirstByte float64 `json:"firstByte"`
	Total     float64 `json:"total"`
}

// JSONSummary is the aggregate document for repeated runs.
type JSONSummary struct {
	Requests    int64             `json:"requests"`
	Success     int64             `json:"success"`
	Failures    int64             `json:"failures"`
	Statuses    map[string]int64  `json:"statuses,omitempty"`
	Bytes       int64             `json:"bytes"`
	Duration    float64           `json:"duration"`
	RPS         float64           `json:"rps"`
	SuccessRate float64           `json:"successRate"`
	Latency     JSONLatency       `json:"latency"`
	Time        string            `json:"time"`
}

// JSONLatency reports latency figures in milliseconds.
type JSONLatency struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

// JSONFormatter emits one indented JSON document per call.
type JSONFormatter struct {
	writer   io.Writer
	extracts map[string]string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) encode(v any) {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}

// FormatResponse writes the dispatch document. JSON bodies are embedded as
// structured values; everything else stays a string.
func (f *JSONFormatter) FormatResponse(resp *rwhttp.Response) {
	echo := resp.Request()
	timing := resp.Timing()

	doc := JSONDocument{
		ID: echo.ID,
		Request: JSONRequest{
			Method:  echo.Method,
			URL:     echo.URL,
			Headers: echo.Headers,
			Body:    string(echo.Body),
		},
		Response: JSONResponse{
			Protocol:    resp.Proto(),
			StatusCode:  resp.StatusCode(),
			Status:      resp.Status(),
			Headers:     resp.Headers(),
			ContentType: resp.ContentType(),
			BodySize:    resp.BodySize(),
			HeaderSize:  resp.HeaderSize(),
			EventStream: resp.EventStream(),
		},
		Timing: JSONTiming{
			DNS:       ms(timing.DNS),
			Connect:   ms(timing.Connect),
			TLS:       ms(timing.TLS),
			FirstByte: ms(timing.FirstByte),
			Total:     ms(timing.Total),
		},
		Extracts: f.extracts,
		Time:     time.Now().Format(time.RFC3339),
	}
	f.extracts = nil

	if !resp.EventStream() {
		doc.Body = bodyValue(resp)
	}
	f.encode(doc)
}

func bodyValue(resp *rwhttp.Response) any {
	body := resp.Body()
	if body == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(resp.ContentType()), "json") {
		var parsed any
		if err := json.Unmarshal([]byte(body), &parsed); err == nil {
			return parsed
		}
	}
	return body
}

// FormatEvent writes one server-sent event document.
func (f *JSONFormatter) FormatEvent(e sse.Event) {
	f.encode(map[string]any{
		"event": map[string]any{
			"id":    e.ID,
			"type":  e.Type,
			"data":  e.Data,
			"retry": e.Retry,
		},
	})
}

// FormatSummary writes the aggregate document for a repeated run.
func (f *JSONFormatter) FormatSummary(s stats.Summary) {
	statuses := make(map[string]int64, len(s.Statuses))
	for code, n := range s.Statuses {
		statuses[strconv.Itoa(code)] = n
	}
	f.encode(JSONSummary{
		Requests:    s.Requests,
		Success:     s.Success,
		Failures:    s.Failures,
		Statuses:    statuses,
		Bytes:       s.Bytes,
		Duration:    ms(s.Duration),
		RPS:         s.RPS,
		SuccessRate: s.SuccessRate,
		Latency: JSONLatency{
			Min:  ms(s.Min),
			Mean: ms(s.Mean),
			P50:  ms(s.P50),
			P90:  ms(s.P90),
			P95:  ms(s.P95),
			P99:  ms(s.P99),
			Max:  ms(s.Max),
		},
		Time: time.Now().Format(time.RFC3339),
	})
}

// FormatExtract stages a named value for the next response document.
func (f *JSONFormatter) FormatExtract(name, value string) {
	if f.extracts == nil {
		f.extracts = make(map[string]string)
	}
	f.extracts[name] = value
}

func (f *JSONFormatter) FormatError(err error) {
	f.encode(map[string]string{"error": err.Error()})
}

func (f *JSONFormatter) FormatHeader(version string) {
	// JSON output carries no banner.
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
