package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	rwhttp "github.com/restwire/restwire/packages/http"
	"github.com/restwire/restwire/packages/sse"
	"github.com/restwire/restwire/packages/stats"
)

// formatDuration keeps sub-millisecond latencies readable without drowning
// slow ones in digits.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.Round(time.Microsecond).String()
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f kB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	noBody  bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithNoBody suppresses the response body, leaving status, headers and
// timing. Useful when the body is piped elsewhere or merely large.
func WithNoBody(nb bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noBody = nb
	}
}

func statusSprint(code int) func(a ...interface{}) string {
	switch {
	case code >= 200 && code < 300:
		return color.New(color.FgGreen).SprintFunc()
	case code >= 300 && code < 400:
		return color.New(color.FgCyan).SprintFunc()
	case code >= 400 && code < 500:
		return color.New(color.FgYellow).SprintFunc()
	case code >= 500:
		return color.New(color.FgRed).SprintFunc()
	default:
		return fmt.Sprint
	}
}

// FormatResponse prints one resolved response. Verbose mode adds the
// request echo, the response headers and the timing breakdown.
func (f *ConsoleFormatter) FormatResponse(resp *rwhttp.Response) {
	dim := color.New(color.Faint).SprintFunc()
	statusc := statusSprint(resp.StatusCode())

	if f.verbose {
		f.formatEcho(resp.Request())
	}

	fmt.Fprintf(f.writer, "%s %s %s\n",
		resp.Proto(),
		statusc(resp.Status()),
		dim(fmt.Sprintf("(%s, %s)", formatDuration(resp.Timing().Total), formatBytes(resp.BodySize()))))

	if f.verbose {
		cyan := color.New(color.FgCyan).SprintFunc()
		for _, name := range sortedKeys(resp.Headers()) {
			fmt.Fprintf(f.writer, "%s %s: %s\n", dim("<"), cyan(name), resp.Headers()[name])
		}
		f.formatTiming(resp.Timing())
	}

	if f.noBody || resp.EventStream() {
		return
	}
	if body := f.renderBody(resp); body != "" {
		fmt.Fprintf(f.writer, "\n%s\n", body)
	}
}

func (f *ConsoleFormatter) formatEcho(echo rwhttp.RequestEcho) {
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "%s %s %s\n", dim(">"), bold(echo.Method), echo.URL)
	for _, name := range sortedKeys(echo.Headers) {
		fmt.Fprintf(f.writer, "%s %s: %s\n", dim(">"), name, echo.Headers[name])
	}
	if len(echo.Body) > 0 {
		fmt.Fprintf(f.writer, "%s\n%s\n", dim(">"), string(echo.Body))
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) formatTiming(t rwhttp.Timing) {
	dim := color.New(color.Faint).SprintFunc()
	parts := []string{}
	if t.DNS > 0 {
		parts = append(parts, "dns "+formatDuration(t.DNS))
	}
	if t.Connect > 0 {
		parts = append(parts, "connect "+formatDuration(t.Connect))
	}
	if t.TLS > 0 {
		parts = append(parts, "tls "+formatDuration(t.TLS))
	}
	if t.FirstByte > 0 {
		parts = append(parts, "ttfb "+formatDuration(t.FirstByte))
	}
	parts = append(parts, "total "+formatDuration(t.Total))
	fmt.Fprintf(f.writer, "%s\n", dim("timing: "+strings.Join(parts, ", ")))
}

func (f *ConsoleFormatter) renderBody(resp *rwhttp.Response) string {
	body := resp.Body()
	if body == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(resp.ContentType()), "json") {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(body), "", "  "); err == nil {
			return buf.String()
		}
	}
	return body
}

// FormatEvent prints one server-sent event as it arrives.
func (f *ConsoleFormatter) FormatEvent(e sse.Event) {
	dim := color.New(color.Faint).SprintFunc()
	label := e.Type
	if label == "" {
		label = "message"
	}
	if e.ID != "" {
		label += " #" + e.ID
	}
	fmt.Fprintf(f.writer, "%s %s\n", dim(label+":"), e.Data)
}

// FormatSummary prints the aggregate figures of a repeated run.
func (f *ConsoleFormatter) FormatSummary(s stats.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Summary"))
	fmt.Fprintf(f.writer, "  Requests: %d", s.Requests)
	if s.Success > 0 {
		fmt.Fprintf(f.writer, " (%s", green(fmt.Sprintf("%d ok", s.Success)))
		if s.Failures > 0 {
			fmt.Fprintf(f.writer, ", %s", red(fmt.Sprintf("%d failed", s.Failures)))
		}
		fmt.Fprintf(f.writer, ")")
	} else if s.Failures > 0 {
		fmt.Fprintf(f.writer, " (%s)", red(fmt.Sprintf("%d failed", s.Failures)))
	}
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "  Duration: %s (%.1f req/s)\n", formatDuration(s.Duration), s.RPS)
	if s.Bytes > 0 {
		fmt.Fprintf(f.writer, "  Bytes:    %s\n", formatBytes(s.Bytes))
	}
	if s.Requests > 0 {
		fmt.Fprintf(f.writer, "  Latency:  min %s, mean %s, max %s\n",
			formatDuration(s.Min), formatDuration(s.Mean), formatDuration(s.Max))
		fmt.Fprintf(f.writer, "  Quantile: p50 %s, p90 %s, p95 %s, p99 %s\n",
			formatDuration(s.P50), formatDuration(s.P90), formatDuration(s.P95), formatDuration(s.P99))
	}
	if len(s.Statuses) > 0 {
		codes := make([]int, 0, len(s.Statuses))
		for code := range s.Statuses {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%s x%d", statusSprint(code)(code), s.Statuses[code]))
		}
		fmt.Fprintf(f.writer, "  Status:   %s\n", strings.Join(parts, ", "))
	}
}

// FormatExtract prints an extracted value with no decoration, so the
// output stays pipeable. The name is only for the machine formats.
func (f *ConsoleFormatter) FormatExtract(name, value string) {
	fmt.Fprintln(f.writer, value)
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("restwire"), version)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
