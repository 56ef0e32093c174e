package cmd

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/output"
)

var (
	diffOutputFlag    string
	diffThresholdFlag string
)

var diffCmd = &cobra.Command{
	Use:   "diff <baseline.json> <current.json>",
	Short: "Compare two recorded dispatch files",
	Long: `Compare two files of JSON dispatch documents, as written by
"send --output json --output-file". Requests are matched by method and
path, so the same request file sent against two hosts lines up.

For every request the status, body and total duration are compared;
--threshold turns a duration regression beyond the given percentage into
a non-zero exit.

Examples:
  restwire diff staging.json prod.json
  restwire diff before.json after.json --threshold 20%
  restwire diff before.json after.json -o html > report.html`,
	Args: cobra.ExactArgs(2),
	RunE: diffCommand,
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutputFlag, "output", "o", "console", "Output format: console, json, html")
	diffCmd.Flags().StringVar(&diffThresholdFlag, "threshold", "", "Fail when a request slows down by more than this percentage (e.g. 20%)")
}

// dispatchComparison is the per-request outcome of a diff.
type dispatchComparison struct {
	Key            string  `json:"key"`
	Change         string  `json:"change"` // improved, regressed, unchanged, new, removed
	Status1        int     `json:"status1,omitempty"`
	Status2        int     `json:"status2,omitempty"`
	Duration1      float64 `json:"duration1,omitempty"` // ms
	Duration2      float64 `json:"duration2,omitempty"` // ms
	DurationChange float64 `json:"durationChange,omitempty"`
	BodyChanged    bool    `json:"bodyChanged,omitempty"`
	InBaseline     bool    `json:"-"`
	InCurrent      bool    `json:"-"`
}

type diffSummary struct {
	Total            int     `json:"total"`
	Improved         int     `json:"improved"`
	Regressed        int     `json:"regressed"`
	Unchanged        int     `json:"unchanged"`
	New              int     `json:"new"`
	Removed          int     `json:"removed"`
	AvgDuration1     float64 `json:"avgDuration1"`
	AvgDuration2     float64 `json:"avgDuration2"`
	ThresholdPercent float64 `json:"thresholdPercent,omitempty"`
	ThresholdPassed  bool    `json:"thresholdPassed"`
}

type diffResult struct {
	Baseline    string               `json:"baseline"`
	Current     string               `json:"current"`
	Summary     diffSummary          `json:"summary"`
	Comparisons []dispatchComparison `json:"comparisons"`
}

func diffCommand(cmd *cobra.Command, args []string) error {
	baseline, err := loadDispatchFile(args[0])
	if err != nil {
		return err
	}
	current, err := loadDispatchFile(args[1])
	if err != nil {
		return err
	}

	var threshold float64
	if diffThresholdFlag != "" {
		threshold, err = parseThreshold(diffThresholdFlag)
		if err != nil {
			return err
		}
	}

	result := compareDispatches(args[0], args[1], baseline, current, threshold)

	switch strings.ToLower(diffOutputFlag) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return err
		}
	case "html":
		if err := renderDiffHTML(os.Stdout, result); err != nil {
			return err
		}
	default:
		printDiffConsole(result)
	}

	if threshold > 0 && !result.Summary.ThresholdPassed {
		return fmt.Errorf("duration regression above %.1f%%", threshold)
	}
	return nil
}

// loadDispatchFile reads a stream of JSON documents and keeps the dispatch
// ones, skipping interleaved summaries, events and errors. When a request
// was dispatched more than once the last document wins.
func loadDispatchFile(path string) (map[string]output.JSONDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs := make(map[string]output.JSONDocument)
	decoder := json.NewDecoder(f)
	for decoder.More() {
		var doc output.JSONDocument
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if doc.Request.Method == "" {
			continue
		}
		docs[doc.Request.Method+" "+requestPath(doc.Request.URL)] = doc
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: no dispatch documents", path)
	}
	return docs, nil
}

// requestPath reduces a URL to path and query so documents recorded
// against different hosts still match up.
func requestPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

func parseThreshold(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, usageErrorf("invalid threshold %q: %w", s, err)
	}
	return v, nil
}

func compareDispatches(file1, file2 string, baseline, current map[string]output.JSONDocument, threshold float64) *diffResult {
	result := &diffResult{
		Baseline: file1,
		Current:  file2,
		Summary: diffSummary{
			ThresholdPercent: threshold,
			ThresholdPassed:  true,
		},
	}

	keys := make(map[string]bool)
	for key := range baseline {
		keys[key] = true
	}
	for key := range current {
		keys[key] = true
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	var totalDur1, totalDur2 float64
	var count1, count2 int

	for _, key := range sorted {
		doc1, in1 := baseline[key]
		doc2, in2 := current[key]

		comp := dispatchComparison{Key: key, InBaseline: in1, InCurrent: in2}

		if in1 {
			comp.Status1 = doc1.Response.StatusCode
			comp.Duration1 = doc1.Timing.Total
			totalDur1 += comp.Duration1
			count1++
		}
		if in2 {
			comp.Status2 = doc2.Response.StatusCode
			comp.Duration2 = doc2.Timing.Total
			totalDur2 += comp.Duration2
			count2++
		}

		switch {
		case in1 && in2:
			if comp.Duration1 > 0 {
				comp.DurationChange = (comp.Duration2 - comp.Duration1) / comp.Duration1 * 100
			}
			comp.BodyChanged = bodyFingerprint(doc1.Body) != bodyFingerprint(doc2.Body)

			ok1 := reachable(comp.Status1)
			ok2 := reachable(comp.Status2)
			switch {
			case ok1 && !ok2:
				comp.Change = "regressed"
				result.Summary.Regressed++
			case !ok1 && ok2:
				comp.Change = "improved"
				result.Summary.Improved++
			case comp.DurationChange > 10:
				comp.Change = "regressed"
				result.Summary.Regressed++
			case comp.DurationChange < -10:
				comp.Change = "improved"
				result.Summary.Improved++
			default:
				comp.Change = "unchanged"
				result.Summary.Unchanged++
			}

			if threshold > 0 && comp.DurationChange > threshold {
				result.Summary.ThresholdPassed = false
			}
		case in1:
			comp.Change = "removed"
			result.Summary.Removed++
		default:
			comp.Change = "new"
			result.Summary.New++
		}

		result.Comparisons = append(result.Comparisons, comp)
		result.Summary.Total++
	}

	if count1 > 0 {
		result.Summary.AvgDuration1 = totalDur1 / float64(count1)
	}
	if count2 > 0 {
		result.Summary.AvgDuration2 = totalDur2 / float64(count2)
	}

	return result
}

// reachable treats redirects as fine; only client and server errors count
// as a broken request.
func reachable(status int) bool {
	return status >= 200 && status < 400
}

// bodyFingerprint canonicalizes a decoded body for comparison. Maps
// marshal with sorted keys, so key order differences do not register as
// changes.
func bodyFingerprint(body any) string {
	if body == nil {
		return ""
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf("%v", body)
	}
	return string(data)
}

func printDiffConsole(result *diffResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("\n%s\n", bold("Dispatch comparison"))
	fmt.Printf("  %s: %s\n", cyan("baseline"), result.Baseline)
	fmt.Printf("  %s: %s\n\n", cyan("current"), result.Current)

	s := result.Summary
	fmt.Printf("%s\n", bold("Summary"))
	fmt.Printf("  Requests:  %d\n", s.Total)
	if s.Improved > 0 {
		fmt.Printf("  Improved:  %s\n", green(strconv.Itoa(s.Improved)))
	}
	if s.Regressed > 0 {
		fmt.Printf("  Regressed: %s\n", red(strconv.Itoa(s.Regressed)))
	}
	if s.Unchanged > 0 {
		fmt.Printf("  Unchanged: %d\n", s.Unchanged)
	}
	if s.New > 0 {
		fmt.Printf("  New:       %s\n", cyan(strconv.Itoa(s.New)))
	}
	if s.Removed > 0 {
		fmt.Printf("  Removed:   %s\n", yellow(strconv.Itoa(s.Removed)))
	}
	fmt.Printf("  Avg total: %.1fms -> %.1fms\n\n", s.AvgDuration1, s.AvgDuration2)

	fmt.Printf("%s\n", bold("Requests"))
	for _, comp := range result.Comparisons {
		marker, paint := "=", fmt.Sprint
		switch comp.Change {
		case "improved":
			marker, paint = "+", func(a ...any) string { return green(a...) }
		case "regressed":
			marker, paint = "!", func(a ...any) string { return red(a...) }
		case "new":
			marker, paint = "+", func(a ...any) string { return cyan(a...) }
		case "removed":
			marker, paint = "-", func(a ...any) string { return yellow(a...) }
		}

		switch {
		case comp.InBaseline && comp.InCurrent:
			detail := fmt.Sprintf("%.1fms -> %.1fms", comp.Duration1, comp.Duration2)
			if comp.DurationChange != 0 {
				detail += fmt.Sprintf(" (%+.1f%%)", comp.DurationChange)
			}
			if comp.Status1 != comp.Status2 {
				detail += fmt.Sprintf(", status %d -> %d", comp.Status1, comp.Status2)
			}
			if comp.BodyChanged {
				detail += ", body changed"
			}
			fmt.Printf("  %s %s  %s\n", paint(marker), comp.Key, detail)
		case comp.InBaseline:
			fmt.Printf("  %s %s  (removed)\n", paint(marker), comp.Key)
		default:
			fmt.Printf("  %s %s  (new, %.1fms, status %d)\n", paint(marker), comp.Key, comp.Duration2, comp.Status2)
		}
	}
	fmt.Println()

	if s.ThresholdPercent > 0 {
		if s.ThresholdPassed {
			fmt.Printf("%s no request slowed down by more than %.1f%%\n", green("ok"), s.ThresholdPercent)
		} else {
			fmt.Printf("%s duration regression above %.1f%%\n", red("fail"), s.ThresholdPercent)
		}
	}
}

const diffHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>restwire diff</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; background: #1a1a2e; color: #eee; margin: 0; padding: 2rem; }
.container { max-width: 960px; margin: 0 auto; }
.files { color: #aaa; margin-bottom: 1.5rem; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(110px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
.card { background: #16213e; padding: 1rem; border-radius: 8px; text-align: center; }
.card .value { font-size: 1.4rem; font-weight: bold; }
table { width: 100%; border-collapse: collapse; background: #16213e; border-radius: 8px; overflow: hidden; }
th, td { padding: 0.6rem 1rem; text-align: left; }
th { background: #0f3460; }
tr:not(:last-child) { border-bottom: 1px solid #2d3748; }
.improved { color: #00d26a; }
.regressed { color: #ff4757; }
.new { color: #54a0ff; }
.removed { color: #ffa502; }
</style>
</head>
<body>
<div class="container">
<h1>restwire diff</h1>
<div class="files">
<div>baseline: {{.Baseline}}</div>
<div>current: {{.Current}}</div>
</div>
<div class="cards">
<div class="card"><div class="value">{{.Summary.Total}}</div><div>Requests</div></div>
<div class="card improved"><div class="value">{{.Summary.Improved}}</div><div>Improved</div></div>
<div class="card regressed"><div class="value">{{.Summary.Regressed}}</div><div>Regressed</div></div>
<div class="card"><div class="value">{{.Summary.Unchanged}}</div><div>Unchanged</div></div>
<div class="card new"><div class="value">{{.Summary.New}}</div><div>New</div></div>
<div class="card removed"><div class="value">{{.Summary.Removed}}</div><div>Removed</div></div>
</div>
<table>
<thead><tr><th>Request</th><th>Change</th><th>Status</th><th>Duration (ms)</th><th>&Delta;</th></tr></thead>
<tbody>
{{range .Comparisons}}
<tr>
<td>{{.Key}}</td>
<td class="{{.Change}}">{{.Change}}{{if .BodyChanged}} (body){{end}}</td>
<td>{{if and .InBaseline .InCurrent}}{{.Status1}} &rarr; {{.Status2}}{{else if .InBaseline}}{{.Status1}}{{else}}{{.Status2}}{{end}}</td>
<td>{{if and .InBaseline .InCurrent}}{{printf "%.1f" .Duration1}} &rarr; {{printf "%.1f" .Duration2}}{{else if .InBaseline}}{{printf "%.1f" .Duration1}}{{else}}{{printf "%.1f" .Duration2}}{{end}}</td>
<td class="{{.Change}}">{{if and .InBaseline .InCurrent}}{{printf "%+.1f" .DurationChange}}%{{end}}</td>
</tr>
{{end}}
</tbody>
</table>
</div>
</body>
</html>`

func renderDiffHTML(w *os.File, result *diffResult) error {
	tmpl, err := template.New("diff").Parse(diffHTMLTemplate)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, result)
}
