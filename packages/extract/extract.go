// Package extract pulls values out of responses by expression, for the
// CLI's --extract flag and any caller that wants one field of a result.
//
// Expressions:
//   - "status"          response status code
//   - "duration"        total time in milliseconds
//   - "body"            the decoded body text
//   - "header.<Name>"   one response header, case-insensitive
//   - "body.<path>"     a gjson path into a JSON body
//   - anything else     shorthand for a gjson path into a JSON body
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/restwire/restwire/packages/http"
	"github.com/tidwall/gjson"
)

// Extractor evaluates expressions against one response. The body is parsed
// as JSON once, when it is JSON at all.
type Extractor struct {
	response *http.Response
	body     gjson.Result
	isJSON   bool
}

func New(resp *http.Response) *Extractor {
	e := &Extractor{response: resp}
	body := resp.Body()
	if strings.Contains(strings.ToLower(resp.ContentType()), "json") && gjson.Valid(body) {
		e.body = gjson.Parse(body)
		e.isJSON = true
	}
	return e
}

// Extract evaluates one expression. The second return reports whether the
// expression matched anything.
func (e *Extractor) Extract(expr string) (any, bool) {
	switch {
	case expr == "status":
		return e.response.StatusCode(), true
	case expr == "duration":
		return e.response.DurationMs(), true
	case expr == "body":
		return e.response.Body(), true
	case strings.HasPrefix(expr, "header."):
		name := strings.TrimPrefix(expr, "header.")
		if value := e.response.Header(name); value != "" {
			return value, true
		}
		return nil, false
	case strings.HasPrefix(expr, "body."):
		return e.fromBody(strings.TrimPrefix(expr, "body."))
	default:
		return e.fromBody(expr)
	}
}

func (e *Extractor) fromBody(path string) (any, bool) {
	if !e.isJSON {
		return nil, false
	}
	result := e.body.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// FromResponse evaluates a single expression without keeping the extractor.
func FromResponse(resp *http.Response, expr string) (any, bool) {
	return New(resp).Extract(expr)
}

// Format renders an extracted value for plain-text output: strings as-is,
// everything else as compact JSON.
func Format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
