// Package builtin implements the dynamic values available inside request
// files with the {{$name(args)}} syntax: identifiers, timestamps, random
// data and light encodings.
package builtin

import (
	"encoding/base64"
	"math/rand"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func produces one dynamic value from its (already unquoted) arguments.
type Func func(args []string) any

// Registry maps function names to implementations. The default set covers
// request-authoring needs; callers may register more.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: map[string]Func{
		"uuid":         func([]string) any { return uuid.NewString() },
		"now":          func([]string) any { return time.Now().UTC().Format(time.RFC3339) },
		"timestamp":    func([]string) any { return time.Now().Unix() },
		"timestampMs":  func([]string) any { return time.Now().UnixMilli() },
		"date":         funcDate,
		"random":       funcRandom,
		"randomString": funcRandomString,
		"base64":       funcBase64,
		"urlEncode":    funcURLEncode,
		"env":          funcEnv,
	}}
	return r
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Has reports whether expr names a registered function, without calling it.
func (r *Registry) Has(expr string) bool {
	name := expr
	if matches := callPattern.FindStringSubmatch(expr); matches != nil {
		name = matches[1]
	}
	_, ok := r.funcs[name]
	return ok
}

var callPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates "name(args)" expressions. The second return reports
// whether expr named a registered function; bare names evaluate as
// zero-argument calls.
func (r *Registry) Call(expr string) (any, bool) {
	name, argsStr := expr, ""
	if matches := callPattern.FindStringSubmatch(expr); matches != nil {
		name, argsStr = matches[1], matches[2]
	}

	fn, ok := r.funcs[name]
	if !ok {
		return nil, false
	}

	var args []string
	if argsStr != "" {
		args = parseArgs(argsStr)
	}
	return fn(args), true
}

// parseArgs splits a comma-separated argument list, honoring single and
// double quotes so quoted arguments may contain commas.
func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

// funcDate formats the current time with a Go layout, RFC3339 when none is
// given.
func funcDate(args []string) any {
	layout := time.RFC3339
	if len(args) > 0 && args[0] != "" {
		layout = args[0]
	}
	return time.Now().UTC().Format(layout)
}

// funcRandom returns an integer in [min, max], defaulting to [0, 100].
func funcRandom(args []string) any {
	min, max := 0, 100
	if len(args) >= 2 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			min = v
		}
		if v, err := strconv.Atoi(args[1]); err == nil {
			max = v
		}
	}
	if max < min {
		min, max = max, min
	}
	return min + rand.Intn(max-min+1)
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func funcRandomString(args []string) any {
	length := 16
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			length = v
		}
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(b)
}

func funcBase64(args []string) any {
	if len(args) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0]))
}

func funcURLEncode(args []string) any {
	if len(args) == 0 {
		return ""
	}
	return url.QueryEscape(args[0])
}

func funcEnv(args []string) any {
	if len(args) == 0 {
		return ""
	}
	return os.Getenv(args[0])
}
