// Package reqfile reads .http/.rest request files: file-level @variables,
// requests separated by ###, each with an optional # @name annotation, a
// request line, headers, and a body after the first blank line. A body of
// the form "< path" pulls the payload from a file next to the request file.
//
// Parsing keeps placeholders literal; Materialize resolves them through an
// env.Resolver and produces the pipeline request.
package reqfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/restwire/restwire/packages/core/env"
	rwhttp "github.com/restwire/restwire/packages/http"
)

// File is one parsed request file.
type File struct {
	Path      string
	Variables []Variable
	Requests  []*Request
}

// Variable is a file-level "@name = value" definition. Values may
// reference earlier variables and builtins; resolution happens in Seed.
type Variable struct {
	Name  string
	Value string
	Line  int
}

// Request is one authored request, placeholders unresolved.
type Request struct {
	Name    string
	Method  string
	URL     string
	Headers []Header
	Body    string

	// BodyFile is set instead of Body when the body was "< path".
	BodyFile string

	Line int
}

// Header preserves authored name casing and file order.
type Header struct {
	Name  string
	Value string
}

// ParseError locates a malformed line.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// Lookup finds a request by its @name, or nil.
func (f *File) Lookup(name string) *Request {
	for _, req := range f.Requests {
		if req.Name == name {
			return req
		}
	}
	return nil
}

// Names lists the named requests in file order.
func (f *File) Names() []string {
	var names []string
	for _, req := range f.Requests {
		if req.Name != "" {
			names = append(names, req.Name)
		}
	}
	return names
}

// Seed loads the file's variables into resolver, in file order. A value may
// reference variables defined above it; those are resolved at seed time.
func (f *File) Seed(resolver *env.Resolver) {
	for _, v := range f.Variables {
		resolver.SetVariable(v.Name, resolver.Resolve(v.Value))
	}
}

// Materialize resolves one request's placeholders and builds the pipeline
// request. A body file is read relative to the request file's directory and
// its contents are used verbatim, without placeholder resolution.
func (f *File) Materialize(req *Request, resolver *env.Resolver) (*rwhttp.Request, error) {
	dir := filepath.Dir(f.Path)

	out := rwhttp.NewRequest(req.Method, resolver.Resolve(req.URL))
	out.SetName(req.Name)
	if f.Path != "" {
		out.SetDir(dir)
	}

	for _, h := range req.Headers {
		value := resolver.Resolve(h.Value)
		if existing, ok := out.Headers.Lookup(h.Name); ok {
			value = existing + ", " + value
		}
		out.Headers.Set(h.Name, value)
	}

	switch {
	case req.BodyFile != "":
		path := req.BodyFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading body file for request at line %d: %w", req.Line, err)
		}
		out.SetBody(string(payload))
	case req.Body != "":
		out.SetBody(resolver.Resolve(req.Body))
	}

	return out, nil
}

// trimBlankEdges removes leading and trailing blank lines from body lines.
func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
