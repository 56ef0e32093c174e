package reqfile

import (
	"os"
	"strings"
)

// ParseFile reads and parses one request file.
func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(content), path)
}

// Parse parses request-file text. filename is used in error positions and
// as the anchor for body files; it may be empty for ad-hoc input.
func Parse(input, filename string) (*File, error) {
	p := &parser{file: &File{Path: filename}}

	for i, raw := range strings.Split(input, "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if err := p.consume(line, i+1); err != nil {
			return nil, err
		}
	}
	p.finishRequest()

	return p.file, nil
}

type parser struct {
	file        *File
	current     *Request
	inBody      bool
	bodyLines   []string
	pendingName string
}

func (p *parser) consume(line string, n int) error {
	// Body lines are verbatim; only a separator ends them.
	if p.inBody {
		if isSeparator(line) {
			p.finishRequest()
			p.pendingName = separatorTitle(line)
			return nil
		}
		p.bodyLines = append(p.bodyLines, line)
		return nil
	}

	trimmed := strings.TrimSpace(line)

	switch {
	case isSeparator(line):
		p.finishRequest()
		p.pendingName = separatorTitle(line)

	case trimmed == "":
		if p.current != nil {
			p.inBody = true
		}

	case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//"):
		rest := strings.TrimSpace(strings.TrimLeft(trimmed, "#/ "))
		if after, ok := strings.CutPrefix(rest, "@name"); ok && (after == "" || after[0] == ' ' || after[0] == '\t') {
			name := strings.TrimSpace(after)
			if p.current != nil {
				p.current.Name = name
			} else {
				p.pendingName = name
			}
		}

	case p.current == nil && strings.HasPrefix(trimmed, "@"):
		name, value, found := strings.Cut(trimmed[1:], "=")
		if !found || strings.TrimSpace(name) == "" {
			return &ParseError{File: p.file.Path, Line: n, Message: "malformed variable, expected @name = value"}
		}
		p.file.Variables = append(p.file.Variables, Variable{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
			Line:  n,
		})

	case p.current == nil:
		req, err := parseRequestLine(trimmed, n, p.file.Path)
		if err != nil {
			return err
		}
		req.Name = p.pendingName
		p.pendingName = ""
		p.current = req

	default:
		name, value, found := strings.Cut(trimmed, ":")
		if !found || strings.TrimSpace(name) == "" {
			return &ParseError{File: p.file.Path, Line: n, Message: "malformed header, expected Name: value"}
		}
		p.current.Headers = append(p.current.Headers, Header{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}

	return nil
}

func (p *parser) finishRequest() {
	if p.current == nil {
		p.inBody = false
		p.bodyLines = nil
		return
	}

	lines := trimBlankEdges(p.bodyLines)
	if len(lines) == 1 && strings.HasPrefix(strings.TrimSpace(lines[0]), "<") {
		p.current.BodyFile = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "<"))
	} else if len(lines) > 0 {
		p.current.Body = strings.Join(lines, "\n")
	}

	p.file.Requests = append(p.file.Requests, p.current)
	p.current = nil
	p.inBody = false
	p.bodyLines = nil
}

func isSeparator(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "###")
}

// separatorTitle extracts the optional request name after the ### marker.
func separatorTitle(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
}

var methods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "OPTIONS": true, "TRACE": true, "CONNECT": true,
}

// parseRequestLine reads "METHOD url [HTTP/version]"; a bare URL implies
// GET.
func parseRequestLine(line string, n int, file string) (*Request, error) {
	tokens := strings.Fields(line)
	if len(tokens) > 1 && strings.HasPrefix(tokens[len(tokens)-1], "HTTP/") {
		tokens = tokens[:len(tokens)-1]
	}

	switch {
	case len(tokens) == 1:
		return &Request{Method: "GET", URL: tokens[0], Line: n}, nil
	case len(tokens) == 2:
		method := strings.ToUpper(tokens[0])
		if !methods[method] {
			return nil, &ParseError{File: file, Line: n, Message: "unknown method " + tokens[0]}
		}
		return &Request{Method: method, URL: tokens[1], Line: n}, nil
	default:
		return nil, &ParseError{File: file, Line: n, Message: "malformed request line, expected METHOD URL"}
	}
}
