// Package curl converts curl command lines into request file text.
//
// The subset of curl flags that describe the request itself is mapped onto
// the file grammar; transport-only flags (timeouts, output, verbosity) are
// skipped. Credentials given with -u become an Authorization header in the
// user:password form the dispatcher negotiates from.
package curl

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Header is one -H header in command order.
type Header struct {
	Name  string
	Value string
}

// Request is a parsed curl command.
type Request struct {
	Method   string
	URL      string
	Headers  []Header
	Body     string
	BodyFile string // -d @file
	User     string // -u user:password
	Digest   bool   // --digest
	Insecure bool   // -k
	Name     string
}

// Parse reads a single curl command line. The leading "curl" word is
// optional. It returns an error when no URL can be found.
func Parse(command string) (*Request, error) {
	tokens := tokenize(strings.TrimSpace(command))
	if len(tokens) > 0 && tokens[0] == "curl" {
		tokens = tokens[1:]
	}

	req := &Request{}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		// Flags that take a value read tokens[i+1].
		value := func() string {
			if i+1 < len(tokens) {
				i++
				return tokens[i]
			}
			return ""
		}

		switch tok {
		case "-X", "--request":
			req.Method = strings.ToUpper(value())
		case "-H", "--header":
			if name, val, found := strings.Cut(value(), ":"); found {
				req.Headers = append(req.Headers, Header{
					Name:  strings.TrimSpace(name),
					Value: strings.TrimSpace(val),
				})
			}
		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii":
			req.addData(value())
		case "--json":
			req.addData(value())
			req.Headers = append(req.Headers,
				Header{Name: "Content-Type", Value: "application/json"},
				Header{Name: "Accept", Value: "application/json"},
			)
		case "-u", "--user":
			req.User = value()
		case "--digest":
			req.Digest = true
		case "--basic":
			req.Digest = false
		case "-k", "--insecure":
			req.Insecure = true
		case "-L", "--location":
			// Redirects are followed on send; nothing to record.
		case "-A", "--user-agent":
			req.Headers = append(req.Headers, Header{Name: "User-Agent", Value: value()})
		case "-e", "--referer":
			req.Headers = append(req.Headers, Header{Name: "Referer", Value: value()})
		case "-b", "--cookie":
			req.Headers = append(req.Headers, Header{Name: "Cookie", Value: value()})
		case "--url":
			req.URL = value()
		default:
			if strings.HasPrefix(tok, "-") {
				// Unknown flag. Swallow its value too unless the next
				// token is the URL.
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i++
				}
				continue
			}
			if req.URL == "" {
				req.URL = tok
			}
		}
	}

	if req.URL == "" {
		return nil, fmt.Errorf("no URL in curl command")
	}

	if req.Method == "" {
		if req.Body != "" || req.BodyFile != "" {
			req.Method = "POST"
		} else {
			req.Method = "GET"
		}
	}

	req.Name = generateName(req.URL, req.Method)
	return req, nil
}

// addData appends one data value. curl joins repeated -d values with "&";
// a leading @ names a file to read the body from.
func (r *Request) addData(value string) {
	if file, ok := strings.CutPrefix(value, "@"); ok && r.Body == "" {
		r.BodyFile = file
		return
	}
	if r.Body == "" {
		r.Body = value
		return
	}
	r.Body += "&" + value
}

// Text renders the request in request file format.
func (r *Request) Text() string {
	var sb strings.Builder

	sb.WriteString("### ")
	sb.WriteString(r.Method)
	sb.WriteString(" ")
	sb.WriteString(urlPath(r.URL))
	sb.WriteString("\n# @name ")
	sb.WriteString(r.Name)
	sb.WriteString("\n")

	if r.Insecure {
		sb.WriteString("# sent with curl -k; pass --insecure to match\n")
	}

	sb.WriteString(r.Method)
	sb.WriteString(" ")
	sb.WriteString(r.URL)
	sb.WriteString("\n")

	for _, h := range r.Headers {
		sb.WriteString(h.Name)
		sb.WriteString(": ")
		sb.WriteString(h.Value)
		sb.WriteString("\n")
	}

	if r.User != "" {
		scheme := "Basic"
		if r.Digest {
			scheme = "Digest"
		}
		sb.WriteString("Authorization: ")
		sb.WriteString(scheme)
		sb.WriteString(" ")
		sb.WriteString(r.User)
		sb.WriteString("\n")
	}

	switch {
	case r.BodyFile != "":
		sb.WriteString("\n< ")
		sb.WriteString(r.BodyFile)
		sb.WriteString("\n")
	case r.Body != "":
		sb.WriteString("\n")
		sb.WriteString(r.Body)
		sb.WriteString("\n")
	}

	return sb.String()
}

// ConvertCommand parses one curl command and renders it as request file
// text.
func ConvertCommand(command string) (string, error) {
	req, err := Parse(command)
	if err != nil {
		return "", err
	}
	return req.Text(), nil
}

// ConvertFile converts every curl command in a shell-style file. Trailing
// backslashes continue a command on the next line; blank lines and comments
// are skipped.
func ConvertFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var commands []string
	var pending strings.Builder
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if cont, ok := strings.CutSuffix(line, "\\"); ok {
			pending.WriteString(cont)
			pending.WriteString(" ")
			continue
		}
		pending.WriteString(line)
		command := strings.TrimSpace(pending.String())
		pending.Reset()
		if command == "" || strings.HasPrefix(command, "#") {
			continue
		}
		if command == "curl" || strings.HasPrefix(command, "curl ") {
			commands = append(commands, command)
		}
	}

	if len(commands) == 0 {
		return "", fmt.Errorf("%s: no curl commands found", path)
	}

	var parts []string
	for _, command := range commands {
		text, err := ConvertCommand(command)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

// tokenize splits a command line on whitespace, honoring single and double
// quotes so quoted arguments keep their spaces.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && (ch == ' ' || ch == '\t'):
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	flush()
	return tokens
}

func isURL(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "localhost")
}

// urlPath returns the path portion for use in the request title, "/" when
// the URL has none or does not parse.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// generateName derives a lowerCamel request name from the method and URL
// path, e.g. GET /api/v1/users becomes getApiV1Users.
func generateName(rawURL, method string) string {
	name := strings.ToLower(method)

	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return name + "Root"
	}

	for _, segment := range strings.Split(u.Path, "/") {
		cleaned := sanitizeSegment(segment)
		if cleaned == "" {
			continue
		}
		name += strings.ToUpper(cleaned[:1]) + cleaned[1:]
	}
	if name == strings.ToLower(method) {
		return name + "Root"
	}
	return name
}

// sanitizeSegment strips everything but letters and digits, so template
// placeholders and matrix params do not leak into names.
func sanitizeSegment(segment string) string {
	var sb strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
