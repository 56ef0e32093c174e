// Package insomnia converts Insomnia workspace exports into request file
// text. Folders become title prefixes, template variables are normalized to
// the {{name}} form, and authentication settings become Authorization
// headers.
package insomnia

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Export is the top level of an Insomnia export file.
type Export struct {
	Type         string     `json:"_type"`
	ExportFormat int        `json:"__export_format"`
	Resources    []Resource `json:"resources"`
}

// Resource is one entry in the export: a request, a folder or something
// else we skip (environments, cookie jars).
type Resource struct {
	ID             string      `json:"_id"`
	Type           string      `json:"_type"`
	ParentID       string      `json:"parentId"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Method         string      `json:"method,omitempty"`
	URL            string      `json:"url,omitempty"`
	Headers        []Header    `json:"headers,omitempty"`
	Body           *Body       `json:"body,omitempty"`
	Parameters     []Parameter `json:"parameters,omitempty"`
	Authentication *Auth       `json:"authentication,omitempty"`
}

type Header struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Body struct {
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

type Parameter struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Auth struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ConvertFile converts an Insomnia export file.
func ConvertFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Convert(data)
}

// Convert converts Insomnia export JSON into request file text.
func Convert(data []byte) (string, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return "", fmt.Errorf("parse Insomnia export: %w", err)
	}

	folders := make(map[string]Resource)
	var requests []Resource
	for _, res := range export.Resources {
		switch res.Type {
		case "request":
			requests = append(requests, res)
		case "request_group":
			folders[res.ID] = res
		}
	}

	if len(requests) == 0 {
		return "", fmt.Errorf("no requests in Insomnia export")
	}

	var sb strings.Builder
	sb.WriteString("# Imported from Insomnia\n\n")
	for _, req := range requests {
		writeRequest(&sb, req, folders)
	}
	return sb.String(), nil
}

func writeRequest(sb *strings.Builder, req Resource, folders map[string]Resource) {
	sb.WriteString("### ")
	if path := folderPath(req.ParentID, folders); path != "" {
		sb.WriteString(path)
		sb.WriteString(" - ")
	}
	sb.WriteString(req.Name)
	sb.WriteString("\n# @name ")
	sb.WriteString(requestName(req.Name))
	sb.WriteString("\n")

	if req.Description != "" {
		sb.WriteString("# ")
		sb.WriteString(strings.ReplaceAll(req.Description, "\n", " "))
		sb.WriteString("\n")
	}

	method := req.Method
	if method == "" {
		method = "GET"
	}
	sb.WriteString(method)
	sb.WriteString(" ")
	sb.WriteString(urlWithQuery(normalizeVariables(req.URL), req.Parameters))
	sb.WriteString("\n")

	haveContentType := false
	for _, h := range req.Headers {
		if h.Disabled {
			continue
		}
		if strings.EqualFold(h.Name, "Content-Type") {
			haveContentType = true
		}
		sb.WriteString(h.Name)
		sb.WriteString(": ")
		sb.WriteString(normalizeVariables(h.Value))
		sb.WriteString("\n")
	}

	if req.Body != nil && req.Body.MimeType != "" && !haveContentType {
		sb.WriteString("Content-Type: ")
		sb.WriteString(req.Body.MimeType)
		sb.WriteString("\n")
	}

	if line, ok := authHeader(req.Authentication); ok {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if req.Body != nil && req.Body.Text != "" {
		sb.WriteString("\n")
		sb.WriteString(normalizeVariables(req.Body.Text))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
}

// authHeader maps Insomnia authentication onto an Authorization header
// line. Basic and digest use the user:password form the dispatcher
// understands; bearer tokens pass through as-is.
func authHeader(auth *Auth) (string, bool) {
	if auth == nil {
		return "", false
	}
	switch auth.Type {
	case "basic":
		if auth.Username == "" {
			return "", false
		}
		return "Authorization: Basic " + normalizeVariables(auth.Username) + ":" + normalizeVariables(auth.Password), true
	case "digest":
		if auth.Username == "" {
			return "", false
		}
		return "Authorization: Digest " + normalizeVariables(auth.Username) + ":" + normalizeVariables(auth.Password), true
	case "bearer":
		if auth.Token == "" {
			return "", false
		}
		return "Authorization: Bearer " + normalizeVariables(auth.Token), true
	}
	return "", false
}

// urlWithQuery folds enabled query parameters into the URL, since the file
// grammar keeps the query string on the request line.
func urlWithQuery(url string, params []Parameter) string {
	var pairs []string
	for _, p := range params {
		if p.Disabled || p.Name == "" {
			continue
		}
		pairs = append(pairs, p.Name+"="+normalizeVariables(p.Value))
	}
	if len(pairs) == 0 {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + strings.Join(pairs, "&")
}

func folderPath(parentID string, folders map[string]Resource) string {
	var path []string
	for id := parentID; ; {
		folder, ok := folders[id]
		if !ok {
			break
		}
		path = append([]string{folder.Name}, path...)
		id = folder.ParentID
	}
	return strings.Join(path, "/")
}

var (
	scopedVariable = regexp.MustCompile(`\{\{\s*_\.(\w+)\s*\}\}`)
	spacedVariable = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

// normalizeVariables rewrites Insomnia's {{ _.name }} and {{ name }}
// template forms to {{name}}.
func normalizeVariables(s string) string {
	s = scopedVariable.ReplaceAllString(s, "{{$1}}")
	s = spacedVariable.ReplaceAllString(s, "{{$1}}")
	return s
}

// requestName turns a display name into a lowerCamel identifier, e.g.
// "Create User - v2" becomes "createUserV2".
func requestName(name string) string {
	var sb strings.Builder
	newWord := false
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			if newWord && sb.Len() > 0 && r >= 'a' && r <= 'z' {
				r -= 'a' - 'A'
			}
			if sb.Len() == 0 && r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			sb.WriteRune(r)
			newWord = false
		default:
			newWord = true
		}
	}
	if sb.Len() == 0 {
		return "request"
	}
	return sb.String()
}
