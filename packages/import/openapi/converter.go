// Package openapi generates request file text from OpenAPI 3.0/3.1
// documents. Every operation becomes one request with example values drawn
// from the schema, so the output is a ready-to-edit starting point rather
// than a faithful client.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Converter renders OpenAPI documents as request file text.
type Converter struct {
	baseURL     string
	includeTags []string
	excludeTags []string
	includeOnly []string // operation IDs
}

// Option is a functional option for Converter.
type Option func(*Converter)

// WithBaseURL overrides the server URL from the document.
func WithBaseURL(url string) Option {
	return func(c *Converter) {
		c.baseURL = url
	}
}

// WithTags keeps only operations carrying one of the given tags.
func WithTags(tags []string) Option {
	return func(c *Converter) {
		c.includeTags = tags
	}
}

// WithExcludeTags drops operations carrying one of the given tags.
func WithExcludeTags(tags []string) Option {
	return func(c *Converter) {
		c.excludeTags = tags
	}
}

// WithOperations keeps only the named operation IDs.
func WithOperations(ops []string) Option {
	return func(c *Converter) {
		c.includeOnly = ops
	}
}

// NewConverter creates a converter with the given options.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertFile loads an OpenAPI document from a file path or http(s) URL and
// converts it.
func (c *Converter) ConvertFile(path string) (string, error) {
	var doc *openapi3.T
	var err error

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		doc, err = loadFromURL(path)
	} else {
		loader := openapi3.NewLoader()
		loader.IsExternalRefsAllowed = true
		doc, err = loader.LoadFromFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("load OpenAPI document: %w", err)
	}

	return c.Convert(doc)
}

func loadFromURL(url string) (*openapi3.T, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return openapi3.NewLoader().LoadFromData(data)
}

// Convert renders the document. Validation problems are reported as a
// warning instead of failing, since many published documents carry minor
// ones.
func (c *Converter) Convert(doc *openapi3.T) (string, error) {
	if err := doc.Validate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: OpenAPI validation: %v\n", err)
	}

	var sb strings.Builder

	sb.WriteString("# Imported from OpenAPI")
	if doc.Info != nil && doc.Info.Title != "" {
		sb.WriteString(": ")
		sb.WriteString(doc.Info.Title)
		if doc.Info.Version != "" {
			sb.WriteString(" ")
			sb.WriteString(doc.Info.Version)
		}
	}
	sb.WriteString("\n\n@baseUrl = ")
	sb.WriteString(c.resolveBaseURL(doc))
	sb.WriteString("\n\n")

	paths := make([]string, 0, len(doc.Paths.Map()))
	for path := range doc.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := doc.Paths.Map()[path]
		if item == nil {
			continue
		}

		operations := []struct {
			method string
			op     *openapi3.Operation
		}{
			{"GET", item.Get},
			{"POST", item.Post},
			{"PUT", item.Put},
			{"PATCH", item.Patch},
			{"DELETE", item.Delete},
			{"HEAD", item.Head},
			{"OPTIONS", item.Options},
		}

		for _, entry := range operations {
			if entry.op == nil || !c.wantOperation(entry.op) {
				continue
			}
			c.writeOperation(&sb, path, entry.method, entry.op, item.Parameters)
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

func (c *Converter) resolveBaseURL(doc *openapi3.T) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		return doc.Servers[0].URL
	}
	return "http://localhost:3000"
}

func (c *Converter) wantOperation(op *openapi3.Operation) bool {
	if len(c.includeOnly) > 0 {
		found := false
		for _, id := range c.includeOnly {
			if op.OperationID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(c.includeTags) > 0 {
		found := false
		for _, tag := range op.Tags {
			for _, want := range c.includeTags {
				if tag == want {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}

	for _, tag := range op.Tags {
		for _, skip := range c.excludeTags {
			if tag == skip {
				return false
			}
		}
	}

	return true
}

func (c *Converter) writeOperation(sb *strings.Builder, path, method string, op *openapi3.Operation, pathParams openapi3.Parameters) {
	name := op.OperationID
	if name == "" {
		name = fallbackName(method, path)
	}

	sb.WriteString("### ")
	if op.Summary != "" {
		sb.WriteString(op.Summary)
	} else {
		sb.WriteString(method + " " + path)
	}
	sb.WriteString("\n# @name ")
	sb.WriteString(requestName(name))
	sb.WriteString("\n")

	if op.Description != "" {
		desc := strings.ReplaceAll(op.Description, "\n", " ")
		if len(desc) > 100 {
			desc = desc[:100] + "..."
		}
		sb.WriteString("# ")
		sb.WriteString(desc)
		sb.WriteString("\n")
	}

	allParams := append(append(openapi3.Parameters{}, pathParams...), op.Parameters...)

	sb.WriteString(method)
	sb.WriteString(" {{baseUrl}}")
	sb.WriteString(templatePath(path, allParams))
	sb.WriteString(queryString(allParams))
	sb.WriteString("\n")

	for _, ref := range allParams {
		if ref == nil || ref.Value == nil || ref.Value.In != "header" {
			continue
		}
		sb.WriteString(ref.Value.Name)
		sb.WriteString(": ")
		sb.WriteString(paramExample(ref.Value))
		sb.WriteString("\n")
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		c.writeRequestBody(sb, op.RequestBody.Value)
	}
}

func (c *Converter) writeRequestBody(sb *strings.Builder, reqBody *openapi3.RequestBody) {
	for contentType, mediaType := range reqBody.Content {
		if strings.Contains(contentType, "json") && mediaType.Schema != nil {
			sb.WriteString("Content-Type: application/json\n\n")
			sb.WriteString(jsonFromSchema(mediaType.Schema.Value, 0))
			sb.WriteString("\n")
			return
		}
	}
	for contentType, mediaType := range reqBody.Content {
		if strings.Contains(contentType, "form") && mediaType.Schema != nil {
			body := formFromSchema(mediaType.Schema.Value)
			if body == "" {
				return
			}
			sb.WriteString("Content-Type: application/x-www-form-urlencoded\n\n")
			sb.WriteString(body)
			sb.WriteString("\n")
			return
		}
	}
}

// templatePath rewrites {param} path segments as {{param}} placeholders.
func templatePath(path string, params openapi3.Parameters) string {
	result := path
	for _, ref := range params {
		if ref == nil || ref.Value == nil || ref.Value.In != "path" {
			continue
		}
		name := ref.Value.Name
		result = strings.ReplaceAll(result, "{"+name+"}", "{{"+name+"}}")
	}
	return result
}

// queryString folds query parameters into a ?a=b&c=d suffix. Spaces in
// example values are escaped so the request line still splits into two
// fields.
func queryString(params openapi3.Parameters) string {
	var pairs []string
	for _, ref := range params {
		if ref == nil || ref.Value == nil || ref.Value.In != "query" {
			continue
		}
		value := strings.ReplaceAll(paramExample(ref.Value), " ", "%20")
		pairs = append(pairs, ref.Value.Name+"="+value)
	}
	if len(pairs) == 0 {
		return ""
	}
	return "?" + strings.Join(pairs, "&")
}

func paramExample(param *openapi3.Parameter) string {
	if param.Example != nil {
		return fmt.Sprintf("%v", param.Example)
	}

	if param.Schema != nil && param.Schema.Value != nil {
		schema := param.Schema.Value
		if schema.Example != nil {
			return fmt.Sprintf("%v", schema.Example)
		}
		if len(schema.Type.Slice()) > 0 {
			switch schema.Type.Slice()[0] {
			case "integer":
				return "1"
			case "number":
				return "1.0"
			case "boolean":
				return "true"
			case "string":
				switch schema.Format {
				case "date":
					return "2024-01-01"
				case "date-time":
					return "2024-01-01T00:00:00Z"
				case "email":
					return "user@example.com"
				case "uuid":
					return "{{$uuid}}"
				}
				return "example"
			}
		}
	}

	return "{{" + param.Name + "}}"
}

// jsonFromSchema renders an example JSON document for a schema, recursing
// into objects and arrays. Depth is capped so cyclic schemas terminate.
func jsonFromSchema(schema *openapi3.Schema, depth int) string {
	if schema == nil || depth > 5 || len(schema.Type.Slice()) == 0 {
		return "{}"
	}

	switch schema.Type.Slice()[0] {
	case "object":
		props := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			props = append(props, name)
		}
		sort.Strings(props)

		var sb strings.Builder
		sb.WriteString("{\n")
		for i, name := range props {
			sb.WriteString(strings.Repeat("  ", depth+1))
			sb.WriteString("\"")
			sb.WriteString(name)
			sb.WriteString("\": ")
			if prop := schema.Properties[name]; prop != nil && prop.Value != nil {
				sb.WriteString(jsonValue(prop.Value, depth+1))
			} else {
				sb.WriteString("null")
			}
			if i < len(props)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString("}")
		return sb.String()

	case "array":
		if schema.Items != nil && schema.Items.Value != nil {
			return "[" + jsonValue(schema.Items.Value, depth+1) + "]"
		}
		return "[]"

	default:
		return jsonValue(schema, depth)
	}
}

func jsonValue(schema *openapi3.Schema, depth int) string {
	if schema == nil {
		return "null"
	}

	if schema.Example != nil {
		if data, err := json.Marshal(schema.Example); err == nil {
			return string(data)
		}
	}

	if len(schema.Type.Slice()) == 0 {
		return "null"
	}

	switch schema.Type.Slice()[0] {
	case "string":
		switch schema.Format {
		case "date":
			return `"2024-01-01"`
		case "date-time":
			return `"2024-01-01T00:00:00Z"`
		case "email":
			return `"user@example.com"`
		case "uuid":
			return `"{{$uuid}}"`
		}
		if len(schema.Enum) > 0 {
			return fmt.Sprintf("%q", fmt.Sprintf("%v", schema.Enum[0]))
		}
		return `"example"`
	case "integer":
		if schema.Min != nil {
			return fmt.Sprintf("%.0f", *schema.Min)
		}
		return "1"
	case "number":
		if schema.Min != nil {
			return fmt.Sprintf("%v", *schema.Min)
		}
		return "1.0"
	case "boolean":
		return "true"
	case "array":
		if schema.Items != nil && schema.Items.Value != nil {
			return "[" + jsonValue(schema.Items.Value, depth+1) + "]"
		}
		return "[]"
	case "object":
		return jsonFromSchema(schema, depth)
	default:
		return "null"
	}
}

func formFromSchema(schema *openapi3.Schema) string {
	if schema == nil || len(schema.Properties) == 0 {
		return ""
	}

	var parts []string
	for name, prop := range schema.Properties {
		value := "example"
		if prop != nil && prop.Value != nil && prop.Value.Example != nil {
			value = fmt.Sprintf("%v", prop.Value.Example)
		}
		parts = append(parts, name+"="+value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// fallbackName builds an identifier for operations without an operationId,
// e.g. GET /users/{id} becomes getUsersId.
func fallbackName(method, path string) string {
	name := strings.ToLower(method)
	for _, segment := range strings.Split(path, "/") {
		var clean strings.Builder
		for _, r := range segment {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				clean.WriteRune(r)
			}
		}
		if clean.Len() == 0 {
			continue
		}
		s := clean.String()
		name += strings.ToUpper(s[:1]) + s[1:]
	}
	if name == strings.ToLower(method) {
		name += "Root"
	}
	return name
}

// requestName normalizes an operation ID into a lowerCamel identifier.
// Already-camel IDs pass through unchanged apart from the leading rune.
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

// ConvertToFile converts a document and writes the result, creating parent
// directories as needed.
func (c *Converter) ConvertToFile(specPath, outputPath string) error {
	content, err := c.ConvertFile(specPath)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(outputPath, []byte(content), 0644)
}
