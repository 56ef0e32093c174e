package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/restwire/restwire/packages/import/curl"
	"github.com/restwire/restwire/packages/import/insomnia"
	"github.com/restwire/restwire/packages/import/openapi"
)

var (
	importOutputFlag      string
	importBaseURLFlag     string
	importTagsFlag        string
	importExcludeTagsFlag string
	importOperationsFlag  string
)

var importCmd = &cobra.Command{
	Use:   "import <format> <source>",
	Short: "Convert requests from other tools into request files",
	Long: `Convert API descriptions and tool exports into request files.

Supported formats:
  curl     - a curl command line, or a script of curl commands
  openapi  - OpenAPI 3.0/3.1 (YAML or JSON, file or URL)
  insomnia - Insomnia workspace export
  postman  - Postman Collection v2.1

Examples:
  restwire import curl 'curl -H "Accept: application/json" https://api.example.com/users'
  restwire import curl requests.sh -o api.http
  restwire import openapi spec.yaml -o api.http
  restwire import openapi https://petstore3.swagger.io/api/v3/openapi.json
  restwire import insomnia export.json
  restwire import postman collection.json -o api.http`,
}

var importCurlCmd = &cobra.Command{
	Use:   "curl <command-or-file>",
	Short: "Convert curl commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		var content string
		var err error
		if strings.HasPrefix(source, "curl ") || strings.HasPrefix(source, "curl\t") {
			content, err = curl.ConvertCommand(source)
		} else {
			content, err = curl.ConvertFile(source)
		}
		if err != nil {
			return fmt.Errorf("convert curl: %w", err)
		}

		return writeImported(content)
	},
}

var importOpenAPICmd = &cobra.Command{
	Use:   "openapi <document-or-url>",
	Short: "Convert an OpenAPI document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []openapi.Option
		if importBaseURLFlag != "" {
			opts = append(opts, openapi.WithBaseURL(importBaseURLFlag))
		}
		if tags := splitArgList(importTagsFlag); len(tags) > 0 {
			opts = append(opts, openapi.WithTags(tags))
		}
		if tags := splitArgList(importExcludeTagsFlag); len(tags) > 0 {
			opts = append(opts, openapi.WithExcludeTags(tags))
		}
		if ops := splitArgList(importOperationsFlag); len(ops) > 0 {
			opts = append(opts, openapi.WithOperations(ops))
		}

		content, err := openapi.NewConverter(opts...).ConvertFile(args[0])
		if err != nil {
			return fmt.Errorf("convert OpenAPI: %w", err)
		}

		return writeImported(content)
	},
}

var importInsomniaCmd = &cobra.Command{
	Use:   "insomnia <export-file>",
	Short: "Convert an Insomnia export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := insomnia.ConvertFile(args[0])
		if err != nil {
			return fmt.Errorf("convert Insomnia export: %w", err)
		}
		return writeImported(content)
	},
}

var importPostmanCmd = &cobra.Command{
	Use:   "postman <collection-file>",
	Short: "Convert a Postman collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := convertPostmanCollection(args[0])
		if err != nil {
			return fmt.Errorf("convert Postman collection: %w", err)
		}
		return writeImported(content)
	},
}

func init() {
	importCmd.PersistentFlags().StringVarP(&importOutputFlag, "output", "o", "", "Write to file instead of stdout")

	importOpenAPICmd.Flags().StringVar(&importBaseURLFlag, "base-url", "", "Override the server URL from the document")
	importOpenAPICmd.Flags().StringVar(&importTagsFlag, "tags", "", "Keep only operations with these tags (comma-separated)")
	importOpenAPICmd.Flags().StringVar(&importExcludeTagsFlag, "exclude-tags", "", "Drop operations with these tags (comma-separated)")
	importOpenAPICmd.Flags().StringVar(&importOperationsFlag, "operations", "", "Keep only these operation IDs (comma-separated)")

	importCmd.AddCommand(importCurlCmd)
	importCmd.AddCommand(importOpenAPICmd)
	importCmd.AddCommand(importInsomniaCmd)
	importCmd.AddCommand(importPostmanCmd)
}

func splitArgList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// writeImported sends converted text to the -o file or stdout.
func writeImported(content string) error {
	if importOutputFlag == "" {
		fmt.Print(content)
		return nil
	}

	if dir := filepath.Dir(importOutputFlag); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(importOutputFlag, []byte(content), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("Imported to %s\n", importOutputFlag)
	return nil
}

// Postman Collection v2.1 structures, trimmed to what the conversion reads.

type postmanCollection struct {
	Info postmanInfo   `json:"info"`
	Item []postmanItem `json:"item"`
}

type postmanInfo struct {
	Name string `json:"name"`
}

type postmanItem struct {
	Name    string          `json:"name"`
	Request *postmanRequest `json:"request,omitempty"`
	Item    []postmanItem   `json:"item,omitempty"`
}

type postmanRequest struct {
	Method string          `json:"method"`
	Header []postmanHeader `json:"header,omitempty"`
	Body   *postmanBody    `json:"body,omitempty"`
	URL    postmanURL      `json:"url"`
	Auth   *postmanAuth    `json:"auth,omitempty"`
}

type postmanHeader struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type postmanBody struct {
	Mode       string      `json:"mode"`
	Raw        string      `json:"raw,omitempty"`
	URLEncoded []postmanKV `json:"urlencoded,omitempty"`
}

type postmanKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type postmanURL struct {
	Raw string `json:"raw"`
}

type postmanAuth struct {
	Type   string      `json:"type"`
	Bearer []postmanKV `json:"bearer,omitempty"`
	Basic  []postmanKV `json:"basic,omitempty"`
}

func convertPostmanCollection(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var collection postmanCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return "", fmt.Errorf("parse collection: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Imported from Postman")
	if collection.Info.Name != "" {
		sb.WriteString(": ")
		sb.WriteString(collection.Info.Name)
	}
	sb.WriteString("\n\n")

	writePostmanItems(&sb, collection.Item, "")
	return sb.String(), nil
}

func writePostmanItems(sb *strings.Builder, items []postmanItem, prefix string) {
	for _, item := range items {
		if len(item.Item) > 0 {
			folder := item.Name
			if prefix != "" {
				folder = prefix + "/" + item.Name
			}
			writePostmanItems(sb, item.Item, folder)
			continue
		}
		if item.Request == nil {
			continue
		}

		sb.WriteString("### ")
		if prefix != "" {
			sb.WriteString(prefix)
			sb.WriteString(" - ")
		}
		sb.WriteString(item.Name)
		sb.WriteString("\n# @name ")
		sb.WriteString(postmanName(item.Name))
		sb.WriteString("\n")

		req := item.Request
		method := req.Method
		if method == "" {
			method = "GET"
		}
		sb.WriteString(method)
		sb.WriteString(" ")
		sb.WriteString(postmanVariables(req.URL.Raw))
		sb.WriteString("\n")

		for _, h := range req.Header {
			if h.Disabled {
				continue
			}
			sb.WriteString(h.Key)
			sb.WriteString(": ")
			sb.WriteString(postmanVariables(h.Value))
			sb.WriteString("\n")
		}

		if line, ok := postmanAuthHeader(req.Auth); ok {
			sb.WriteString(line)
			sb.WriteString("\n")
		}

		if req.Body != nil {
			switch req.Body.Mode {
			case "raw":
				if req.Body.Raw != "" {
					sb.WriteString("\n")
					sb.WriteString(postmanVariables(req.Body.Raw))
					sb.WriteString("\n")
				}
			case "urlencoded":
				if len(req.Body.URLEncoded) > 0 {
					var parts []string
					for _, kv := range req.Body.URLEncoded {
						parts = append(parts, kv.Key+"="+postmanVariables(kv.Value))
					}
					sb.WriteString("\n")
					sb.WriteString(strings.Join(parts, "&"))
					sb.WriteString("\n")
				}
			}
		}

		sb.WriteString("\n")
	}
}

// postmanAuthHeader maps collection auth onto an Authorization header line.
func postmanAuthHeader(auth *postmanAuth) (string, bool) {
	if auth == nil {
		return "", false
	}
	kv := func(pairs []postmanKV, key string) string {
		for _, p := range pairs {
			if p.Key == key {
				return p.Value
			}
		}
		return ""
	}

	switch auth.Type {
	case "basic":
		user := kv(auth.Basic, "username")
		if user == "" {
			return "", false
		}
		return "Authorization: Basic " + postmanVariables(user) + ":" + postmanVariables(kv(auth.Basic, "password")), true
	case "bearer":
		token := kv(auth.Bearer, "token")
		if token == "" {
			return "", false
		}
		return "Authorization: Bearer " + postmanVariables(token), true
	}
	return "", false
}

// postmanVariables rewrites Postman's dynamic variables into the builtin
// function forms; plain {{name}} references already match.
func postmanVariables(s string) string {
	s = strings.ReplaceAll(s, "{{$guid}}", "{{$uuid}}")
	s = strings.ReplaceAll(s, "{{$randomUUID}}", "{{$uuid}}")
	s = strings.ReplaceAll(s, "{{$isoTimestamp}}", "{{$now}}")
	s = strings.ReplaceAll(s, "{{$randomInt}}", "{{$random(0, 1000)}}")
	return s
}

func postmanName(name string) string {
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
