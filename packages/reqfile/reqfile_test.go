package reqfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/restwire/restwire/packages/core/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `@base = https://api.example.com
@token = secret-1

### Create user
POST {{base}}/users HTTP/1.1
Content-Type: application/json
Authorization: Bearer {{token}}

{
  "name": "alice"
}

###
# @name getUser
GET {{base}}/users/1
Accept: application/json
`

func TestParse(t *testing.T) {
	file, err := Parse(sampleFile, "sample.http")
	require.NoError(t, err)

	require.Len(t, file.Variables, 2)
	assert.Equal(t, "base", file.Variables[0].Name)
	assert.Equal(t, "https://api.example.com", file.Variables[0].Value)
	assert.Equal(t, 1, file.Variables[0].Line)

	require.Len(t, file.Requests, 2)

	create := file.Requests[0]
	assert.Equal(t, "Create user", create.Name, "separator title names the request")
	assert.Equal(t, "POST", create.Method)
	assert.Equal(t, "{{base}}/users", create.URL, "HTTP version token is dropped")
	assert.Equal(t, []Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Authorization", Value: "Bearer {{token}}"},
	}, create.Headers)
	assert.Equal(t, "{\n  \"name\": \"alice\"\n}", create.Body)

	get := file.Requests[1]
	assert.Equal(t, "getUser", get.Name, "the @name annotation wins over the separator")
	assert.Equal(t, "GET", get.Method)
	assert.Empty(t, get.Body)
}

func TestParse_BareURLImpliesGET(t *testing.T) {
	file, err := Parse("https://example.com/health\n", "")
	require.NoError(t, err)
	require.Len(t, file.Requests, 1)
	assert.Equal(t, "GET", file.Requests[0].Method)
	assert.Equal(t, "https://example.com/health", file.Requests[0].URL)
}

func TestParse_InteriorBlankLinesKept(t *testing.T) {
	input := "POST http://x/upload\n\nline one\n\nline three\n\n\n"
	file, err := Parse(input, "")
	require.NoError(t, err)
	assert.Equal(t, "line one\n\nline three", file.Requests[0].Body)
}

func TestParse_BodyFromFile(t *testing.T) {
	input := "POST http://x/upload\nContent-Type: application/json\n\n< payload.json\n"
	file, err := Parse(input, "dir/sample.http")
	require.NoError(t, err)
	assert.Equal(t, "payload.json", file.Requests[0].BodyFile)
	assert.Empty(t, file.Requests[0].Body)
}

func TestParse_CRLF(t *testing.T) {
	input := "GET http://x/\r\nAccept: text/plain\r\n\r\nbody\r\n"
	file, err := Parse(input, "")
	require.NoError(t, err)
	require.Len(t, file.Requests, 1)
	assert.Equal(t, []Header{{Name: "Accept", Value: "text/plain"}}, file.Requests[0].Headers)
	assert.Equal(t, "body", file.Requests[0].Body)
}

func TestParse_CommentsIgnored(t *testing.T) {
	input := "# a note\n// another note\nGET http://x/\n"
	file, err := Parse(input, "")
	require.NoError(t, err)
	require.Len(t, file.Requests, 1)
	assert.Empty(t, file.Requests[0].Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
		line    int
	}{
		{"bad header", "GET http://x/\nNoColonHere\n", "malformed header", 2},
		{"unknown method", "FETCH http://x/\n", "unknown method", 1},
		{"bad variable", "@novalue\nGET http://x/\n", "malformed variable", 1},
		{"extra request line tokens", "GET http://x/ extra junk\n", "malformed request line", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, "req.http")
			require.Error(t, err)

			parseErr, ok := err.(*ParseError)
			require.True(t, ok)
			assert.Equal(t, tt.line, parseErr.Line)
			assert.Contains(t, parseErr.Error(), "req.http:")
			assert.Contains(t, parseErr.Message, tt.wantMsg)
		})
	}
}

func TestLookupAndNames(t *testing.T) {
	file, err := Parse(sampleFile, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Create user", "getUser"}, file.Names())
	assert.NotNil(t, file.Lookup("getUser"))
	assert.Nil(t, file.Lookup("missing"))
}

func TestSeedResolvesInOrder(t *testing.T) {
	input := "@host = example.com\n@base = https://{{host}}/v1\n\nGET {{base}}/ping\n"
	file, err := Parse(input, "")
	require.NoError(t, err)

	resolver := env.NewResolver()
	file.Seed(resolver)

	base, ok := resolver.Get("base")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/v1", base)
}

func TestMaterialize(t *testing.T) {
	t.Run("resolves url headers and body", func(t *testing.T) {
		file, err := Parse(sampleFile, "sample.http")
		require.NoError(t, err)

		resolver := env.NewResolver()
		file.Seed(resolver)

		req, err := file.Materialize(file.Requests[0], resolver)
		require.NoError(t, err)

		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "https://api.example.com/users", req.URL)
		assert.Equal(t, "Bearer secret-1", req.Headers.Get("Authorization"))
		assert.Contains(t, req.Body, `"alice"`)
		assert.Equal(t, "Create user", req.Name)
	})

	t.Run("duplicate headers join", func(t *testing.T) {
		input := "GET http://x/\nCookie: a=1\nCookie: b=2\n"
		file, err := Parse(input, "")
		require.NoError(t, err)

		req, err := file.Materialize(file.Requests[0], env.NewResolver())
		require.NoError(t, err)
		assert.Equal(t, "a=1, b=2", req.Headers.Get("Cookie"))
	})

	t.Run("body file read next to the request file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "payload.json"), []byte(`{"from":"file"}`), 0644))
		reqPath := filepath.Join(dir, "api.http")

		file, err := Parse("POST http://x/upload\n\n< payload.json\n", reqPath)
		require.NoError(t, err)

		req, err := file.Materialize(file.Requests[0], env.NewResolver())
		require.NoError(t, err)
		assert.Equal(t, `{"from":"file"}`, req.Body)
		assert.Equal(t, dir, req.Dir)
	})

	t.Run("missing body file", func(t *testing.T) {
		file, err := Parse("POST http://x/\n\n< nope.json\n", filepath.Join(t.TempDir(), "a.http"))
		require.NoError(t, err)

		_, err = file.Materialize(file.Requests[0], env.NewResolver())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "body file")
	})
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.http")
	require.NoError(t, os.WriteFile(path, []byte("GET https://example.com/\n"), 0644))

	file, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)
	require.Len(t, file.Requests, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.http"))
	assert.Error(t, err)

	// Ad-hoc parses have no directory to anchor to.
	adhoc, err := Parse("GET https://example.com/\n", "")
	require.NoError(t, err)
	req, err := adhoc.Materialize(adhoc.Requests[0], env.NewResolver())
	require.NoError(t, err)
	assert.Empty(t, req.Dir)
}
