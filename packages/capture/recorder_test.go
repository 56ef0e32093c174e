package capture

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restwire/restwire/packages/reqfile"
)

func newBackend(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var lastBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(backend.Close)
	return backend, &lastBody
}

func TestNewValidatesTarget(t *testing.T) {
	_, err := New("://bad")
	assert.Error(t, err)

	_, err = New("no-scheme.example.com")
	assert.Error(t, err)

	rec, err := New("https://api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", rec.Target())
}

func TestRecorderCapturesExchange(t *testing.T) {
	backend, lastBody := newBackend(t)

	rec, err := New(backend.URL)
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	req, err := http.NewRequest(http.MethodPost, proxy.URL+"/users?notify=1", strings.NewReader(`{"name":"Ada"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The proxy must stay transparent in both directions.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(respBody))
	assert.Equal(t, `{"name":"Ada"}`, *lastBody)

	exchanges := rec.Exchanges()
	require.Len(t, exchanges, 1)

	exchange := exchanges[0]
	assert.Equal(t, "POST", exchange.Method)
	assert.Equal(t, "/users?notify=1", exchange.Path)
	assert.Equal(t, `{"name":"Ada"}`, exchange.Body)
	assert.Equal(t, "{{AUTHORIZATION}}", exchange.Headers["Authorization"])
	assert.Equal(t, "application/json", exchange.Headers["Content-Type"])

	require.NotNil(t, exchange.Response)
	assert.Equal(t, http.StatusOK, exchange.Response.StatusCode)
	assert.Equal(t, `{"ok":true}`, exchange.Response.Body)
	assert.Positive(t, exchange.Response.Duration)
}

func TestRecorderExclude(t *testing.T) {
	backend, _ := newBackend(t)

	rec, err := New(backend.URL, WithExclude([]string{"/health"}))
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(proxy.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()

	exchanges := rec.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "/users", exchanges[0].Path)
}

func TestRecorderDedupe(t *testing.T) {
	backend, _ := newBackend(t)

	rec, err := New(backend.URL, WithDedupe(true))
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Get(proxy.URL + "/users?page=1")
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Len(t, rec.Exchanges(), 1)
}

func TestRecorderClear(t *testing.T) {
	backend, _ := newBackend(t)

	rec, err := New(backend.URL)
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, rec.Exchanges(), 1)
	rec.Clear()
	assert.Empty(t, rec.Exchanges())
}

func TestExportRoundTrips(t *testing.T) {
	backend, _ := newBackend(t)

	rec, err := New(backend.URL)
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/api/users?limit=2")
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, proxy.URL+"/api/users", strings.NewReader(`{"name":"Ada"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	text := rec.Export()
	assert.Contains(t, text, "@baseUrl = "+backend.URL)
	assert.Contains(t, text, "### GET /api/users")
	assert.Contains(t, text, "# @name getApiUsers")
	assert.Contains(t, text, "GET {{baseUrl}}/api/users?limit=2")
	assert.NotContains(t, text, "User-Agent")
	assert.NotContains(t, text, "Accept-Encoding")

	file, err := reqfile.Parse(text, "")
	require.NoError(t, err)
	require.Len(t, file.Requests, 2)
	assert.Equal(t, "getApiUsers", file.Requests[0].Name)
	assert.Equal(t, "postApiUsers", file.Requests[1].Name)
	assert.Equal(t, `{"name":"Ada"}`, file.Requests[1].Body)

	require.Len(t, file.Variables, 1)
	assert.Equal(t, "baseUrl", file.Variables[0].Name)
	assert.Equal(t, backend.URL, file.Variables[0].Value)
}

func TestExportNameCollisions(t *testing.T) {
	backend, _ := newBackend(t)

	rec, err := New(backend.URL)
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(proxy.URL + "/users")
		require.NoError(t, err)
		resp.Body.Close()
	}

	text := rec.Export()
	assert.Contains(t, text, "# @name getUsers\n")
	assert.Contains(t, text, "# @name getUsers2\n")
}

func TestExportJSON(t *testing.T) {
	backend, _ := newBackend(t)

	rec, err := New(backend.URL)
	require.NoError(t, err)
	proxy := httptest.NewServer(rec.Handler())
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()

	data, err := rec.ExportJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"method": "GET"`)
	assert.Contains(t, string(data), `"path": "/users"`)
}

func TestExchangeName(t *testing.T) {
	tests := []struct {
		method string
		path   string
		expect string
	}{
		{"GET", "/users", "getUsers"},
		{"GET", "/", "getRoot"},
		{"POST", "/api/v1/things", "postApiV1Things"},
		{"DELETE", "/users/42", "deleteUsers42"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, exchangeName(tt.method, tt.path))
	}
}
