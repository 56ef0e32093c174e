package echo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reflectRequest(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, Reflection) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var doc Reflection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return rec, doc
}

func TestReflectsRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/users?limit=5", strings.NewReader(`{"name": "ada"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token-123")

	rec, doc := reflectRequest(t, New(), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "POST", doc.Method)
	assert.Equal(t, "/api/users", doc.Path)
	assert.Equal(t, "5", doc.Query["limit"])
	assert.Equal(t, "Bearer token-123", doc.Headers["Authorization"])

	body, ok := doc.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", body["name"])
}

func TestReflectsPlainBodyAsString(t *testing.T) {
	req := httptest.NewRequest("POST", "/notes", strings.NewReader("plain text"))
	req.Header.Set("Content-Type", "text/plain")

	_, doc := reflectRequest(t, New(), req)
	assert.Equal(t, "plain text", doc.Body)
}

func TestStatusOverride(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"/orders?status=503", 503},
		{"/orders?status=201", 201},
		{"/orders?status=abc", 200},
		{"/orders?status=42", 200},
		{"/orders", 200},
	}

	for _, tt := range tests {
		rec, _ := reflectRequest(t, New(), httptest.NewRequest("GET", tt.url, nil))
		assert.Equal(t, tt.want, rec.Code, tt.url)
	}
}

func TestDelay(t *testing.T) {
	s := New(WithDelay(30 * time.Millisecond))

	start := time.Now()
	rec, _ := reflectRequest(t, s, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEmptyBodyOmitted(t *testing.T) {
	_, doc := reflectRequest(t, New(), httptest.NewRequest("GET", "/ping", nil))
	assert.Nil(t, doc.Body)
}
