package http

import (
	"context"
	"errors"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/restwire/restwire/packages/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_Defaults(t *testing.T) {
	opts, err := NewBuilder().Prepare(context.Background(), NewRequest("", "http://example.com/"), nil)
	require.NoError(t, err)

	assert.Equal(t, "GET", opts.Method, "missing method defaults to GET")
	assert.Equal(t, "example.com", opts.URL.Host)
	assert.True(t, opts.FollowRedirect)
	assert.False(t, opts.StrictSSL)
	assert.False(t, opts.DecodeEscapedUnicode)
	assert.Zero(t, opts.Timeout)
	assert.Nil(t, opts.Body)
}

func TestPrepare_MethodUppercased(t *testing.T) {
	opts, err := NewBuilder().Prepare(context.Background(), NewRequest("post", "http://example.com/"), nil)
	require.NoError(t, err)
	assert.Equal(t, "POST", opts.Method)
}

func TestPrepare_CallerRequestUntouched(t *testing.T) {
	req := NewRequest("GET", "http://example.com/")
	req.SetHeader("Authorization", "Basic alice secret")
	req.SetHeader("X-Custom", "kept")

	opts, err := NewBuilder().Prepare(context.Background(), req, nil)
	require.NoError(t, err)

	// The options got the rewrite, the caller's request did not.
	_, present := opts.Headers.Lookup("Authorization")
	assert.False(t, present)
	assert.Equal(t, "Basic alice secret", req.Headers.Get("Authorization"))
	assert.Equal(t, "kept", req.Headers.Get("X-Custom"))

	// Mutating the options afterwards cannot reach the caller either.
	opts.Headers.Set("X-Custom", "changed")
	assert.Equal(t, "kept", req.Headers.Get("X-Custom"))
}

func TestPrepare_BodyMaterialization(t *testing.T) {
	t.Run("literal body", func(t *testing.T) {
		req := NewRequest("POST", "http://example.com/").SetBody(`{"a":1}`)
		opts, err := NewBuilder().Prepare(context.Background(), req, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), opts.Body)
	})

	t.Run("reader takes precedence", func(t *testing.T) {
		req := NewRequest("POST", "http://example.com/").SetBody("ignored")
		req.SetBodyReader(strings.NewReader("from-reader"))
		opts, err := NewBuilder().Prepare(context.Background(), req, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("from-reader"), opts.Body)
	})

	t.Run("reader failure is a config error", func(t *testing.T) {
		req := NewRequest("POST", "http://example.com/")
		req.SetBodyReader(iotest.ErrReader(errors.New("disk gone")))

		_, err := NewBuilder().Prepare(context.Background(), req, nil)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
	})
}

func TestPrepare_URLValidation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unparsable", "://bad"},
		{"unsupported scheme", "ftp://example.com/file"},
		{"no host", "http://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder().Prepare(context.Background(), NewRequest("GET", tt.url), nil)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestPrepare_SettingsMapping(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	builder := NewBuilder(WithCookieJar(jar))

	t.Run("timeout in milliseconds", func(t *testing.T) {
		settings := &config.Settings{TimeoutMs: 1500}
		opts, err := builder.Prepare(context.Background(), NewRequest("GET", "http://example.com/"), settings)
		require.NoError(t, err)
		assert.Equal(t, 1500*time.Millisecond, opts.Timeout)
	})

	t.Run("remember cookies attaches the jar", func(t *testing.T) {
		opts, err := builder.Prepare(context.Background(), NewRequest("GET", "http://example.com/"), nil)
		require.NoError(t, err)
		assert.NotNil(t, opts.Jar)
	})

	t.Run("forgetting cookies drops the jar", func(t *testing.T) {
		settings := &config.Settings{RememberCookies: config.BoolPtr(false)}
		opts, err := builder.Prepare(context.Background(), NewRequest("GET", "http://example.com/"), settings)
		require.NoError(t, err)
		assert.Nil(t, opts.Jar)
	})

	t.Run("strict ssl and redirects", func(t *testing.T) {
		settings := &config.Settings{
			StrictSSL:      config.BoolPtr(true),
			FollowRedirect: config.BoolPtr(false),
		}
		opts, err := builder.Prepare(context.Background(), NewRequest("GET", "http://example.com/"), settings)
		require.NoError(t, err)
		assert.True(t, opts.StrictSSL)
		assert.False(t, opts.FollowRedirect)
	})
}

func TestPrepare_CertificateFromRequestDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client.pem"), []byte("pem-bytes"), 0644))

	settings := &config.Settings{
		HostCertificates: map[string]config.CertificateConfig{
			"example.com": {Cert: "client.pem"},
		},
	}
	req := NewRequest("GET", "https://example.com/").SetDir(dir)

	opts, err := NewBuilder().Prepare(context.Background(), req, settings)
	require.NoError(t, err)
	require.NotNil(t, opts.Certificate)
	assert.Equal(t, []byte("pem-bytes"), opts.Certificate.Cert)
}

func TestPrepare_ProxyWired(t *testing.T) {
	settings := &config.Settings{
		Proxy:                "http://proxy.local:3128",
		ExcludeHostsForProxy: []string{"internal.example.com"},
	}

	t.Run("proxied", func(t *testing.T) {
		opts, err := NewBuilder().Prepare(context.Background(), NewRequest("GET", "http://example.com/"), settings)
		require.NoError(t, err)
		require.NotNil(t, opts.Proxy)
		assert.Equal(t, "proxy.local:3128", opts.Proxy.URL.Host)
	})

	t.Run("excluded", func(t *testing.T) {
		opts, err := NewBuilder().Prepare(context.Background(), NewRequest("GET", "http://internal.example.com/"), settings)
		require.NoError(t, err)
		assert.Nil(t, opts.Proxy)
	})
}

func TestPrepare_AuthFailureAborts(t *testing.T) {
	req := NewRequest("GET", "http://example.com/")
	req.SetHeader("Authorization", "aws AKID")

	opts, err := NewBuilder().Prepare(context.Background(), req, nil)
	assert.Nil(t, opts)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}
