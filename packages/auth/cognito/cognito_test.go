package cognito

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthParams(t *testing.T) {
	t.Run("minimal", func(t *testing.T) {
		config, err := ParseAuthParams([]string{"client-1", "alice", "s3cret"})
		require.NoError(t, err)
		assert.Equal(t, "client-1", config.ClientID)
		assert.Equal(t, "alice", config.Username)
		assert.Equal(t, "s3cret", config.Password)
		assert.Equal(t, DefaultRegion, config.Region)
	})

	t.Run("with region", func(t *testing.T) {
		config, err := ParseAuthParams([]string{"client-1", "alice", "s3cret", "region:eu-west-1"})
		require.NoError(t, err)
		assert.Equal(t, "eu-west-1", config.Region)
	})

	t.Run("too few params", func(t *testing.T) {
		_, err := ParseAuthParams([]string{"client-1", "alice"})
		assert.Error(t, err)
	})
}

func TestProvider_GetToken(t *testing.T) {
	GlobalCache.Clear()
	t.Cleanup(GlobalCache.Clear)

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "application/x-amz-json-1.1", r.Header.Get("Content-Type"))
		assert.Equal(t, initiateAuthTarget, r.Header.Get("X-Amz-Target"))

		fmt.Fprint(w, `{
			"AuthenticationResult": {
				"IdToken": "id-token-value",
				"AccessToken": "access-token-value",
				"TokenType": "Bearer",
				"ExpiresIn": 3600
			}
		}`)
	}))
	defer server.Close()

	provider := NewProvider(&Config{
		ClientID: "client-abc",
		Username: "alice",
		Password: "s3cret",
		Endpoint: server.URL,
	})

	token, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id-token-value", token.Bearer())
	assert.Equal(t, "Bearer", token.TokenType)
	assert.False(t, token.IsExpired())

	// Second call is served from the cache.
	_, err = provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestProvider_GetToken_ErrorResponse(t *testing.T) {
	GlobalCache.Clear()
	t.Cleanup(GlobalCache.Clear)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"__type":"NotAuthorizedException","message":"Incorrect username or password."}`)
	}))
	defer server.Close()

	provider := NewProvider(&Config{
		ClientID: "client-err",
		Username: "alice",
		Password: "wrong",
		Endpoint: server.URL,
	})

	_, err := provider.GetToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotAuthorizedException")
}

func TestProvider_GetToken_ChallengeUnsupported(t *testing.T) {
	GlobalCache.Clear()
	t.Cleanup(GlobalCache.Clear)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ChallengeName":"SMS_MFA","Session":"opaque"}`)
	}))
	defer server.Close()

	provider := NewProvider(&Config{
		ClientID: "client-mfa",
		Username: "alice",
		Password: "s3cret",
		Endpoint: server.URL,
	})

	_, err := provider.GetToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMS_MFA")
}

func TestToken_IsExpired(t *testing.T) {
	assert.False(t, (&Token{}).IsExpired(), "no expiry means never expired")
	assert.False(t, (&Token{ExpiresAt: time.Now().Add(time.Hour)}).IsExpired())
	assert.True(t, (&Token{ExpiresAt: time.Now().Add(-time.Second)}).IsExpired())
	assert.True(t, (&Token{ExpiresAt: time.Now().Add(10 * time.Second)}).IsExpired(), "clock-skew buffer")
}

func TestToken_BearerPrefersIDToken(t *testing.T) {
	token := &Token{IDToken: "id", AccessToken: "access"}
	assert.Equal(t, "id", token.Bearer())
	assert.Equal(t, "access", (&Token{AccessToken: "access"}).Bearer())
}
