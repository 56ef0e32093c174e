// Package cognito obtains AWS Cognito identity tokens for the cognito
// authorization scheme.
package cognito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// initiateAuthTarget is the Cognito IdP operation used to exchange user
// credentials for tokens.
const initiateAuthTarget = "AWSCognitoIdentityProviderService.InitiateAuth"

// DefaultRegion is used when the authorization line names no region.
const DefaultRegion = "us-east-1"

// Config holds the parameters of a USER_PASSWORD_AUTH exchange.
type Config struct {
	ClientID string
	Username string
	Password string
	Region   string

	// Endpoint overrides the regional cognito-idp URL. Empty means
	// https://cognito-idp.<region>.amazonaws.com/.
	Endpoint string
}

// Token represents an issued Cognito session.
type Token struct {
	IDToken     string
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Bearer returns the value to place after "Bearer " in an Authorization
// header. Cognito user pools authorize API calls with the ID token.
func (t *Token) Bearer() string {
	if t.IDToken != "" {
		return t.IDToken
	}
	return t.AccessToken
}

// IsExpired checks if the token is expired
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	// Add a small buffer (30 seconds) to account for clock skew
	return time.Now().Add(30 * time.Second).After(t.ExpiresAt)
}

// Provider handles Cognito token acquisition
type Provider struct {
	config     *Config
	httpClient *http.Client
	cache      *TokenCache
}

// NewProvider creates a new Cognito provider
func NewProvider(config *Config) *Provider {
	if config.Region == "" {
		config.Region = DefaultRegion
	}
	return &Provider{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: GlobalCache,
	}
}

// GetToken retrieves a valid session token, fetching a new one if necessary.
// The fetch is a network round trip and honors ctx cancellation.
func (p *Provider) GetToken(ctx context.Context) (*Token, error) {
	key := cacheKey{
		ClientID: p.config.ClientID,
		Username: p.config.Username,
		Region:   p.config.Region,
	}
	if token := p.cache.Get(key); token != nil && !token.IsExpired() {
		return token, nil
	}

	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, token)
	return token, nil
}

func (p *Provider) endpoint() string {
	if p.config.Endpoint != "" {
		return p.config.Endpoint
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", p.config.Region)
}

func (p *Provider) fetchToken(ctx context.Context) (*Token, error) {
	payload, err := json.Marshal(map[string]any{
		"AuthFlow": "USER_PASSWORD_AUTH",
		"ClientId": p.config.ClientID,
		"AuthParameters": map[string]string{
			"USERNAME": p.config.Username,
			"PASSWORD": p.config.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", initiateAuthTarget)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cognito auth request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errType := gjson.GetBytes(body, "__type").String()
		message := gjson.GetBytes(body, "message").String()
		if errType != "" {
			return nil, fmt.Errorf("cognito auth failed: %s - %s", errType, message)
		}
		return nil, fmt.Errorf("cognito auth failed with status %d: %s", resp.StatusCode, string(body))
	}

	result := gjson.GetBytes(body, "AuthenticationResult")
	if !result.Exists() {
		// A challenge (MFA, new password) cannot be satisfied here.
		if challenge := gjson.GetBytes(body, "ChallengeName").String(); challenge != "" {
			return nil, fmt.Errorf("cognito auth requires challenge %s, which is not supported", challenge)
		}
		return nil, fmt.Errorf("cognito auth response carried no authentication result")
	}

	token := &Token{
		IDToken:     result.Get("IdToken").String(),
		AccessToken: result.Get("AccessToken").String(),
		TokenType:   result.Get("TokenType").String(),
	}
	if expiresIn := result.Get("ExpiresIn").Int(); expiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	if token.Bearer() == "" {
		return nil, fmt.Errorf("cognito auth response carried no token")
	}
	return token, nil
}

// ParseAuthParams parses the parameters of a cognito authorization line.
// Format: clientId username password [region:<aws-region>] [endpoint:<url>]
// The endpoint parameter targets non-AWS pools such as cognito-local.
func ParseAuthParams(params []string) (*Config, error) {
	if len(params) < 3 {
		return nil, fmt.Errorf("cognito auth requires: clientId username password [region:<aws-region>]")
	}

	config := &Config{
		ClientID: params[0],
		Username: params[1],
		Password: params[2],
		Region:   DefaultRegion,
	}
	for _, param := range params[3:] {
		switch {
		case strings.HasPrefix(param, "region:"):
			config.Region = strings.TrimPrefix(param, "region:")
		case strings.HasPrefix(param, "endpoint:"):
			config.Endpoint = strings.TrimPrefix(param, "endpoint:")
		}
	}
	if config.Region == "" {
		return nil, fmt.Errorf("cognito auth region must not be empty")
	}
	return config, nil
}
