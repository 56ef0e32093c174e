package cognito

import (
	"sync"
)

// cacheKey identifies one user pool session.
type cacheKey struct {
	ClientID string
	Username string
	Region   string
}

// TokenCache provides thread-safe caching of issued sessions so repeated
// requests against the same pool reuse one round trip.
type TokenCache struct {
	tokens map[cacheKey]*Token
	mutex  sync.RWMutex
}

// NewTokenCache creates a new token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens: make(map[cacheKey]*Token),
	}
}

// Get retrieves a token from the cache
func (c *TokenCache) Get(key cacheKey) *Token {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.tokens[key]
}

// Set stores a token in the cache
func (c *TokenCache) Set(key cacheKey, token *Token) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tokens[key] = token
}

// Clear removes all tokens from the cache
func (c *TokenCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tokens = make(map[cacheKey]*Token)
}

// GlobalCache is the process-wide cache shared by every provider.
var GlobalCache = NewTokenCache()
