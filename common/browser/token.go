package browser

import (
	"strings"
	"sync"
)

// TokenStore holds the bearer token the portal hands out after the
// first successful interaction. The capture goroutine refreshes it from
// response headers while the scraper reads it between attempts.
type TokenStore struct {
	mu     sync.RWMutex
	token  string
	source string
}

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Set stores a token and where it came from. Empty tokens are ignored
// so a header miss never clobbers a token recovered elsewhere.
func (s *TokenStore) Set(token string, source string) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.source = source
	s.mu.Unlock()
}

// Get returns the current token and whether one is held.
func (s *TokenStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Source reports where the current token was recovered from.
func (s *TokenStore) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Clear drops the token, forcing the next attempt to recover a fresh one.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = ""
	s.source = ""
	s.mu.Unlock()
}
