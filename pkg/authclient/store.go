package authclient

import "sync"

// TokenStore holds the bearer credential the client presents.
type TokenStore interface {
	Token() string
	SetToken(token string)
	// Clear drops the token and reports whether one was held.
	Clear() bool
}

// MemoryTokenStore is a TokenStore safe for concurrent use.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns a store seeded with token.
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

// Token returns the held token, empty when none.
func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the held token.
func (s *MemoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear drops the token and reports whether one was held, so only the
// first of several concurrent failures triggers a new login.
func (s *MemoryTokenStore) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.token != ""
	s.token = ""
	return had
}
