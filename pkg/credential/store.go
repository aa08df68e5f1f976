// Package credential provides encrypted-at-rest secret storage and the
// single-flight token refresher used when a backend rotates credentials.
//
// Consumers never cache a secret beyond the lifetime of one request: they
// call [Store.Get] per turn and let the store own persistence. The one
// exception is [Refresher], which caches a short-lived access token and
// guarantees that concurrent turns share a single refresh round-trip.
package credential

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get for names that have never been Set.
var ErrNotFound = errors.New("credential: not found")

// Well-known credential names used across the assistant.
const (
	NameLLMAPIKey    = "llm_api_key"
	NameCloudSTTKey  = "cloud_stt_api_key"
	NameSearchAPIKey = "search_api_key"
	NameRefreshToken = "llm_refresh_token"
)

// Store is an encrypted key/value secret store.
//
// Implementations must be safe for concurrent use. Writes go through a single
// mutation path; readers never see a partially written secret.
type Store interface {
	// Get returns the secret for name, or ErrNotFound.
	Get(name string) (string, error)

	// Set stores or replaces the secret for name.
	Set(name, secret string) error

	// Has reports whether a secret exists for name.
	Has(name string) bool
}

// Memory is an in-memory Store for tests and ephemeral sessions.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

// Get implements Store.
func (s *Memory) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (s *Memory) Set(name, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = secret
	return nil
}

// Has implements Store.
func (s *Memory) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[name]
	return ok
}
