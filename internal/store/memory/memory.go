// Package memory keeps credentials in process memory. Used by tests and the
// "memory" store driver for throwaway servers.
package memory

import (
	"context"
	"sync"

	"github.com/vovakirdan/linechat/internal/store"
)

// Store implements store.CredentialStore with a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]string)}
}

// Load returns a copy of all records.
func (s *Store) Load(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

// Lookup returns the hash stored for username.
func (s *Store) Lookup(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.records[username]
	if !ok {
		return "", store.ErrNotFound
	}
	return hash, nil
}

// Contains reports whether username has a record.
func (s *Store) Contains(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[username]
	return ok, nil
}

// Save inserts a record unless the username is taken.
func (s *Store) Save(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[username]; ok {
		return store.ErrUserExists
	}
	s.records[username] = passwordHash
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
