package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no credential exists for a username.
	ErrNotFound = errors.New("credential not found")
	// ErrUserExists is returned by Save when the username is already taken.
	ErrUserExists = errors.New("credential already exists")
)

// CredentialStore persists username -> password hash records.
// Records are written once on registration and never updated in place.
type CredentialStore interface {
	// Load returns every stored record keyed by username.
	Load(ctx context.Context) (map[string]string, error)

	// Lookup returns the stored hash for username or ErrNotFound.
	Lookup(ctx context.Context, username string) (string, error)

	// Contains reports whether a record exists for username.
	Contains(ctx context.Context, username string) (bool, error)

	// Save inserts a new record. It must be atomic: of several concurrent
	// saves for one username exactly one succeeds and the rest get ErrUserExists.
	Save(ctx context.Context, username, passwordHash string) error

	// Close releases the underlying connection.
	Close() error
}
